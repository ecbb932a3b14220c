package serial

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	frames [][]byte
	err    error
}

func (c *collector) HandleFrame(p []byte) error {
	c.frames = append(c.frames, append([]byte(nil), p...))
	return c.err
}

func newTestReader(c *collector) (*FrameReader, *time.Time) {
	now := time.Unix(0, 0)
	r := NewFrameReader(nil, c)
	r.Clock = func() time.Time { return now }
	return r, &now
}

func TestFeedSplitsAtGap(t *testing.T) {
	c := &collector{}
	r, now := newTestReader(c)
	r.Feed([]byte{1, 2})
	*now = now.Add(time.Millisecond)
	r.Feed([]byte{3})
	*now = now.Add(10 * time.Millisecond)
	r.Feed([]byte{4, 5})
	r.Flush()
	assert.Equal(t, [][]byte{{1, 2, 3}, {4, 5}}, c.frames)
	assert.EqualValues(t, 2, r.Stats().Frames)
}

func TestFeedFrameSize(t *testing.T) {
	c := &collector{}
	r, _ := newTestReader(c)
	r.FrameSize = 3
	r.Feed([]byte{1, 2, 3, 4, 5, 6, 7})
	assert.Equal(t, [][]byte{{1, 2, 3}, {4, 5, 6}}, c.frames)
	r.Flush()
	assert.Equal(t, []byte{7}, c.frames[2])
}

func TestFeedOverrun(t *testing.T) {
	c := &collector{}
	r, _ := newTestReader(c)
	r.MaxFrame = 4
	r.Feed([]byte{1, 2, 3, 4, 5})
	r.Flush()
	assert.Empty(t, c.frames)
	assert.EqualValues(t, 1, r.Stats().Overruns)
}

func TestRejectedCounted(t *testing.T) {
	c := &collector{err: errors.New("bad")}
	r, _ := newTestReader(c)
	r.Feed([]byte{1})
	r.Flush()
	assert.EqualValues(t, 1, r.Stats().Rejected)
}

type scriptedReader struct {
	chunks [][]byte
	err    error
}

func (s *scriptedReader) Read(p []byte) (int, error) {
	if len(s.chunks) == 0 {
		return 0, s.err
	}
	chunk := s.chunks[0]
	s.chunks = s.chunks[1:]
	if chunk == nil {
		return 0, io.EOF
	}
	return copy(p, chunk), nil
}

func TestRun(t *testing.T) {
	c := &collector{}
	failure := errors.New("unplugged")
	r := NewFrameReader(&scriptedReader{
		chunks: [][]byte{{1, 2}, {3}, nil, {4}, nil},
		err:    failure,
	}, c)
	err := r.Run(context.Background())
	require.ErrorIs(t, err, failure)
	assert.Equal(t, [][]byte{{1, 2, 3}, {4}}, c.frames)
}
