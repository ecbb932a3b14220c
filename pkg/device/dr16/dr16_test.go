package dr16

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/rm.go/pkg/device"
)

func pack(ch [4]uint16, s1, s2 Switch, mouse Mouse, keys Keys, dial uint16) []byte {
	p := make([]byte, FrameSize)
	p[0] = byte(ch[0])
	p[1] = byte(ch[0]>>8) | byte(ch[1]<<3)
	p[2] = byte(ch[1]>>5) | byte(ch[2]<<6)
	p[3] = byte(ch[2] >> 2)
	p[4] = byte(ch[2]>>10) | byte(ch[3]<<1)
	p[5] = byte(ch[3]>>7) | byte(s2)<<4 | byte(s1)<<6
	binary.LittleEndian.PutUint16(p[6:], uint16(mouse.X))
	binary.LittleEndian.PutUint16(p[8:], uint16(mouse.Y))
	binary.LittleEndian.PutUint16(p[10:], uint16(mouse.Z))
	if mouse.Left {
		p[12] = 1
	}
	if mouse.Right {
		p[13] = 1
	}
	binary.LittleEndian.PutUint16(p[14:], uint16(keys))
	binary.LittleEndian.PutUint16(p[16:], dial)
	return p
}

func TestDecode(t *testing.T) {
	r := NewReceiver("")
	mouse := Mouse{X: -120, Y: 45, Z: 1, Left: true}
	frame := pack([4]uint16{1024, 1684, 364, 1500}, SwitchUp, SwitchMid, mouse, KeyW|KeyShift, 1100)
	require.NoError(t, r.Decode(frame))
	st := r.State()
	assert.Equal(t, [4]int16{0, 660, -660, 476}, st.Channels)
	assert.Equal(t, SwitchUp, st.S1)
	assert.Equal(t, SwitchMid, st.S2)
	assert.Equal(t, mouse, st.Mouse)
	assert.True(t, st.Keys.Pressed(KeyW))
	assert.True(t, st.Keys.Pressed(KeyW|KeyShift))
	assert.False(t, st.Keys.Pressed(KeyW|KeyCtrl))
	assert.EqualValues(t, 76, st.Dial)
	assert.Equal(t, "mid", st.S2.String())
}

func TestDecodeRetainsStateOnError(t *testing.T) {
	r := NewReceiver("rc")
	good := pack([4]uint16{1024, 1024, 1024, 1024}, SwitchDown, SwitchDown, Mouse{}, 0, 1024)
	require.NoError(t, r.Decode(good))
	st := r.State()

	testCases := []struct {
		name  string
		frame []byte
	}{
		{"short", good[:17]},
		{"long", append(append([]byte(nil), good...), 0)},
		{"empty", nil},
		{"channel-range", pack([4]uint16{100, 1024, 1024, 1024}, SwitchDown, SwitchDown, Mouse{}, 0, 1024)},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.ErrorIs(t, r.HandleFrame(tc.frame), device.ErrMalformedFrame)
			assert.Same(t, st, r.State())
		})
	}
}

type pipePort struct {
	chunks [][]byte
	closed bool
}

func (p *pipePort) Read(b []byte) (int, error) {
	if p.closed {
		return 0, errClosed
	}
	if len(p.chunks) == 0 {
		p.closed = true
		return 0, errClosed
	}
	c := p.chunks[0]
	p.chunks = p.chunks[1:]
	return copy(b, c), nil
}

func (p *pipePort) Write(b []byte) (int, error) { return len(b), nil }
func (p *pipePort) Close() error                { p.closed = true; return nil }

var errClosed = errors.New("port closed")

func TestLink(t *testing.T) {
	frame := pack([4]uint16{1124, 1024, 1024, 924}, SwitchMid, SwitchUp, Mouse{}, KeyQ, 1024)
	// one frame split over two reads, then the next one glued to it.
	port := &pipePort{chunks: [][]byte{frame[:5], append(append([]byte(nil), frame[5:]...), frame...)}}
	link := NewLink(port, NewReceiver("rc"))
	err := link.Reader.Run(context.Background())
	require.ErrorIs(t, err, errClosed)
	assert.EqualValues(t, 2, link.Reader.Stats().Frames)
	assert.EqualValues(t, 0, link.Reader.Stats().Rejected)
	st := link.State()
	assert.Equal(t, [4]int16{100, 0, 0, -100}, st.Channels)
	assert.True(t, st.Keys.Pressed(KeyQ))
}
