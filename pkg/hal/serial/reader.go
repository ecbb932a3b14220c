package serial

import (
	"context"
	"errors"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/rm.go/pkg/control/deadline"
)

// Defaults of FrameReader.
const (
	DefaultGap      = 3 * time.Millisecond
	DefaultMaxFrame = 256
)

// FrameHandler receives the frames split by FrameReader.
type FrameHandler interface {
	HandleFrame([]byte) error
}

// HandleFrameFunc is func type of FrameHandler.
type HandleFrameFunc func([]byte) error

// HandleFrame implements FrameHandler.
func (f HandleFrameFunc) HandleFrame(frame []byte) error {
	return f(frame)
}

// FrameReaderStats are the FrameReader counters.
type FrameReaderStats struct {
	Frames   uint64
	Rejected uint64
	Overruns uint64
}

// FrameReader splits a byte stream into frames at idle gaps: bytes arriving
// more than Gap after the previous ones start a new frame. A frame is also
// complete once it reaches FrameSize, when set.
type FrameReader struct {
	Reader    io.Reader
	Handler   FrameHandler
	Gap       time.Duration
	FrameSize int
	MaxFrame  int
	Clock     deadline.Clock

	frames   atomic.Uint64
	rejected atomic.Uint64
	overruns atomic.Uint64

	pending []byte
	last    time.Time
}

// NewFrameReader creates a FrameReader.
func NewFrameReader(r io.Reader, handler FrameHandler) *FrameReader {
	return &FrameReader{
		Reader:   r,
		Handler:  handler,
		Gap:      DefaultGap,
		MaxFrame: DefaultMaxFrame,
		Clock:    time.Now,
	}
}

// Stats returns a copy of the counters.
func (r *FrameReader) Stats() FrameReaderStats {
	return FrameReaderStats{
		Frames:   r.frames.Load(),
		Rejected: r.rejected.Load(),
		Overruns: r.overruns.Load(),
	}
}

// Run implements framework.Runnable. The Reader is expected to return
// periodically (a read timeout) so cancellation is noticed.
func (r *FrameReader) Run(ctx context.Context) error {
	buf := make([]byte, 64)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		n, err := r.Reader.Read(buf)
		if n > 0 {
			r.Feed(buf[:n])
		}
		if err != nil {
			if isIdle(err) {
				r.Flush()
				continue
			}
			return err
		}
		if n == 0 {
			r.Flush()
		}
	}
}

// Feed appends received bytes.
func (r *FrameReader) Feed(p []byte) {
	now := r.Clock()
	if len(r.pending) > 0 && now.Sub(r.last) > r.Gap {
		r.Flush()
	}
	r.last = now
	for len(p) > 0 {
		chunk := p
		if r.FrameSize > 0 {
			if room := r.FrameSize - len(r.pending); len(chunk) > room {
				chunk = chunk[:room]
			}
		}
		r.pending = append(r.pending, chunk...)
		p = p[len(chunk):]
		if r.FrameSize > 0 && len(r.pending) >= r.FrameSize {
			r.Flush()
		}
	}
	if max := r.MaxFrame; max > 0 && len(r.pending) > max {
		r.overruns.Add(1)
		glog.Warningf("serial frame exceeds %d bytes, discarded", max)
		r.pending = r.pending[:0]
	}
}

// Flush hands the pending bytes to the Handler as one frame.
func (r *FrameReader) Flush() {
	if len(r.pending) == 0 {
		return
	}
	frame := r.pending
	r.pending = nil
	r.frames.Add(1)
	if err := r.Handler.HandleFrame(frame); err != nil {
		r.rejected.Add(1)
		glog.V(2).Infof("serial frame rejected: %v", err)
	}
}

func isIdle(err error) bool {
	return errors.Is(err, io.EOF) || os.IsTimeout(err)
}
