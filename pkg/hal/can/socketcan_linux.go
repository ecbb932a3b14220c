//go:build linux
// +build linux

package can

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	bcan "github.com/brutella/can"
	"github.com/golang/glog"
	"golang.org/x/sys/unix"
)

// bus-off class bit carried in the identifier of SocketCAN error frames.
const canErrBusOff = 0x00000040

// SocketCAN is a Bus backed by a Linux SocketCAN raw socket.
type SocketCAN struct {
	name string
	bus  *bcan.Bus
	rx   chan Frame

	busOff      atomic.Bool
	errorFrames atomic.Uint64

	closeOnce sync.Once
	closed    chan struct{}
}

// OpenSocketCAN opens the named interface (e.g. can0). depth is the number
// of received frames buffered between the socket reader and Receive.
func OpenSocketCAN(ifname string, depth int) (*SocketCAN, error) {
	bus, err := bcan.NewBusForInterfaceWithName(ifname)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", ifname, err)
	}
	if depth <= 0 {
		depth = 64
	}
	s := &SocketCAN{
		name:   ifname,
		bus:    bus,
		rx:     make(chan Frame, depth),
		closed: make(chan struct{}),
	}
	bus.Subscribe(bcan.NewHandler(s.handle))
	go s.publish()
	return s, nil
}

// Name implements Bus.
func (s *SocketCAN) Name() string {
	return s.name
}

// Send implements Bus.
func (s *SocketCAN) Send(f Frame) error {
	if err := f.Validate(); err != nil {
		return NewTransportError(s.name, f.ID, err)
	}
	select {
	case <-s.closed:
		return NewTransportError(s.name, f.ID, ErrClosed)
	default:
	}
	id := f.ID
	if f.Extended {
		id |= unix.CAN_EFF_FLAG
	}
	frm := bcan.Frame{ID: id, Length: f.Len, Data: f.Data}
	if err := s.bus.Publish(frm); err != nil {
		switch {
		case s.busOff.Load():
			err = fmt.Errorf("%w: %v", ErrBusOff, err)
		case isTxQueueFull(err):
			err = fmt.Errorf("%w: %v", ErrSendTimeout, err)
		}
		return NewTransportError(s.name, f.ID, err)
	}
	s.busOff.Store(false)
	return nil
}

// Receive implements Bus.
func (s *SocketCAN) Receive(timeout time.Duration) (Frame, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case f := <-s.rx:
		return f, nil
	case <-s.closed:
		return Frame{}, ErrClosed
	case <-timer.C:
		return Frame{}, ErrTimeout
	}
}

// Close implements Bus.
func (s *SocketCAN) Close() (err error) {
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.bus.Disconnect()
	})
	return
}

// BusOff reports whether the last error frame signalled bus-off.
func (s *SocketCAN) BusOff() bool {
	return s.busOff.Load()
}

// ErrorFrames returns the number of error frames seen.
func (s *SocketCAN) ErrorFrames() uint64 {
	return s.errorFrames.Load()
}

func (s *SocketCAN) publish() {
	err := s.bus.ConnectAndPublish()
	select {
	case <-s.closed:
	default:
		glog.Errorf("can %s: reader stopped: %v", s.name, err)
		s.Close()
	}
}

func (s *SocketCAN) handle(frm bcan.Frame) {
	if frm.ID&unix.CAN_ERR_FLAG != 0 {
		s.errorFrames.Add(1)
		if frm.ID&canErrBusOff != 0 {
			s.busOff.Store(true)
			glog.Errorf("can %s: bus off", s.name)
		} else if glog.V(2) {
			glog.Warningf("can %s: error frame class %08x", s.name, frm.ID&unix.CAN_ERR_MASK)
		}
		return
	}
	if frm.ID&unix.CAN_RTR_FLAG != 0 {
		return
	}
	f := Frame{Len: frm.Length, Data: frm.Data}
	if frm.ID&unix.CAN_EFF_FLAG != 0 {
		f.ID, f.Extended = frm.ID&unix.CAN_EFF_MASK, true
	} else {
		f.ID = frm.ID & unix.CAN_SFF_MASK
	}
	select {
	case s.rx <- f:
	case <-s.closed:
	}
}

func isTxQueueFull(err error) bool {
	return errors.Is(err, unix.ENOBUFS) || errors.Is(err, unix.EAGAIN)
}

func openSocketCAN(ifname string, depth int) (Bus, error) {
	s, err := OpenSocketCAN(ifname, depth)
	if err != nil {
		return nil, err
	}
	return s, nil
}
