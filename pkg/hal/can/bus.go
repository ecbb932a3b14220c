package can

import "time"

// Bus sends and receives frames on one named CAN interface.
// Implementations must be safe for one sender and one receiver goroutine
// running concurrently.
type Bus interface {
	// Name returns the interface name, e.g. can0.
	Name() string
	// Send transmits a frame. It may block briefly on hardware backpressure
	// and never drops the frame without returning an error.
	Send(Frame) error
	// Receive blocks up to timeout for the next frame. It returns ErrTimeout
	// when nothing arrived and ErrClosed once the bus is closed.
	Receive(timeout time.Duration) (Frame, error)
	// Close releases the interface. Blocked Receive calls return ErrClosed.
	Close() error
}

// Dispatcher consumes received frames.
type Dispatcher interface {
	Dispatch(Frame) error
}

// DispatchFunc is the func form of Dispatcher.
type DispatchFunc func(Frame) error

// Dispatch implements Dispatcher.
func (f DispatchFunc) Dispatch(frame Frame) error {
	return f(frame)
}
