package can

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidID indicates the identifier is out of range for its format.
	ErrInvalidID = errors.New("invalid identifier")
	// ErrPayloadTooLong indicates more than MaxDataLength bytes of payload.
	ErrPayloadTooLong = errors.New("payload too long")
	// ErrBusOff indicates the controller reported bus-off.
	ErrBusOff = errors.New("bus off")
	// ErrSendTimeout indicates the frame was not accepted in time.
	ErrSendTimeout = errors.New("send timeout")
	// ErrTimeout is returned by Receive when no frame arrived in time.
	ErrTimeout = errors.New("receive timeout")
	// ErrClosed indicates the bus has been closed.
	ErrClosed = errors.New("bus closed")
)

// FailureKind classifies a transport failure.
type FailureKind int

// Failure kinds.
const (
	FailureIO FailureKind = iota
	FailureBusOff
	FailureTimeout
	FailurePayloadTooLong
	FailureClosed
)

func (k FailureKind) String() string {
	switch k {
	case FailureBusOff:
		return "bus-off"
	case FailureTimeout:
		return "timeout"
	case FailurePayloadTooLong:
		return "payload-too-long"
	case FailureClosed:
		return "closed"
	}
	return "io"
}

// TransportError is returned when a caller-initiated send fails.
type TransportError struct {
	Bus  string
	ID   uint32
	Kind FailureKind
	Err  error
}

// Error implements error.
func (e *TransportError) Error() string {
	return fmt.Sprintf("can %s: send %03X failed (%s): %v", e.Bus, e.ID, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError classifies err and wraps it.
func NewTransportError(bus string, id uint32, err error) *TransportError {
	te := &TransportError{Bus: bus, ID: id, Err: err}
	switch {
	case errors.Is(err, ErrBusOff):
		te.Kind = FailureBusOff
	case errors.Is(err, ErrSendTimeout):
		te.Kind = FailureTimeout
	case errors.Is(err, ErrPayloadTooLong), errors.Is(err, ErrInvalidID):
		te.Kind = FailurePayloadTooLong
	case errors.Is(err, ErrClosed):
		te.Kind = FailureClosed
	}
	return te
}
