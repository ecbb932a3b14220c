package device

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateIdentifier indicates an identifier is already registered.
	ErrDuplicateIdentifier = errors.New("duplicate identifier")
	// ErrUnknownIdentifier indicates no device is registered for a frame.
	ErrUnknownIdentifier = errors.New("unknown identifier")
	// ErrMalformedFrame indicates a frame can't be decoded by its device.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrOutOfRange indicates a command was clamped to the rated range.
	ErrOutOfRange = errors.New("command out of range")
)

// IdentifierError reports a registry failure for a specific identifier.
type IdentifierError struct {
	ID  uint32
	Err error
}

func (e *IdentifierError) Error() string {
	return fmt.Sprintf("0x%03X: %v", e.ID, e.Err)
}

func (e *IdentifierError) Unwrap() error {
	return e.Err
}

// RangeError reports a clamped command. The Applied value has been written.
type RangeError struct {
	Device    string
	Requested float64
	Applied   float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s: %v requested, clamped to %v", e.Device, e.Requested, e.Applied)
}

// Is makes errors.Is(err, ErrOutOfRange) true.
func (e *RangeError) Is(target error) bool {
	return target == ErrOutOfRange
}

// Malformed creates an error wrapping ErrMalformedFrame.
func Malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrMalformedFrame, fmt.Sprintf(format, args...))
}
