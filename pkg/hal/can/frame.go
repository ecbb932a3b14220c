// Package can provides the CAN transport abstraction used by device drivers
// and the asynchronous reception bridge feeding received frames to them.
package can

import (
	"encoding/hex"
	"fmt"
)

// Frame limits.
const (
	MaxDataLength = 8
	MaxStdID      = 0x7ff
	MaxExtID      = 0x1fffffff
)

// Frame is a classical CAN data frame.
type Frame struct {
	ID       uint32 // 11-bit (std) or 29-bit (ext)
	Extended bool
	Len      uint8 // 0..8
	Data     [MaxDataLength]byte
}

// NewFrame builds a standard or extended frame from a payload.
func NewFrame(id uint32, payload []byte) (Frame, error) {
	f := Frame{ID: id, Extended: id > MaxStdID}
	if len(payload) > MaxDataLength {
		return f, ErrPayloadTooLong
	}
	f.Len = uint8(len(payload))
	copy(f.Data[:], payload)
	return f, f.Validate()
}

// Validate checks the identifier range and length field.
func (f Frame) Validate() error {
	if f.Len > MaxDataLength {
		return ErrPayloadTooLong
	}
	if f.Extended {
		if f.ID > MaxExtID {
			return ErrInvalidID
		}
	} else if f.ID > MaxStdID {
		return ErrInvalidID
	}
	return nil
}

// Payload returns the valid part of Data.
func (f *Frame) Payload() []byte {
	n := f.Len
	if n > MaxDataLength {
		n = MaxDataLength
	}
	return f.Data[:n]
}

// String implements fmt.Stringer, in candump notation.
func (f Frame) String() string {
	if f.Extended {
		return fmt.Sprintf("%08X#%s", f.ID, hex.EncodeToString(f.Payload()))
	}
	return fmt.Sprintf("%03X#%s", f.ID, hex.EncodeToString(f.Payload()))
}
