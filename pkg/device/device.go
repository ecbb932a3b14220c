package device

import (
	"github.com/robotalks/rm.go/pkg/hal/can"
)

// Device consumes the frames addressed to its identifier.
// Decode runs on the bridge goroutine. It must not send and must leave the
// published state untouched when it returns an error.
type Device interface {
	Name() string
	Decode(can.Frame) error
}

// Encoder is implemented by devices which transmit commands.
// Encode runs on the loop goroutine and returns the frames due this tick.
type Encoder interface {
	Encode() []can.Frame
}

// Detacher is implemented by devices holding resources in the Manager,
// e.g. a slot in a shared TxBuffer. Detach is called by Unregister.
type Detacher interface {
	Detach()
}
