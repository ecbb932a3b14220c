package dr16

import (
	"context"
	"time"

	"github.com/robotalks/rm.go/pkg/framework"
	"github.com/robotalks/rm.go/pkg/hal/serial"
)

// Baud is the DBUS line rate.
const Baud = 100000

// Link feeds a Receiver from a serial port.
type Link struct {
	*Receiver
	Port   serial.Port
	Reader *serial.FrameReader
}

// NewLink creates a Link over an opened port.
func NewLink(port serial.Port, recv *Receiver) *Link {
	reader := serial.NewFrameReader(port, recv)
	reader.FrameSize = FrameSize
	return &Link{Receiver: recv, Port: port, Reader: reader}
}

// Open opens the serial device at path with the DBUS line settings
// (100000 baud, 8E1).
func Open(path string) (*Link, error) {
	port, err := serial.Open(serial.Config{
		Name:        path,
		Baud:        Baud,
		Parity:      serial.ParityEven,
		StopBits:    1,
		ReadTimeout: 100 * time.Millisecond,
	})
	if err != nil {
		return nil, err
	}
	return NewLink(port, NewReceiver("dr16:"+path)), nil
}

// Run implements framework.Runnable. The port is closed when Run returns.
func (l *Link) Run(ctx context.Context) error {
	return framework.RunWithContextCloser(ctx, l.Port, func() error {
		return l.Reader.Run(ctx)
	})
}
