package unitree

import (
	"context"
	"time"

	"github.com/robotalks/rm.go/pkg/framework"
	"github.com/robotalks/rm.go/pkg/hal/serial"
)

// Baud is the default RS-485 line rate.
const Baud = 4000000

// Link drives a Motor over a serial port.
type Link struct {
	*Motor
	Port   serial.Port
	Reader *serial.FrameReader
}

// NewLink creates a Link over an opened port.
func NewLink(port serial.Port, motor *Motor) *Link {
	reader := serial.NewFrameReader(port, motor)
	reader.FrameSize = FeedbackSize
	return &Link{Motor: motor, Port: port, Reader: reader}
}

// Open opens the serial device at path (8N1). A zero baud selects Baud.
func Open(path string, baud int, id uint8) (*Link, error) {
	if baud <= 0 {
		baud = Baud
	}
	port, err := serial.Open(serial.Config{
		Name:        path,
		Baud:        baud,
		StopBits:    1,
		ReadTimeout: 100 * time.Millisecond,
	})
	if err != nil {
		return nil, err
	}
	return NewLink(port, NewMotor("unitree:"+path, id)), nil
}

// Send writes the current command frame. The motor answers every command
// with one feedback frame.
func (l *Link) Send() error {
	_, err := l.Port.Write(l.Encode())
	return err
}

// Run implements framework.Runnable. The port is closed when Run returns.
func (l *Link) Run(ctx context.Context) error {
	return framework.RunWithContextCloser(ctx, l.Port, func() error {
		return l.Reader.Run(ctx)
	})
}
