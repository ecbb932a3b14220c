package serial

import (
	"io"
	"time"

	tserial "github.com/tarm/serial"
)

// Parity modes.
const (
	ParityNone = tserial.ParityNone
	ParityEven = tserial.ParityEven
	ParityOdd  = tserial.ParityOdd
)

// Port is an opened serial port.
type Port interface {
	io.ReadWriteCloser
}

// Config configures a serial port.
type Config struct {
	Name     string         `yaml:"device"`
	Baud     int            `yaml:"baud"`
	Parity   tserial.Parity `yaml:"-"`
	StopBits int            `yaml:"stop-bits"`
	// ReadTimeout bounds a blocking Read. The driver rounds it up to 100ms.
	ReadTimeout time.Duration `yaml:"read-timeout"`
}

// Open opens a serial port with 8 data bits.
func Open(cfg Config) (Port, error) {
	stopBits := tserial.Stop1
	if cfg.StopBits == 2 {
		stopBits = tserial.Stop2
	}
	parity := cfg.Parity
	if parity == 0 {
		parity = ParityNone
	}
	port, err := tserial.OpenPort(&tserial.Config{
		Name:        cfg.Name,
		Baud:        cfg.Baud,
		Size:        8,
		Parity:      parity,
		StopBits:    stopBits,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, err
	}
	return port, nil
}
