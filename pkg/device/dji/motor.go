package dji

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/robotalks/rm.go/pkg/algorithm"
	"github.com/robotalks/rm.go/pkg/device"
	"github.com/robotalks/rm.go/pkg/hal/can"
)

// ErrInvalidID indicates the motor ID is out of range for the model.
var ErrInvalidID = errors.New("invalid motor id")

// Config configures a motor.
type Config struct {
	ID       uint8  `yaml:"id"`
	Reversed bool   `yaml:"reversed"`
	Name     string `yaml:"name"`
}

// State is a decoded feedback snapshot.
type State struct {
	Encoder uint16
	Turns   int64
	// RotorAngle is the continuous rotor angle in radians.
	RotorAngle float64
	// Angle is the continuous output shaft angle in radians.
	Angle float64
	// RPM is the rotor speed, negated for reversed motors like RawCurrent.
	RPM int32
	// Velocity is the output shaft velocity in rad/s.
	Velocity    float64
	RawCurrent  int32
	Current     float64
	Temperature uint8
	Updated     time.Time
}

// Driver is the model independent view of a Motor.
type Driver interface {
	device.Device
	device.Encoder
	ID() uint8
	Properties() Properties
	SetCurrent(raw int) error
	Command() int
	State() *State
}

// Motor drives one DJI motor of model M.
type Motor[M Model] struct {
	cfg        Config
	props      Properties
	name       string
	mgr        *device.Manager
	feedbackID uint32
	buf        *device.TxBuffer
	offset     int

	state   atomic.Pointer[State]
	command atomic.Int32

	// decoder state, owned by the dispatching goroutine.
	seeded bool
	last   uint16
	turns  int64
}

// New creates a motor and registers it to mgr under its feedback identifier.
func New[M Model](mgr *device.Manager, cfg Config) (*Motor[M], error) {
	var model M
	props := model.Properties()
	if cfg.ID < 1 || cfg.ID > props.MaxID {
		return nil, fmt.Errorf("%s: %w %d, expect 1-%d", props.Name, ErrInvalidID, cfg.ID, props.MaxID)
	}
	m := &Motor[M]{
		cfg:        cfg,
		props:      props,
		name:       cfg.Name,
		mgr:        mgr,
		feedbackID: props.FeedbackID(cfg.ID),
		buf:        mgr.TxBuffer(props.ControlID(cfg.ID)),
		offset:     props.SlotOffset(cfg.ID),
	}
	if m.name == "" {
		m.name = fmt.Sprintf("%s-%d", props.Name, cfg.ID)
	}
	m.state.Store(&State{})
	if err := m.buf.Claim(m.offset, 2); err != nil {
		return nil, fmt.Errorf("%s: %w", m.name, err)
	}
	if err := mgr.Register(m.feedbackID, m); err != nil {
		m.buf.Release(m.offset, 2)
		return nil, fmt.Errorf("%s: %w", m.name, err)
	}
	return m, nil
}

// Name implements device.Device.
func (m *Motor[M]) Name() string {
	return m.name
}

// ID returns the motor ID.
func (m *Motor[M]) ID() uint8 {
	return m.cfg.ID
}

// FeedbackID returns the identifier the motor is registered with.
func (m *Motor[M]) FeedbackID() uint32 {
	return m.feedbackID
}

// Properties returns the model constants.
func (m *Motor[M]) Properties() Properties {
	return m.props
}

// State returns the latest snapshot. It's never nil.
func (m *Motor[M]) State() *State {
	return m.state.Load()
}

// Command returns the last commanded raw value, after clamping.
func (m *Motor[M]) Command() int {
	return int(m.command.Load())
}

// Decode implements device.Device.
func (m *Motor[M]) Decode(f can.Frame) error {
	if f.Len != 8 {
		return device.Malformed("%s: DLC %d, expect 8", m.name, f.Len)
	}
	encoder := binary.BigEndian.Uint16(f.Data[0:])
	rpm := int32(int16(binary.BigEndian.Uint16(f.Data[2:])))
	current := int32(int16(binary.BigEndian.Uint16(f.Data[4:])))

	counts := m.props.EncoderCounts
	if m.seeded {
		delta := int(encoder) - int(m.last)
		if delta > counts/2 {
			m.turns--
		} else if delta < -counts/2 {
			m.turns++
		}
	}
	m.seeded = true
	m.last = encoder

	rotor := 2 * math.Pi * (float64(m.turns) + float64(encoder)/float64(counts))
	if m.cfg.Reversed {
		rotor, rpm, current = -rotor, -rpm, -current
	}
	m.state.Store(&State{
		Encoder:     encoder,
		Turns:       m.turns,
		RotorAngle:  rotor,
		Angle:       rotor / m.props.GearRatio,
		RPM:         rpm,
		Velocity:    float64(rpm) * 2 * math.Pi / 60 / m.props.GearRatio,
		RawCurrent:  current,
		Current:     float64(current) * m.props.CurrentScale,
		Temperature: f.Data[6],
		Updated:     m.mgr.Clock(),
	})
	return nil
}

// SetCurrent writes a raw command into the shared transmit buffer. Values
// beyond the rated limit are clamped, written, and reported as
// *device.RangeError.
func (m *Motor[M]) SetCurrent(raw int) error {
	applied := algorithm.AbsConstrain(raw, m.props.CommandLimit)
	value := applied
	if m.cfg.Reversed {
		value = -value
	}
	var slot [2]byte
	binary.BigEndian.PutUint16(slot[:], uint16(int16(value)))
	m.buf.Put(m.offset, slot[:])
	m.command.Store(int32(applied))
	if applied != raw {
		return &device.RangeError{Device: m.name, Requested: float64(raw), Applied: float64(applied)}
	}
	return nil
}

// Encode implements device.Encoder. The shared frame is produced by
// whichever motor on it encodes first in a tick.
func (m *Motor[M]) Encode() []can.Frame {
	if f, ok := m.buf.Take(); ok {
		return []can.Frame{f}
	}
	return nil
}

// Detach implements device.Detacher.
func (m *Motor[M]) Detach() {
	m.buf.Release(m.offset, 2)
}
