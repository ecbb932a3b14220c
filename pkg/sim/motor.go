// Package sim simulates motors answering on a simulated CAN bus.
package sim

import (
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/robotalks/rm.go/pkg/device/dji"
	"github.com/robotalks/rm.go/pkg/hal/can"
)

// Defaults of the motor dynamics.
const (
	DefaultMaxRPM = 9000
	DefaultTau    = 50 * time.Millisecond
)

// Motor is a DJI motor with first order velocity dynamics: the rotor speed
// approaches Gain*command with time constant Tau.
type Motor struct {
	Props dji.Properties
	ID    uint8
	// Gain is the steady state rotor rpm per raw command unit.
	Gain        float64
	Tau         time.Duration
	Temperature uint8

	controlID uint32
	offset    int

	lock    sync.Mutex
	command int16
	rpm     float64
	counts  float64
}

// NewMotor creates a simulated motor of model M.
func NewMotor[M dji.Model](id uint8) *Motor {
	var model M
	props := model.Properties()
	return &Motor{
		Props:       props,
		ID:          id,
		Gain:        DefaultMaxRPM / float64(props.CommandLimit),
		Tau:         DefaultTau,
		Temperature: 30,
		controlID:   props.ControlID(id),
		offset:      props.SlotOffset(id),
	}
}

// Command returns the last received raw command.
func (m *Motor) Command() int16 {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.command
}

// RPM returns the simulated rotor speed.
func (m *Motor) RPM() float64 {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.rpm
}

// HandleFrame picks the command from a control frame.
func (m *Motor) HandleFrame(f can.Frame) {
	if f.ID != m.controlID || int(f.Len) < m.offset+2 {
		return
	}
	m.lock.Lock()
	m.command = int16(binary.BigEndian.Uint16(f.Data[m.offset:]))
	m.lock.Unlock()
}

// Step advances the motor by dt and returns its feedback frame.
func (m *Motor) Step(dt time.Duration) can.Frame {
	m.lock.Lock()
	defer m.lock.Unlock()
	if dt > 0 {
		target := m.Gain * float64(m.command)
		if tau := m.Tau.Seconds(); tau > 0 {
			m.rpm += (target - m.rpm) * math.Min(dt.Seconds()/tau, 1)
		} else {
			m.rpm = target
		}
		m.counts += m.rpm / 60 * dt.Seconds() * float64(m.Props.EncoderCounts)
	}
	modulus := float64(m.Props.EncoderCounts)
	encoder := math.Mod(m.counts, modulus)
	if encoder < 0 {
		encoder += modulus
	}
	f := can.Frame{ID: m.Props.FeedbackID(m.ID), Len: 8}
	binary.BigEndian.PutUint16(f.Data[0:], uint16(encoder))
	binary.BigEndian.PutUint16(f.Data[2:], uint16(int16(math.Round(m.rpm))))
	current := float64(m.command)
	if m.Props.Name == "GM6020" {
		// voltage controlled, report the current the voltage would drive.
		current = current * 16384 / float64(m.Props.CommandLimit)
	}
	binary.BigEndian.PutUint16(f.Data[4:], uint16(int16(current)))
	f.Data[6] = m.Temperature
	return f
}
