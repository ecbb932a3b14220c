// Package robot assembles buses, devices and control loops from a YAML
// robot description.
package robot

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/robotalks/rm.go/pkg/control/pid"
	"github.com/robotalks/rm.go/pkg/device/dm"
	"github.com/robotalks/rm.go/pkg/hal/can"
)

// Motor kinds.
const (
	KindGM6020          = "GM6020"
	KindM3508           = "M3508"
	KindM2006           = "M2006"
	KindDMMIT           = "dm-mit"
	KindDMSpeed         = "dm-speed"
	KindDMSpeedPosition = "dm-speed-position"
)

// Control modes of a motor.
const (
	ControlRaw      = "raw"
	ControlVelocity = "velocity"
	ControlPosition = "position"
)

// Defaults of a Description.
const (
	DefaultRate       = 1000
	DefaultStaleAfter = 100 * time.Millisecond
)

// Description describes a robot.
type Description struct {
	RobotID    string        `yaml:"robot-id"`
	Rate       int           `yaml:"rate"`
	StaleAfter time.Duration `yaml:"stale-after"`
	Buses      []BusDesc     `yaml:"buses"`
	Motors     []MotorDesc   `yaml:"motors"`
	Receiver   *ReceiverDesc `yaml:"receiver"`
}

// BusDesc describes a CAN bus.
type BusDesc struct {
	Name           string        `yaml:"name"`
	Kind           string        `yaml:"kind"`
	Queue          int           `yaml:"queue"`
	ReceiveTimeout time.Duration `yaml:"receive-timeout"`
}

// MotorDesc describes a motor and its control loop.
type MotorDesc struct {
	Name     string `yaml:"name"`
	Bus      string `yaml:"bus"`
	Kind     string `yaml:"kind"`
	ID       uint8  `yaml:"id"`
	Reversed bool   `yaml:"reversed"`
	Enabled  bool   `yaml:"enabled"`
	// DM holds the settings of DM motors.
	DM dm.Base `yaml:"dm"`
	// Control selects what setpoints mean. DJI motors close velocity and
	// position loops with PID; DM motors run them in the motor.
	Control string    `yaml:"control"`
	PID     pid.Gains `yaml:"pid"`
	// SpeedLimit is the velocity limit of dm-speed-position motors.
	SpeedLimit float64 `yaml:"speed-limit"`
}

// ReceiverDesc describes a DR16 receiver.
type ReceiverDesc struct {
	Device string `yaml:"device"`
}

// Load reads a Description from a YAML file.
func Load(path string) (*Description, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	desc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return desc, nil
}

// Parse decodes and validates a Description, filling defaults.
func Parse(data []byte) (*Description, error) {
	var desc Description
	if err := yaml.Unmarshal(data, &desc); err != nil {
		return nil, err
	}
	if err := desc.normalize(); err != nil {
		return nil, err
	}
	return &desc, nil
}

func (d *Description) normalize() error {
	if d.Rate <= 0 {
		d.Rate = DefaultRate
	}
	if d.StaleAfter <= 0 {
		d.StaleAfter = DefaultStaleAfter
	}
	buses := make(map[string]bool)
	for n := range d.Buses {
		b := &d.Buses[n]
		if b.Name == "" {
			return fmt.Errorf("buses[%d]: name required", n)
		}
		if buses[b.Name] {
			return fmt.Errorf("bus %s: duplicated", b.Name)
		}
		buses[b.Name] = true
		if b.Kind == "" {
			b.Kind = can.KindSocketCAN
		}
		if b.Queue <= 0 {
			b.Queue = can.DefaultQueueCapacity
		}
		if b.ReceiveTimeout <= 0 {
			b.ReceiveTimeout = can.DefaultReceiveTimeout
		}
	}
	names := make(map[string]bool)
	for n := range d.Motors {
		m := &d.Motors[n]
		if m.Name == "" {
			m.Name = fmt.Sprintf("%s-%d", m.Kind, m.ID)
		}
		if names[m.Name] {
			return fmt.Errorf("motor %s: duplicated name", m.Name)
		}
		names[m.Name] = true
		if !buses[m.Bus] {
			return fmt.Errorf("motor %s: unknown bus %q", m.Name, m.Bus)
		}
		switch m.Kind {
		case KindGM6020, KindM3508, KindM2006,
			KindDMMIT, KindDMSpeed, KindDMSpeedPosition:
		default:
			return fmt.Errorf("motor %s: unknown kind %q", m.Name, m.Kind)
		}
		switch m.Control {
		case "":
			m.Control = ControlRaw
		case ControlRaw, ControlVelocity, ControlPosition:
		default:
			return fmt.Errorf("motor %s: unknown control %q", m.Name, m.Control)
		}
		if m.DM.Name == "" {
			m.DM.Name = m.Name
		}
	}
	return nil
}
