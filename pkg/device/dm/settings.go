package dm

import (
	"errors"
	"fmt"

	"github.com/robotalks/rm.go/pkg/hal/can"
)

// Physical bounds of the configurable ranges.
const (
	PMaxLimit = 100.0
	VMaxLimit = 500.0
	TMaxLimit = 200.0

	// KpMax and KdMax are the fixed MIT gain ranges, both starting at 0.
	KpMax = 500.0
	KdMax = 5.0
)

// ErrInvalidSettings indicates settings out of the physical bounds.
var ErrInvalidSettings = errors.New("invalid settings")

// SettingsError describes an invalid settings field.
type SettingsError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *SettingsError) Error() string {
	return fmt.Sprintf("%v: %s=%v %s", ErrInvalidSettings, e.Field, e.Value, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidSettings) true.
func (e *SettingsError) Is(target error) bool {
	return target == ErrInvalidSettings
}

// Mode is the control mode configured on the motor.
type Mode int

// Control modes.
const (
	ModeMIT Mode = iota
	ModeSpeed
	ModeSpeedPosition
)

func (m Mode) String() string {
	switch m {
	case ModeMIT:
		return "mit"
	case ModeSpeed:
		return "speed"
	case ModeSpeedPosition:
		return "speed-position"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Base is shared by the settings of all modes. The position, velocity and
// torque ranges must match the ones configured in the motor, as feedback is
// scaled with them in every mode.
type Base struct {
	Name     string  `yaml:"name"`
	SlaveID  uint32  `yaml:"slave-id"`
	MasterID uint32  `yaml:"master-id"`
	PMax     float64 `yaml:"pmax"`
	VMax     float64 `yaml:"vmax"`
	TMax     float64 `yaml:"tmax"`
}

// MITSettings configures the MIT mode: position, velocity, gains and
// feed-forward torque in one frame on the slave ID.
type MITSettings struct {
	Base `yaml:",inline"`
	// KpLimit and KdLimit cap the commanded gains below the wire ranges
	// KpMax and KdMax. Zero keeps the full range.
	KpLimit float64 `yaml:"kp-limit"`
	KdLimit float64 `yaml:"kd-limit"`
}

// SpeedSettings configures the pure speed mode.
type SpeedSettings struct {
	Base `yaml:",inline"`
}

// SpeedPositionSettings configures the position mode with a velocity limit.
type SpeedPositionSettings struct {
	Base `yaml:",inline"`
	// SpeedLimit is the velocity the motor moves towards positions with,
	// used when a command carries no velocity. In (0, VMax].
	SpeedLimit float64 `yaml:"speed-limit"`
}

// Settings is the closed set of mode settings.
type Settings interface {
	MITSettings | SpeedSettings | SpeedPositionSettings
	base() Base
	validate() error
	mode() Mode
	controlID() uint32
	encode(b *Base, cmd *Command, clamp *clamper) can.Frame
}

func (s MITSettings) base() Base                  { return s.Base }
func (s SpeedSettings) base() Base                { return s.Base }
func (s SpeedPositionSettings) base() Base        { return s.Base }
func (MITSettings) mode() Mode                    { return ModeMIT }
func (SpeedSettings) mode() Mode                  { return ModeSpeed }
func (SpeedPositionSettings) mode() Mode          { return ModeSpeedPosition }
func (s MITSettings) controlID() uint32           { return s.SlaveID }
func (s SpeedSettings) controlID() uint32         { return 0x200 + s.SlaveID }
func (s SpeedPositionSettings) controlID() uint32 { return 0x100 + s.SlaveID }

func (b Base) validate() error {
	if b.SlaveID < 1 || b.SlaveID > 0xFF {
		return &SettingsError{Field: "slave-id", Value: float64(b.SlaveID), Reason: "out of [1, 0xFF]"}
	}
	if b.MasterID > can.MaxStdID {
		return &SettingsError{Field: "master-id", Value: float64(b.MasterID), Reason: "out of standard identifier range"}
	}
	if b.MasterID == b.SlaveID {
		return &SettingsError{Field: "master-id", Value: float64(b.MasterID), Reason: "equals slave-id"}
	}
	for _, r := range []struct {
		field string
		value float64
		max   float64
	}{
		{"pmax", b.PMax, PMaxLimit},
		{"vmax", b.VMax, VMaxLimit},
		{"tmax", b.TMax, TMaxLimit},
	} {
		if !(r.value > 0 && r.value <= r.max) {
			return &SettingsError{Field: r.field, Value: r.value, Reason: fmt.Sprintf("out of (0, %v]", r.max)}
		}
	}
	return nil
}

func (s MITSettings) validate() error {
	if err := s.Base.validate(); err != nil {
		return err
	}
	if !(s.KpLimit >= 0 && s.KpLimit <= KpMax) {
		return &SettingsError{Field: "kp-limit", Value: s.KpLimit, Reason: fmt.Sprintf("out of [0, %v]", KpMax)}
	}
	if !(s.KdLimit >= 0 && s.KdLimit <= KdMax) {
		return &SettingsError{Field: "kd-limit", Value: s.KdLimit, Reason: fmt.Sprintf("out of [0, %v]", KdMax)}
	}
	return nil
}

func (s SpeedSettings) validate() error {
	return s.Base.validate()
}

func (s SpeedPositionSettings) validate() error {
	if err := s.Base.validate(); err != nil {
		return err
	}
	if !(s.SpeedLimit > 0 && s.SpeedLimit <= s.VMax) {
		return &SettingsError{Field: "speed-limit", Value: s.SpeedLimit, Reason: fmt.Sprintf("out of (0, %v]", s.VMax)}
	}
	return nil
}

func (s MITSettings) gainLimits() (kp, kd float64) {
	kp, kd = KpMax, KdMax
	if s.KpLimit > 0 {
		kp = s.KpLimit
	}
	if s.KdLimit > 0 {
		kd = s.KdLimit
	}
	return
}
