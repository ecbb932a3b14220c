package robot

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/rm.go/pkg/algorithm"
	"github.com/robotalks/rm.go/pkg/control/pid"
	"github.com/robotalks/rm.go/pkg/device"
	"github.com/robotalks/rm.go/pkg/device/dji"
	"github.com/robotalks/rm.go/pkg/device/dm"
	"github.com/robotalks/rm.go/pkg/sim"
	"github.com/robotalks/rm.go/pkg/telemetry/msgs"
)

// Motor binds a driver to its control law. Exactly one of DJI and DM is
// set. All methods except Online are called from the loop.
type Motor struct {
	Desc MotorDesc
	Bus  *Bus
	DJI  dji.Driver
	DM   dm.Driver
	// PID closes velocity and position loops of DJI motors.
	PID *pid.Controller

	setpoint float64
	enabled  bool
	clamped  uint64
}

func newMotor(desc MotorDesc, bus *Bus) (*Motor, error) {
	m := &Motor{Desc: desc, Bus: bus, enabled: desc.Enabled}
	cfg := dji.Config{ID: desc.ID, Reversed: desc.Reversed, Name: desc.Name}
	var err error
	switch desc.Kind {
	case KindGM6020:
		m.DJI, err = newDJI[dji.GM6020](bus, cfg)
	case KindM3508:
		m.DJI, err = newDJI[dji.M3508](bus, cfg)
	case KindM2006:
		m.DJI, err = newDJI[dji.M2006](bus, cfg)
	case KindDMMIT:
		m.DM, err = newDM(bus.Manager, dm.MITSettings{Base: desc.DM})
	case KindDMSpeed:
		m.DM, err = newDM(bus.Manager, dm.SpeedSettings{Base: desc.DM})
	case KindDMSpeedPosition:
		m.DM, err = newDM(bus.Manager, dm.SpeedPositionSettings{Base: desc.DM, SpeedLimit: desc.SpeedLimit})
	default:
		err = fmt.Errorf("unknown kind %q", desc.Kind)
	}
	if err != nil {
		return nil, err
	}
	if m.DJI != nil {
		limit := float64(m.DJI.Properties().CommandLimit)
		m.PID = pid.New(desc.PID, -limit, limit)
	} else if m.enabled {
		m.DM.Enable()
	}
	return m, nil
}

func newDJI[M dji.Model](bus *Bus, cfg dji.Config) (dji.Driver, error) {
	m, err := dji.New[M](bus.Manager, cfg)
	if err != nil {
		return nil, err
	}
	if bus.World != nil {
		bus.World.AddMotor(sim.NewMotor[M](cfg.ID))
	}
	return m, nil
}

func newDM[S dm.Settings](mgr *device.Manager, settings S) (dm.Driver, error) {
	m, err := dm.New(mgr, settings)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Setpoint returns the current setpoint.
func (m *Motor) Setpoint() float64 {
	return m.setpoint
}

// Enabled tells whether the motor is driven.
func (m *Motor) Enabled() bool {
	return m.enabled
}

// Updated returns the time of the latest feedback.
func (m *Motor) Updated() time.Time {
	if m.DJI != nil {
		return m.DJI.State().Updated
	}
	return m.DM.State().Updated
}

// Online tells whether feedback was received within maxAge before now.
func (m *Motor) Online(now time.Time, maxAge time.Duration) bool {
	updated := m.Updated()
	return !updated.IsZero() && now.Sub(updated) <= maxAge
}

// Apply applies a setpoint. Value setpoints must match the control mode.
func (m *Motor) Apply(sp *msgs.Setpoint) error {
	switch sp.Kind {
	case msgs.SetpointEnable:
		m.enabled = true
		if m.DM != nil {
			m.DM.Enable()
		}
		return nil
	case msgs.SetpointDisable:
		m.enabled = false
		if m.DM != nil {
			m.DM.Disable()
		}
		return nil
	case m.Desc.Control:
		if math.IsNaN(sp.Value) || math.IsInf(sp.Value, 0) {
			return fmt.Errorf("%w: %s value %v", ErrUnsupportedSetpoint, sp.Kind, sp.Value)
		}
		glog.V(2).Infof("motor %s: %s setpoint %v", m.Desc.Name, sp.Kind, sp.Value)
		m.setpoint = sp.Value
		return nil
	}
	return fmt.Errorf("%w: %s on %s controlled motor %s", ErrUnsupportedSetpoint, sp.Kind, m.Desc.Control, m.Desc.Name)
}

func (m *Motor) control(dt time.Duration) {
	var err error
	if m.DJI != nil {
		err = m.DJI.SetCurrent(m.djiOutput(dt))
	} else if m.enabled {
		err = m.DM.Set(m.dmCommand())
	}
	switch {
	case err == nil:
	case errors.Is(err, device.ErrOutOfRange):
		m.clamped++
		if n := m.clamped; n&(n-1) == 0 && glog.V(2) {
			glog.Infof("motor %s: %v (%d clamped)", m.Desc.Name, err, n)
		}
	default:
		glog.Errorf("motor %s: %v", m.Desc.Name, err)
	}
}

// Clamped returns the number of commands clamped to the motor limits.
func (m *Motor) Clamped() uint64 {
	return m.clamped
}

func (m *Motor) djiOutput(dt time.Duration) int {
	if !m.enabled {
		m.PID.Reset()
		return 0
	}
	st := m.DJI.State()
	var out float64
	switch m.Desc.Control {
	case ControlRaw:
		out = m.setpoint
	case ControlVelocity:
		if st.Updated.IsZero() {
			return 0
		}
		out = m.PID.Update(m.setpoint, st.Velocity, dt)
	case ControlPosition:
		if st.Updated.IsZero() {
			return 0
		}
		out = m.PID.Update(m.setpoint, st.Angle, dt)
	}
	// one past the limit so SetCurrent still reports the clamp.
	limit := float64(m.DJI.Properties().CommandLimit) + 1
	return int(math.Round(algorithm.AbsConstrain(out, limit)))
}

func (m *Motor) dmCommand() dm.Command {
	gains := m.Desc.PID
	switch m.DM.Mode() {
	case dm.ModeSpeed:
		return dm.Command{Velocity: m.setpoint}
	case dm.ModeSpeedPosition:
		return dm.Command{Position: m.setpoint}
	}
	switch m.Desc.Control {
	case ControlPosition:
		return dm.Command{Position: m.setpoint, Kp: gains.Kp, Kd: gains.Kd}
	case ControlVelocity:
		return dm.Command{Velocity: m.setpoint, Kd: gains.Kd}
	}
	return dm.Command{Torque: m.setpoint}
}

// State returns the telemetry state of the motor.
func (m *Motor) State(now time.Time, maxAge time.Duration) *msgs.MotorState {
	ms := &msgs.MotorState{
		Name:   m.Desc.Name,
		Kind:   m.Desc.Kind,
		ID:     uint32(m.Desc.ID),
		Online: m.Online(now, maxAge),
	}
	if m.DJI != nil {
		st := m.DJI.State()
		ms.Position = st.Angle
		ms.Velocity = st.Velocity
		ms.Effort = st.Current
		ms.Temperature = uint32(st.Temperature)
		ms.Command = float64(m.DJI.Command())
		ms.UpdatedNs = unixNano(st.Updated)
		return ms
	}
	st := m.DM.State()
	ms.ID = m.DM.Settings().SlaveID
	ms.Position = st.Position
	ms.Velocity = st.Velocity
	ms.Effort = st.Torque
	ms.Temperature = uint32(st.RotorTemp)
	ms.Fault = st.Fault
	ms.Status = st.Status.String()
	ms.Command = m.setpoint
	ms.UpdatedNs = unixNano(st.Updated)
	return ms
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}
