package robot

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/rm.go/pkg/device"
	"github.com/robotalks/rm.go/pkg/device/dm"
	fx "github.com/robotalks/rm.go/pkg/framework"
	"github.com/robotalks/rm.go/pkg/hal/can"
	"github.com/robotalks/rm.go/pkg/telemetry/msgs"
)

const simRobot = `
robot-id: test
rate: 1000
buses:
  - name: sim0
    kind: sim
    queue: 32
motors:
  - name: wheel
    bus: sim0
    kind: M3508
    id: 1
    enabled: true
    control: velocity
    pid: {kp: 367, ki: 3667}
  - name: yaw
    bus: sim0
    kind: GM6020
    id: 1
  - name: pitch
    bus: sim0
    kind: dm-mit
    control: position
    pid: {kp: 20, kd: 1}
    dm: {slave-id: 3, master-id: 0x13, pmax: 12.5, vmax: 30, tmax: 10}
`

type tick struct {
	now time.Time
	dt  time.Duration
	n   uint64
}

func (t *tick) Context() context.Context { return context.Background() }
func (t *tick) Time() time.Time          { return t.now }
func (t *tick) Dt() time.Duration        { return t.dt }
func (t *tick) Tick() uint64             { return t.n }
func (t *tick) PriorityLevel() int       { return fx.PrLvControl }

func buildSim(t *testing.T, text string) *Robot {
	desc, err := Parse([]byte(text))
	require.NoError(t, err)
	r, err := Build(desc, nil)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

// step runs one tick synchronously: simulate, receive, control, transmit.
func step(t *testing.T, r *Robot, cc *tick) {
	cc.n++
	cc.now = cc.now.Add(cc.dt)
	for _, b := range r.Buses {
		b.World.Step(cc.dt)
		for {
			f, err := b.Bus.Receive(time.Microsecond)
			if errors.Is(err, can.ErrTimeout) {
				break
			}
			require.NoError(t, err)
			b.Manager.Dispatch(f)
		}
	}
	require.NoError(t, r.Control(cc))
	for _, b := range r.Buses {
		b.Manager.TransmitAll()
	}
}

func TestParseDefaults(t *testing.T) {
	desc, err := Parse([]byte(`
buses:
  - name: can0
motors:
  - bus: can0
    kind: M2006
    id: 2
`))
	require.NoError(t, err)
	assert.Equal(t, DefaultRate, desc.Rate)
	assert.Equal(t, DefaultStaleAfter, desc.StaleAfter)
	assert.Equal(t, can.KindSocketCAN, desc.Buses[0].Kind)
	assert.Equal(t, can.DefaultQueueCapacity, desc.Buses[0].Queue)
	assert.Equal(t, can.DefaultReceiveTimeout, desc.Buses[0].ReceiveTimeout)
	assert.Equal(t, "M2006-2", desc.Motors[0].Name)
	assert.Equal(t, ControlRaw, desc.Motors[0].Control)
}

func TestParseErrors(t *testing.T) {
	testCases := []struct {
		name string
		text string
	}{
		{"unnamed-bus", "buses: [{kind: sim}]"},
		{"dup-bus", "buses: [{name: a}, {name: a}]"},
		{"unknown-bus", "buses: [{name: a}]\nmotors: [{name: m, bus: b, kind: M3508, id: 1}]"},
		{"unknown-kind", "buses: [{name: a}]\nmotors: [{name: m, bus: a, kind: X, id: 1}]"},
		{"unknown-control", "buses: [{name: a}]\nmotors: [{name: m, bus: a, kind: M3508, id: 1, control: torque}]"},
		{"dup-motor", "buses: [{name: a}]\nmotors: [{name: m, bus: a, kind: M3508, id: 1}, {name: m, bus: a, kind: M3508, id: 2}]"},
		{"yaml", "buses: {"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.text))
			require.Error(t, err)
		})
	}
}

func TestBuildDuplicateIdentifier(t *testing.T) {
	desc, err := Parse([]byte(`
buses: [{name: sim0, kind: sim}]
motors:
  - {name: a, bus: sim0, kind: M3508, id: 5}
  - {name: b, bus: sim0, kind: GM6020, id: 1}
`))
	require.NoError(t, err)
	var opened *can.SimBus
	_, err = Build(desc, func(bd BusDesc) (can.Bus, error) {
		opened = can.NewSimBus(bd.Name, bd.Queue)
		return opened, nil
	})
	require.ErrorIs(t, err, device.ErrDuplicateIdentifier)
	require.ErrorIs(t, opened.Send(can.Frame{ID: 1}), can.ErrClosed)
}

func TestVelocityLoop(t *testing.T) {
	r := buildSim(t, simRobot)
	wheel, ok := r.Motor("wheel")
	require.True(t, ok)
	require.NoError(t, r.Submit("wheel", &msgs.Setpoint{Kind: msgs.SetpointVelocity, Value: 10}))

	cc := &tick{now: time.Unix(0, 0), dt: time.Millisecond}
	for i := 0; i < 2000; i++ {
		step(t, r, cc)
	}
	assert.Equal(t, 10.0, wheel.Setpoint())
	assert.InDelta(t, 10, wheel.DJI.State().Velocity, 0.2)
	assert.True(t, wheel.Online(time.Now(), time.Second))

	// yaw is disabled, it's commanded 0.
	yaw, _ := r.Motor("yaw")
	assert.Zero(t, yaw.DJI.Command())
	assert.InDelta(t, 0, yaw.DJI.State().Velocity, 1e-9)
}

func TestDisableStopsOutput(t *testing.T) {
	r := buildSim(t, simRobot)
	wheel, _ := r.Motor("wheel")
	cc := &tick{now: time.Unix(0, 0), dt: time.Millisecond}
	require.NoError(t, r.Submit("wheel", &msgs.Setpoint{Kind: msgs.SetpointVelocity, Value: 5}))
	for i := 0; i < 100; i++ {
		step(t, r, cc)
	}
	assert.NotZero(t, wheel.DJI.Command())
	require.NoError(t, r.Submit("wheel", &msgs.Setpoint{Kind: msgs.SetpointDisable}))
	step(t, r, cc)
	assert.False(t, wheel.Enabled())
	assert.Zero(t, wheel.DJI.Command())
}

func TestDMCommands(t *testing.T) {
	r := buildSim(t, simRobot)
	pitch, _ := r.Motor("pitch")
	bus := r.Buses[0].Bus.(*can.SimBus)
	cc := &tick{now: time.Unix(0, 0), dt: time.Millisecond}

	// disabled: nothing sent for the DM motor.
	step(t, r, cc)
	for _, f := range bus.TakeSent() {
		assert.NotEqual(t, uint32(3), f.ID)
	}

	require.NoError(t, r.ApplySetpoint("pitch", &msgs.Setpoint{Kind: msgs.SetpointEnable}))
	require.NoError(t, r.ApplySetpoint("pitch", &msgs.Setpoint{Kind: msgs.SetpointPosition, Value: 1}))
	step(t, r, cc)
	var dmFrames []can.Frame
	for _, f := range bus.TakeSent() {
		if f.ID == 3 {
			dmFrames = append(dmFrames, f)
		}
	}
	require.Len(t, dmFrames, 2)
	assert.Equal(t, byte(0xFC), dmFrames[0].Data[7])
	cmd := pitch.DM.Command()
	assert.Equal(t, 1.0, cmd.Position)
	assert.Equal(t, 20.0, cmd.Kp)
	assert.Equal(t, 1.0, cmd.Kd)
}

func TestApplySetpointErrors(t *testing.T) {
	r := buildSim(t, simRobot)
	require.ErrorIs(t, r.ApplySetpoint("nope", &msgs.Setpoint{Kind: msgs.SetpointRaw}), ErrUnknownDevice)
	require.ErrorIs(t, r.Submit("nope", &msgs.Setpoint{Kind: msgs.SetpointRaw}), ErrUnknownDevice)
	require.ErrorIs(t, r.ApplySetpoint("wheel", &msgs.Setpoint{Kind: msgs.SetpointPosition}), ErrUnsupportedSetpoint)
	require.ErrorIs(t, r.ApplySetpoint("yaw", &msgs.Setpoint{Kind: msgs.SetpointVelocity}), ErrUnsupportedSetpoint)
	require.NoError(t, r.ApplySetpoint("yaw", &msgs.Setpoint{Kind: msgs.SetpointRaw, Value: 100}))
}

func TestSnapshot(t *testing.T) {
	r := buildSim(t, simRobot)
	cc := &tick{now: time.Unix(0, 0), dt: time.Millisecond}
	step(t, r, cc)
	s := r.Snapshot()
	require.Len(t, s.Motors, 3)
	assert.Equal(t, "wheel", s.Motors[0].Name)
	assert.Equal(t, KindM3508, s.Motors[0].Kind)
	assert.True(t, s.Motors[0].Online)
	assert.Equal(t, "pitch", s.Motors[2].Name)
	assert.EqualValues(t, 3, s.Motors[2].ID)
	assert.False(t, s.Motors[2].Online)
	assert.Equal(t, "disabled", s.Motors[2].Status)
	require.Len(t, s.Buses, 1)
	assert.EqualValues(t, 2, s.Buses[0].Dispatched)
	assert.Empty(t, s.Receivers)
}

func TestRawSetpointClamped(t *testing.T) {
	const text = `
buses:
  - name: sim0
    kind: sim
motors:
  - name: roller
    bus: sim0
    kind: M3508
    id: 2
    enabled: true
`
	cases := []struct {
		name   string
		value  float64
		expect int
		clamp  bool
	}{
		{"above limit", 20000, 16384, true},
		{"huge", 1e19, 16384, true},
		{"enormous", 1e30, 16384, true},
		{"huge negative", -1e19, -16384, true},
		{"inside", -1200, -1200, false},
	}
	r := buildSim(t, text)
	m, ok := r.Motor("roller")
	require.True(t, ok)
	var clamped uint64
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.NoError(t, m.Apply(&msgs.Setpoint{Kind: msgs.SetpointRaw, Value: c.value}))
			m.control(time.Millisecond)
			assert.Equal(t, c.expect, m.DJI.Command())
			if c.clamp {
				clamped++
			}
			assert.Equal(t, clamped, m.Clamped())
		})
	}
}

func TestBuildValidatesModeSettings(t *testing.T) {
	const text = `
buses:
  - name: sim0
    kind: sim
motors:
  - name: lift
    bus: sim0
    kind: dm-speed-position
    control: position
    dm: {slave-id: 2, master-id: 0x12, pmax: 12.5, vmax: 30, tmax: 10}
    speed-limit: %v
`
	desc, err := Parse([]byte(fmt.Sprintf(text, 40)))
	require.NoError(t, err)
	_, err = Build(desc, nil)
	require.ErrorIs(t, err, dm.ErrInvalidSettings)

	r := buildSim(t, fmt.Sprintf(text, 4))
	lift, ok := r.Motor("lift")
	require.True(t, ok)
	require.NoError(t, lift.Apply(&msgs.Setpoint{Kind: msgs.SetpointPosition, Value: 2}))
	lift.control(time.Millisecond)
	assert.Equal(t, dm.Command{}, lift.DM.Command())
	require.NoError(t, lift.Apply(&msgs.Setpoint{Kind: msgs.SetpointEnable}))
	lift.control(time.Millisecond)
	assert.Equal(t, dm.Command{Position: 2, Velocity: 4}, lift.DM.Command())
}
