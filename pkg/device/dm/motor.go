package dm

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robotalks/rm.go/pkg/device"
	"github.com/robotalks/rm.go/pkg/hal/can"
)

// Field widths of the MIT command and the feedback frame.
const (
	posBits    = 16
	velBits    = 12
	torqueBits = 12
	kpBits     = 12
	kdBits     = 12
)

// Instruction is a control instruction carried by the last byte of an
// otherwise 0xFF frame.
type Instruction byte

// Instructions.
const (
	InstrClearError Instruction = 0xFB
	InstrEnable     Instruction = 0xFC
	InstrDisable    Instruction = 0xFD
	InstrSaveZero   Instruction = 0xFE
)

// Command is the setpoint of a motor. Fields not used by the configured
// mode are ignored: Speed uses Velocity only, SpeedPosition uses Position
// and Velocity.
type Command struct {
	Position float64
	Velocity float64
	Torque   float64
	Kp       float64
	Kd       float64
}

// State is a decoded feedback snapshot.
type State struct {
	Status   Status
	Fault    bool
	Position float64
	Velocity float64
	Torque   float64
	// temperatures in °C.
	MOSTemp   uint8
	RotorTemp uint8
	Updated   time.Time
}

// Driver is the mode independent view of a Motor.
type Driver interface {
	device.Device
	device.Encoder
	Mode() Mode
	Settings() Base
	Set(Command) error
	Command() Command
	State() *State
	Enable()
	Disable()
	SaveZero()
	ClearError()
}

// Motor drives one DM motor configured in the mode of settings S.
type Motor[S Settings] struct {
	settings  S
	base      Base
	name      string
	mgr       *device.Manager
	controlID uint32

	state atomic.Pointer[State]

	lock         sync.Mutex
	command      Command
	pending      bool
	instructions []Instruction
}

// New validates settings, creates the motor and registers it to mgr under
// its master identifier.
func New[S Settings](mgr *device.Manager, settings S) (*Motor[S], error) {
	base := settings.base()
	if err := settings.validate(); err != nil {
		return nil, err
	}
	m := &Motor[S]{
		settings:  settings,
		base:      base,
		name:      base.Name,
		mgr:       mgr,
		controlID: settings.controlID(),
	}
	if m.name == "" {
		m.name = fmt.Sprintf("dm-%s-%d", settings.mode(), base.SlaveID)
	}
	m.state.Store(&State{})
	if err := mgr.Register(base.MasterID, m); err != nil {
		return nil, fmt.Errorf("%s: %w", m.name, err)
	}
	return m, nil
}

// Name implements device.Device.
func (m *Motor[S]) Name() string {
	return m.name
}

// Mode returns the control mode.
func (m *Motor[S]) Mode() Mode {
	return m.settings.mode()
}

// Settings returns the common settings.
func (m *Motor[S]) Settings() Base {
	return m.base
}

// ControlID returns the identifier commands are sent to.
func (m *Motor[S]) ControlID() uint32 {
	return m.controlID
}

// State returns the latest snapshot. It's never nil.
func (m *Motor[S]) State() *State {
	return m.state.Load()
}

// Command returns the last command after clamping.
func (m *Motor[S]) Command() Command {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.command
}

// Set stores the command to be sent on the next Encode. Out of range
// fields are clamped, the first one is reported as *device.RangeError.
func (m *Motor[S]) Set(cmd Command) error {
	c := clamper{device: m.name}
	m.settings.encode(&m.base, &cmd, &c)
	m.lock.Lock()
	m.command = cmd
	m.pending = true
	m.lock.Unlock()
	return c.err
}

// Enable queues the enable instruction.
func (m *Motor[S]) Enable() { m.queue(InstrEnable) }

// Disable queues the disable instruction.
func (m *Motor[S]) Disable() { m.queue(InstrDisable) }

// SaveZero queues the instruction setting the current position as zero.
func (m *Motor[S]) SaveZero() { m.queue(InstrSaveZero) }

// ClearError queues the instruction clearing a latched fault.
func (m *Motor[S]) ClearError() { m.queue(InstrClearError) }

func (m *Motor[S]) queue(instr Instruction) {
	m.lock.Lock()
	m.instructions = append(m.instructions, instr)
	m.lock.Unlock()
}

// Encode implements device.Encoder. Queued instructions go before the
// command.
func (m *Motor[S]) Encode() []can.Frame {
	m.lock.Lock()
	instructions := m.instructions
	m.instructions = nil
	cmd, pending := m.command, m.pending
	m.pending = false
	m.lock.Unlock()

	frames := make([]can.Frame, 0, len(instructions)+1)
	for _, instr := range instructions {
		f := can.Frame{ID: m.controlID, Len: 8}
		for i := 0; i < 7; i++ {
			f.Data[i] = 0xFF
		}
		f.Data[7] = byte(instr)
		frames = append(frames, f)
	}
	if pending {
		frames = append(frames, m.settings.encode(&m.base, &cmd, nil))
	}
	return frames
}

// Decode implements device.Device.
func (m *Motor[S]) Decode(f can.Frame) error {
	if f.Len != 8 {
		return device.Malformed("%s: DLC %d, expect 8", m.name, f.Len)
	}
	d := f.Data
	if id := uint32(d[0] & 0x0F); id != m.base.SlaveID&0x0F {
		return device.Malformed("%s: feedback of slave %d", m.name, id)
	}
	pos := uint32(d[1])<<8 | uint32(d[2])
	vel := uint32(d[3])<<4 | uint32(d[4])>>4
	torque := uint32(d[4]&0x0F)<<8 | uint32(d[5])
	status := Status(d[0] >> 4)
	b := &m.base
	m.state.Store(&State{
		Status:    status,
		Fault:     status.Fault(),
		Position:  UintToFloat(pos, -b.PMax, b.PMax, posBits),
		Velocity:  UintToFloat(vel, -b.VMax, b.VMax, velBits),
		Torque:    UintToFloat(torque, -b.TMax, b.TMax, torqueBits),
		MOSTemp:   d[6],
		RotorTemp: d[7],
		Updated:   m.mgr.Clock(),
	})
	return nil
}

func (s MITSettings) encode(b *Base, cmd *Command, c *clamper) can.Frame {
	cmd.Position = c.clamp("position", cmd.Position, -b.PMax, b.PMax)
	cmd.Velocity = c.clamp("velocity", cmd.Velocity, -b.VMax, b.VMax)
	cmd.Torque = c.clamp("torque", cmd.Torque, -b.TMax, b.TMax)
	kpLimit, kdLimit := s.gainLimits()
	cmd.Kp = c.clamp("kp", cmd.Kp, 0, kpLimit)
	cmd.Kd = c.clamp("kd", cmd.Kd, 0, kdLimit)

	pos := FloatToUint(cmd.Position, -b.PMax, b.PMax, posBits)
	vel := FloatToUint(cmd.Velocity, -b.VMax, b.VMax, velBits)
	kp := FloatToUint(cmd.Kp, 0, KpMax, kpBits)
	kd := FloatToUint(cmd.Kd, 0, KdMax, kdBits)
	torque := FloatToUint(cmd.Torque, -b.TMax, b.TMax, torqueBits)

	f := can.Frame{ID: s.controlID(), Len: 8}
	f.Data[0] = byte(pos >> 8)
	f.Data[1] = byte(pos)
	f.Data[2] = byte(vel >> 4)
	f.Data[3] = byte(vel&0x0F)<<4 | byte(kp>>8)
	f.Data[4] = byte(kp)
	f.Data[5] = byte(kd >> 4)
	f.Data[6] = byte(kd&0x0F)<<4 | byte(torque>>8)
	f.Data[7] = byte(torque)
	return f
}

func (s SpeedSettings) encode(b *Base, cmd *Command, c *clamper) can.Frame {
	cmd.Velocity = c.clamp("velocity", cmd.Velocity, -b.VMax, b.VMax)
	f := can.Frame{ID: s.controlID(), Len: 4}
	binary.LittleEndian.PutUint32(f.Data[0:], math.Float32bits(float32(cmd.Velocity)))
	return f
}

func (s SpeedPositionSettings) encode(b *Base, cmd *Command, c *clamper) can.Frame {
	cmd.Position = c.clamp("position", cmd.Position, -b.PMax, b.PMax)
	if cmd.Velocity == 0 {
		cmd.Velocity = s.SpeedLimit
	}
	cmd.Velocity = c.clamp("velocity", cmd.Velocity, 0, s.SpeedLimit)
	f := can.Frame{ID: s.controlID(), Len: 8}
	binary.LittleEndian.PutUint32(f.Data[0:], math.Float32bits(float32(cmd.Position)))
	binary.LittleEndian.PutUint32(f.Data[4:], math.Float32bits(float32(cmd.Velocity)))
	return f
}

// clamper clamps command fields and keeps the first violation.
// A nil clamper clamps silently.
type clamper struct {
	device string
	err    error
}

func (c *clamper) clamp(field string, v, lo, hi float64) float64 {
	applied := v
	if math.IsNaN(v) {
		applied = 0
	} else if v < lo {
		applied = lo
	} else if v > hi {
		applied = hi
	}
	if applied != v && c != nil && c.err == nil {
		c.err = &device.RangeError{Device: c.device + "." + field, Requested: v, Applied: applied}
	}
	return applied
}
