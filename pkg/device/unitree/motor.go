// Package unitree drives Unitree joint motors over an RS-485 serial link.
package unitree

import (
	"encoding/binary"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robotalks/rm.go/pkg/control/deadline"
	"github.com/robotalks/rm.go/pkg/device"
)

// Frame sizes and markers.
const (
	FeedbackSize = 78
	CommandSize  = 34

	headStart0 = 0xFE
	headStart1 = 0xEE

	// ModeFOC is the closed loop mode sent with every command.
	ModeFOC = 10
)

// Fixed-point scales of the wire fields.
const (
	TauScale  = 256
	VelScale  = 128
	KpScale   = 2048
	KdScale   = 1024
	PosScale  = 16384 / (2 * math.Pi)
	GyroScale = 0.00107993176
	AccScale  = 0.0023911132
)

// Command is the hybrid position/velocity/torque target:
// tau + kp*(pos-p) + kd*(vel-v).
type Command struct {
	Tau float64 // N·m
	Vel float64 // rad/s
	Pos float64 // rad
	Kp  float64
	Kd  float64
}

// State is the decoded feedback.
type State struct {
	Mode    uint8
	Temp    int8
	Error   uint8
	Tau     float64
	Vel     float64
	Acc     int16
	Pos     float64
	Gyro    [3]float64
	Accel   [3]float64
	Updated time.Time
}

// Motor is one Unitree motor addressed by ID on a serial link.
type Motor struct {
	Clock deadline.Clock

	name  string
	id    uint8
	state atomic.Pointer[State]

	lock  sync.Mutex
	frame [CommandSize]byte
}

// NewMotor creates a Motor. The command frame starts as zero torque.
func NewMotor(name string, id uint8) *Motor {
	m := &Motor{Clock: time.Now, name: name, id: id}
	m.state.Store(&State{})
	m.SetCommand(Command{})
	return m
}

// Name returns the motor name.
func (m *Motor) Name() string {
	return m.name
}

// ID returns the motor ID.
func (m *Motor) ID() uint8 {
	return m.id
}

// State returns the latest feedback. It's never nil.
func (m *Motor) State() *State {
	return m.state.Load()
}

// HandleFrame implements serial.FrameHandler.
func (m *Motor) HandleFrame(p []byte) error {
	return m.Decode(p)
}

// Decode decodes a feedback frame. On error the previous state is retained.
func (m *Motor) Decode(p []byte) error {
	if len(p) != FeedbackSize {
		return device.Malformed("%s: %d bytes, expect %d", m.name, len(p), FeedbackSize)
	}
	if p[0] != headStart0 || p[1] != headStart1 {
		return device.Malformed("%s: bad header % X", m.name, p[:2])
	}
	if p[2] != m.id {
		return device.Malformed("%s: feedback from motor %d", m.name, p[2])
	}
	i16 := func(off int) int16 { return int16(binary.LittleEndian.Uint16(p[off:])) }
	st := &State{
		Mode:    p[4],
		Temp:    int8(p[6]),
		Error:   p[7],
		Tau:     float64(i16(12)) / TauScale,
		Vel:     float64(i16(14)) / VelScale,
		Acc:     i16(26),
		Pos:     float64(int32(binary.LittleEndian.Uint32(p[30:]))) / PosScale,
		Updated: m.Clock(),
	}
	for n := 0; n < 3; n++ {
		st.Gyro[n] = float64(i16(38+n*2)) * GyroScale
		st.Accel[n] = float64(i16(44+n*2)) * AccScale
	}
	m.state.Store(st)
	return nil
}

// SetTau commands a pure torque.
func (m *Motor) SetTau(tau float64) error {
	return m.SetCommand(Command{Tau: tau})
}

// SetCommand encodes cmd into the command frame. Fields outside the wire
// range are clamped and reported with a RangeError, the first one wins.
func (m *Motor) SetCommand(cmd Command) error {
	var (
		buf [CommandSize]byte
		err error
	)
	fixed := func(v, scale, limit float64) float64 {
		raw := v * scale
		if math.IsNaN(raw) {
			raw = 0
		}
		if raw > limit || raw < -limit-1 {
			clamped := math.Max(-limit-1, math.Min(limit, raw))
			if err == nil {
				err = &device.RangeError{Device: m.name, Requested: v, Applied: clamped / scale}
			}
			raw = clamped
		}
		return math.Trunc(raw)
	}
	buf[0], buf[1], buf[2] = headStart0, headStart1, m.id
	buf[4] = ModeFOC
	buf[5] = 0xFF
	binary.LittleEndian.PutUint16(buf[12:], uint16(int16(fixed(cmd.Tau, TauScale, math.MaxInt16))))
	binary.LittleEndian.PutUint16(buf[14:], uint16(int16(fixed(cmd.Vel, VelScale, math.MaxInt16))))
	binary.LittleEndian.PutUint32(buf[16:], uint32(int32(fixed(cmd.Pos, PosScale, math.MaxInt32))))
	binary.LittleEndian.PutUint16(buf[20:], uint16(int16(fixed(cmd.Kp, KpScale, math.MaxInt16))))
	binary.LittleEndian.PutUint16(buf[22:], uint16(int16(fixed(cmd.Kd, KdScale, math.MaxInt16))))
	binary.LittleEndian.PutUint32(buf[30:], crc32Words(buf[:28]))

	m.lock.Lock()
	m.frame = buf
	m.lock.Unlock()
	return err
}

// Encode returns a copy of the current command frame.
func (m *Motor) Encode() []byte {
	m.lock.Lock()
	defer m.lock.Unlock()
	frame := m.frame
	return frame[:]
}
