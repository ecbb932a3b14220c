// Package dr16 decodes the DBUS frames of the DR16 remote receiver.
package dr16

import (
	"encoding/binary"
	"sync/atomic"
	"time"

	"github.com/robotalks/rm.go/pkg/control/deadline"
	"github.com/robotalks/rm.go/pkg/device"
)

// Frame layout constants.
const (
	FrameSize     = 18
	ChannelOffset = 1024
	ChannelMin    = 364
	ChannelMax    = 1684
)

// Switch is the position of a 3-position switch.
type Switch uint8

// Switch positions.
const (
	SwitchUnknown Switch = 0
	SwitchUp      Switch = 1
	SwitchDown    Switch = 2
	SwitchMid     Switch = 3
)

func (s Switch) String() string {
	switch s {
	case SwitchUp:
		return "up"
	case SwitchDown:
		return "down"
	case SwitchMid:
		return "mid"
	}
	return "unknown"
}

// Keys is the keyboard bitmap.
type Keys uint16

// Keyboard bits.
const (
	KeyW Keys = 1 << iota
	KeyS
	KeyA
	KeyD
	KeyShift
	KeyCtrl
	KeyQ
	KeyE
	KeyR
	KeyF
	KeyG
	KeyZ
	KeyX
	KeyC
	KeyV
	KeyB
)

// Pressed tells whether all of keys are pressed.
func (k Keys) Pressed(keys Keys) bool {
	return k&keys == keys
}

// Mouse is the mouse state.
type Mouse struct {
	X, Y, Z     int16
	Left, Right bool
}

// State is a decoded frame. Channels and Dial are offset so the
// centre is 0 (range ±660).
type State struct {
	Channels [4]int16
	S1, S2   Switch
	Mouse    Mouse
	Keys     Keys
	Dial     int16
	Updated  time.Time
}

// Receiver decodes DBUS frames.
type Receiver struct {
	Clock deadline.Clock

	name  string
	state atomic.Pointer[State]
}

// NewReceiver creates a Receiver.
func NewReceiver(name string) *Receiver {
	if name == "" {
		name = "dr16"
	}
	r := &Receiver{Clock: time.Now, name: name}
	r.state.Store(&State{})
	return r
}

// Name implements device.Device style naming.
func (r *Receiver) Name() string {
	return r.name
}

// State returns the latest snapshot. It's never nil.
func (r *Receiver) State() *State {
	return r.state.Load()
}

// HandleFrame implements serial.FrameHandler.
func (r *Receiver) HandleFrame(p []byte) error {
	return r.Decode(p)
}

// Decode decodes one frame. On error the previous state is retained.
func (r *Receiver) Decode(p []byte) error {
	if len(p) != FrameSize {
		return device.Malformed("%s: %d bytes, expect %d", r.name, len(p), FrameSize)
	}
	raw := [4]uint16{
		(uint16(p[0]) | uint16(p[1])<<8) & 0x7FF,
		(uint16(p[1])>>3 | uint16(p[2])<<5) & 0x7FF,
		(uint16(p[2])>>6 | uint16(p[3])<<2 | uint16(p[4])<<10) & 0x7FF,
		(uint16(p[4])>>1 | uint16(p[5])<<7) & 0x7FF,
	}
	st := &State{
		S1: Switch((p[5] >> 6) & 0x03),
		S2: Switch((p[5] >> 4) & 0x03),
		Mouse: Mouse{
			X:     int16(binary.LittleEndian.Uint16(p[6:])),
			Y:     int16(binary.LittleEndian.Uint16(p[8:])),
			Z:     int16(binary.LittleEndian.Uint16(p[10:])),
			Left:  p[12] != 0,
			Right: p[13] != 0,
		},
		Keys:    Keys(binary.LittleEndian.Uint16(p[14:])),
		Dial:    int16(binary.LittleEndian.Uint16(p[16:])&0x7FF) - ChannelOffset,
		Updated: r.Clock(),
	}
	for n, v := range raw {
		if v < ChannelMin || v > ChannelMax {
			return device.Malformed("%s: channel %d value %d out of range", r.name, n, v)
		}
		st.Channels[n] = int16(v) - ChannelOffset
	}
	r.state.Store(st)
	return nil
}
