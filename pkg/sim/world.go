package sim

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/rm.go/pkg/framework"
	"github.com/robotalks/rm.go/pkg/hal/can"
)

// World connects simulated motors to a SimBus: frames sent on the bus are
// delivered to the motors, and each Step injects their feedback.
type World struct {
	Bus *can.SimBus

	lock    sync.RWMutex
	motors  []*Motor
	dropped atomic.Uint64
}

// NewWorld creates a World and hooks it to bus.
func NewWorld(bus *can.SimBus) *World {
	w := &World{Bus: bus}
	bus.OnSend(w.received)
	return w
}

// AddMotor adds simulated motors.
func (w *World) AddMotor(motors ...*Motor) *World {
	w.lock.Lock()
	w.motors = append(w.motors, motors...)
	w.lock.Unlock()
	return w
}

// Motors returns the simulated motors.
func (w *World) Motors() []*Motor {
	w.lock.RLock()
	defer w.lock.RUnlock()
	return append([]*Motor(nil), w.motors...)
}

// Dropped is the number of feedback frames not injected as the bus
// receive buffer was full.
func (w *World) Dropped() uint64 {
	return w.dropped.Load()
}

// Step advances all motors by dt and injects their feedback.
func (w *World) Step(dt time.Duration) {
	for _, m := range w.Motors() {
		if !w.Bus.TryInject(m.Step(dt)) {
			if n := w.dropped.Add(1); n&(n-1) == 0 {
				glog.Warningf("sim %s: %d feedback frames dropped", w.Bus.Name(), n)
			}
		}
	}
}

// AddToLoop implements fx.LoopAdder. Motors are stepped at the top priority
// of each tick so their feedback is in flight before the control laws run.
func (w *World) AddToLoop(l *fx.Loop) {
	l.AddController(fx.PrLvTop, fx.ControlFunc(func(cc fx.ControlContext) error {
		w.Step(cc.Dt())
		return nil
	}))
}

func (w *World) received(f can.Frame) {
	for _, m := range w.Motors() {
		m.HandleFrame(f)
	}
}
