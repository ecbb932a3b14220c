package robot

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/rm.go/pkg/device"
	"github.com/robotalks/rm.go/pkg/device/dr16"
	fx "github.com/robotalks/rm.go/pkg/framework"
	"github.com/robotalks/rm.go/pkg/hal/can"
	"github.com/robotalks/rm.go/pkg/sim"
	"github.com/robotalks/rm.go/pkg/telemetry/msgs"
)

var (
	// ErrUnknownDevice indicates no device has the name.
	ErrUnknownDevice = errors.New("unknown device")
	// ErrUnsupportedSetpoint indicates the setpoint doesn't fit the device.
	ErrUnsupportedSetpoint = errors.New("unsupported setpoint")
)

// Bus is a CAN bus with its manager and bridge.
type Bus struct {
	Desc    BusDesc
	Bus     can.Bus
	Manager *device.Manager
	Bridge  *can.Bridge
	// World is set on simulated buses.
	World *sim.World
}

// Robot is the assembled robot.
type Robot struct {
	Desc     *Description
	Buses    []*Bus
	Motors   []*Motor
	Receiver *dr16.Link

	motors map[string]*Motor

	lock    sync.Mutex
	pending map[string]*msgs.Setpoint
	order   []string

	stale map[string]bool
}

// Opener opens a bus from its description. It's replaceable for tests.
type Opener func(BusDesc) (can.Bus, error)

// OpenBus is the default Opener.
func OpenBus(desc BusDesc) (can.Bus, error) {
	return can.Open(desc.Kind, desc.Name, desc.Queue)
}

// Build opens buses and creates the devices of desc. On error everything
// opened is closed.
func Build(desc *Description, open Opener) (*Robot, error) {
	if open == nil {
		open = OpenBus
	}
	r := &Robot{
		Desc:    desc,
		motors:  make(map[string]*Motor),
		pending: make(map[string]*msgs.Setpoint),
		stale:   make(map[string]bool),
	}
	if err := r.build(open); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

func (r *Robot) build(open Opener) error {
	desc := r.Desc
	buses := make(map[string]*Bus)
	for _, bd := range desc.Buses {
		bus, err := open(bd)
		if err != nil {
			return fmt.Errorf("bus %s: %w", bd.Name, err)
		}
		b := &Bus{Desc: bd, Bus: bus, Manager: device.NewManager(bus)}
		b.Bridge = can.NewBridge(bus, b.Manager)
		b.Bridge.Capacity = bd.Queue
		b.Bridge.ReceiveTimeout = bd.ReceiveTimeout
		if simBus, ok := bus.(*can.SimBus); ok {
			b.World = sim.NewWorld(simBus)
		}
		r.Buses = append(r.Buses, b)
		buses[bd.Name] = b
	}

	for _, md := range desc.Motors {
		m, err := newMotor(md, buses[md.Bus])
		if err != nil {
			return fmt.Errorf("motor %s: %w", md.Name, err)
		}
		r.Motors = append(r.Motors, m)
		r.motors[md.Name] = m
	}

	if rd := desc.Receiver; rd != nil && rd.Device != "" {
		link, err := dr16.Open(rd.Device)
		if err != nil {
			return fmt.Errorf("receiver %s: %w", rd.Device, err)
		}
		r.Receiver = link
	}
	return nil
}

// Motor looks up a motor by name.
func (r *Robot) Motor(name string) (*Motor, bool) {
	m, ok := r.motors[name]
	return m, ok
}

// Close closes the buses and the receiver.
func (r *Robot) Close() error {
	var errs fx.AggregatedError
	for _, b := range r.Buses {
		errs.Add(b.Bus.Close())
	}
	if r.Receiver != nil {
		errs.Add(r.Receiver.Port.Close())
	}
	return errs.Aggregate()
}

var _ io.Closer = (*Robot)(nil)

// AddToLoop implements fx.LoopAdder.
func (r *Robot) AddToLoop(l *fx.Loop) {
	for _, b := range r.Buses {
		if b.World != nil {
			l.Add(b.World)
		}
		l.AddRunnable(b.Bridge)
		l.Add(b.Manager)
	}
	if r.Receiver != nil {
		l.AddRunnable(r.Receiver)
	}
	l.AddController(fx.PrLvControl, fx.ControlFunc(r.Control))
	l.AddController(fx.PrLvPostProc, fx.ControlFunc(r.watch))
}

// Submit queues a setpoint from any goroutine. It's applied on the next
// control tick; a newer setpoint for the same device replaces it.
func (r *Robot) Submit(device string, sp *msgs.Setpoint) error {
	if _, ok := r.motors[device]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, device)
	}
	r.lock.Lock()
	if _, ok := r.pending[device]; !ok {
		r.order = append(r.order, device)
	}
	r.pending[device] = sp
	r.lock.Unlock()
	return nil
}

// ApplySetpoint applies a setpoint immediately. It must be called from the
// loop.
func (r *Robot) ApplySetpoint(device string, sp *msgs.Setpoint) error {
	m, ok := r.motors[device]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, device)
	}
	return m.Apply(sp)
}

// Control applies pending setpoints and runs the motor control laws.
func (r *Robot) Control(cc fx.ControlContext) error {
	r.lock.Lock()
	order, pending := r.order, r.pending
	if len(order) > 0 {
		r.order, r.pending = nil, make(map[string]*msgs.Setpoint)
	}
	r.lock.Unlock()
	var errs fx.AggregatedError
	for _, name := range order {
		errs.Add(r.ApplySetpoint(name, pending[name]))
	}
	for _, m := range r.Motors {
		m.control(cc.Dt())
	}
	return errs.Aggregate()
}

// watch logs devices going offline and coming back.
func (r *Robot) watch(cc fx.ControlContext) error {
	if cc.Tick()%uint64(r.Desc.Rate/10+1) != 0 {
		return nil
	}
	for _, b := range r.Buses {
		stale := make(map[string]bool)
		for _, dev := range b.Manager.Stale(r.Desc.StaleAfter) {
			stale[dev.Name()] = true
		}
		for _, m := range r.Motors {
			if m.Bus != b || stale[m.Desc.Name] == r.stale[m.Desc.Name] {
				continue
			}
			r.stale[m.Desc.Name] = stale[m.Desc.Name]
			if stale[m.Desc.Name] {
				glog.Warningf("motor %s offline", m.Desc.Name)
			} else {
				glog.Infof("motor %s online", m.Desc.Name)
			}
		}
	}
	return nil
}
