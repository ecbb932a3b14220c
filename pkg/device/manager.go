package device

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/rm.go/pkg/control/deadline"
	"github.com/robotalks/rm.go/pkg/framework"
	"github.com/robotalks/rm.go/pkg/hal/can"
)

// Stats are the Manager counters.
type Stats struct {
	Dispatched uint64
	Unknown    uint64
	Malformed  uint64
	Sent       uint64
	SendErrors uint64
}

// Manager owns the devices attached to one bus. It routes received frames
// to devices by identifier and transmits their pending commands.
type Manager struct {
	Clock deadline.Clock

	bus can.Bus

	lock    sync.RWMutex
	devices map[uint32]*entry
	order   []*entry
	buffers map[uint32]*TxBuffer

	dispatched atomic.Uint64
	unknown    atomic.Uint64
	malformed  atomic.Uint64
	sent       atomic.Uint64
	sendErrors atomic.Uint64

	failing uint64
}

type entry struct {
	id       uint32
	dev      Device
	lastSeen atomic.Int64
}

// NewManager creates a Manager on bus. The bus is borrowed, not closed.
func NewManager(bus can.Bus) *Manager {
	return &Manager{
		Clock:   time.Now,
		bus:     bus,
		devices: make(map[uint32]*entry),
		buffers: make(map[uint32]*TxBuffer),
	}
}

// Bus returns the underlying bus.
func (m *Manager) Bus() can.Bus {
	return m.bus
}

// extendedKey marks extended identifiers in the registry, above the 29-bit
// identifier range.
const extendedKey = 1 << 31

// registryKey maps a registered identifier to its key. Identifiers beyond
// the standard range are extended.
func registryKey(id uint32) uint32 {
	if id > can.MaxStdID {
		return id | extendedKey
	}
	return id
}

func frameKey(f can.Frame) uint32 {
	if f.Extended {
		return f.ID | extendedKey
	}
	return f.ID
}

// Register adds dev under identifier id. An existing registration is left
// intact and ErrDuplicateIdentifier is returned. Identifiers up to 0x7FF
// receive standard frames, larger ones extended frames.
func (m *Manager) Register(id uint32, dev Device) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if existing, ok := m.devices[registryKey(id)]; ok {
		return &IdentifierError{ID: id, Err: fmt.Errorf("%w: taken by %s", ErrDuplicateIdentifier, existing.dev.Name())}
	}
	e := &entry{id: id, dev: dev}
	m.devices[registryKey(id)] = e
	m.order = append(m.order, e)
	glog.V(2).Infof("%s: registered %s at 0x%03X", m.bus.Name(), dev.Name(), id)
	return nil
}

// Unregister removes the device at id and returns it to the caller.
func (m *Manager) Unregister(id uint32) (Device, error) {
	m.lock.Lock()
	e, ok := m.devices[registryKey(id)]
	if ok {
		delete(m.devices, registryKey(id))
		for n, o := range m.order {
			if o == e {
				m.order = append(m.order[:n], m.order[n+1:]...)
				break
			}
		}
	}
	m.lock.Unlock()
	if !ok {
		return nil, &IdentifierError{ID: id, Err: ErrUnknownIdentifier}
	}
	if d, ok := e.dev.(Detacher); ok {
		d.Detach()
	}
	return e.dev, nil
}

// Device looks up the device registered at id.
func (m *Manager) Device(id uint32) (Device, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	if e, ok := m.devices[registryKey(id)]; ok {
		return e.dev, true
	}
	return nil, false
}

// Devices returns devices in registration order.
func (m *Manager) Devices() []Device {
	m.lock.RLock()
	defer m.lock.RUnlock()
	devs := make([]Device, len(m.order))
	for n, e := range m.order {
		devs[n] = e.dev
	}
	return devs
}

// IDs returns the registered identifiers in registration order.
func (m *Manager) IDs() []uint32 {
	m.lock.RLock()
	defer m.lock.RUnlock()
	ids := make([]uint32, len(m.order))
	for n, e := range m.order {
		ids[n] = e.id
	}
	return ids
}

// LastSeen returns when the device at id last decoded a frame.
// The zero time is returned if it never did.
func (m *Manager) LastSeen(id uint32) time.Time {
	m.lock.RLock()
	e, ok := m.devices[registryKey(id)]
	m.lock.RUnlock()
	if !ok {
		return time.Time{}
	}
	if ns := e.lastSeen.Load(); ns != 0 {
		return time.Unix(0, ns)
	}
	return time.Time{}
}

// Stale returns the devices not heard from within maxAge, including the
// ones never heard from.
func (m *Manager) Stale(maxAge time.Duration) []Device {
	now := m.Clock()
	m.lock.RLock()
	defer m.lock.RUnlock()
	var devs []Device
	for _, e := range m.order {
		ns := e.lastSeen.Load()
		if ns == 0 || now.Sub(time.Unix(0, ns)) > maxAge {
			devs = append(devs, e.dev)
		}
	}
	return devs
}

// TxBuffer returns the shared transmit buffer for identifier id, creating
// an 8-byte one on first use.
func (m *Manager) TxBuffer(id uint32) *TxBuffer {
	m.lock.Lock()
	defer m.lock.Unlock()
	buf, ok := m.buffers[id]
	if !ok {
		buf = NewTxBuffer(id, can.MaxDataLength)
		m.buffers[id] = buf
	}
	return buf
}

// Dispatch implements can.Dispatcher. It never sends.
func (m *Manager) Dispatch(frame can.Frame) error {
	if err := frame.Validate(); err != nil {
		m.malformed.Add(1)
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	m.lock.RLock()
	e, ok := m.devices[frameKey(frame)]
	m.lock.RUnlock()
	if !ok {
		if n := m.unknown.Add(1); n&(n-1) == 0 {
			glog.V(2).Infof("%s: no device at 0x%03X (%d frames)", m.bus.Name(), frame.ID, n)
		}
		return &IdentifierError{ID: frame.ID, Err: ErrUnknownIdentifier}
	}
	if err := e.dev.Decode(frame); err != nil {
		m.malformed.Add(1)
		glog.V(2).Infof("%s: %s decode %v: %v", m.bus.Name(), e.dev.Name(), frame, err)
		if !errors.Is(err, ErrMalformedFrame) {
			err = fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		return &IdentifierError{ID: frame.ID, Err: err}
	}
	e.lastSeen.Store(m.Clock().UnixNano())
	m.dispatched.Add(1)
	if glog.V(4) {
		glog.Infof("%s: %v -> %s", m.bus.Name(), frame, e.dev.Name())
	}
	return nil
}

// TransmitAll collects the pending frames of all devices in registration
// order and sends them. A failed send doesn't stop the others; all failures
// are returned as framework.AggregatedError.
func (m *Manager) TransmitAll() error {
	m.lock.RLock()
	encoders := make([]Encoder, 0, len(m.order))
	for _, e := range m.order {
		if enc, ok := e.dev.(Encoder); ok {
			encoders = append(encoders, enc)
		}
	}
	m.lock.RUnlock()

	var errs framework.AggregatedError
	for _, enc := range encoders {
		for _, frame := range enc.Encode() {
			if err := m.bus.Send(frame); err != nil {
				m.sendErrors.Add(1)
				errs.Add(err)
				continue
			}
			m.sent.Add(1)
		}
	}
	return errs.Aggregate()
}

// Poll is an alias of TransmitAll.
func (m *Manager) Poll() error {
	return m.TransmitAll()
}

// Stats returns a copy of the counters.
func (m *Manager) Stats() Stats {
	return Stats{
		Dispatched: m.dispatched.Load(),
		Unknown:    m.unknown.Load(),
		Malformed:  m.malformed.Load(),
		Sent:       m.sent.Load(),
		SendErrors: m.sendErrors.Load(),
	}
}

// AddToLoop implements framework.LoopAdder. TransmitAll runs once per tick
// at the actuation priority.
func (m *Manager) AddToLoop(l *framework.Loop) {
	l.AddController(framework.PrLvActuate, framework.ControlFunc(m.transmit))
}

// transmit logs failures at power-of-two streak lengths only.
func (m *Manager) transmit(framework.ControlContext) error {
	err := m.TransmitAll()
	if err == nil {
		if m.failing > 0 {
			glog.Infof("%s: transmit recovered after %d failed ticks", m.bus.Name(), m.failing)
			m.failing = 0
		}
		return nil
	}
	m.failing++
	if m.failing&(m.failing-1) == 0 {
		glog.Warningf("%s: transmit failed (%d ticks): %v", m.bus.Name(), m.failing, err)
	}
	return nil
}
