package can

import (
	"sync"
	"time"
)

// SimBus is an in-memory Bus for host simulation and tests.
// Frames passed to Inject are returned by Receive in order; frames passed to
// Send are recorded and forwarded to the OnSend hook.
type SimBus struct {
	name string
	rx   chan Frame

	lock    sync.Mutex
	sent    []Frame
	sendErr error
	onSend  func(Frame)

	closeOnce sync.Once
	closed    chan struct{}
}

// NewSimBus creates a simulated bus buffering up to depth injected frames.
func NewSimBus(name string, depth int) *SimBus {
	if depth <= 0 {
		depth = 1
	}
	return &SimBus{
		name:   name,
		rx:     make(chan Frame, depth),
		closed: make(chan struct{}),
	}
}

// Name implements Bus.
func (b *SimBus) Name() string {
	return b.name
}

// Send implements Bus.
func (b *SimBus) Send(f Frame) error {
	if err := f.Validate(); err != nil {
		return NewTransportError(b.name, f.ID, err)
	}
	if b.isClosed() {
		return NewTransportError(b.name, f.ID, ErrClosed)
	}
	b.lock.Lock()
	if err := b.sendErr; err != nil {
		b.lock.Unlock()
		return NewTransportError(b.name, f.ID, err)
	}
	b.sent = append(b.sent, f)
	hook := b.onSend
	b.lock.Unlock()
	if hook != nil {
		hook(f)
	}
	return nil
}

// Receive implements Bus.
func (b *SimBus) Receive(timeout time.Duration) (Frame, error) {
	if b.isClosed() {
		return Frame{}, ErrClosed
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case f := <-b.rx:
		return f, nil
	case <-b.closed:
		return Frame{}, ErrClosed
	case <-timer.C:
		return Frame{}, ErrTimeout
	}
}

// Close implements Bus.
func (b *SimBus) Close() error {
	b.closeOnce.Do(func() { close(b.closed) })
	return nil
}

// Inject queues a frame for Receive. It blocks while the buffer is full.
func (b *SimBus) Inject(f Frame) error {
	if b.isClosed() {
		return ErrClosed
	}
	select {
	case b.rx <- f:
		return nil
	case <-b.closed:
		return ErrClosed
	}
}

// TryInject queues a frame without blocking and reports whether it was queued.
func (b *SimBus) TryInject(f Frame) bool {
	if b.isClosed() {
		return false
	}
	select {
	case b.rx <- f:
		return true
	default:
		return false
	}
}

// SetSendError makes subsequent Send calls fail with err, nil to recover.
func (b *SimBus) SetSendError(err error) {
	b.lock.Lock()
	b.sendErr = err
	b.lock.Unlock()
}

// OnSend installs a hook called with every successfully sent frame.
// Simulated peers use it to answer commands.
func (b *SimBus) OnSend(fn func(Frame)) {
	b.lock.Lock()
	b.onSend = fn
	b.lock.Unlock()
}

// Sent returns a copy of all frames sent so far.
func (b *SimBus) Sent() []Frame {
	b.lock.Lock()
	defer b.lock.Unlock()
	return append([]Frame(nil), b.sent...)
}

// TakeSent returns and clears the recorded frames.
func (b *SimBus) TakeSent() []Frame {
	b.lock.Lock()
	defer b.lock.Unlock()
	sent := b.sent
	b.sent = nil
	return sent
}

func (b *SimBus) isClosed() bool {
	select {
	case <-b.closed:
		return true
	default:
		return false
	}
}
