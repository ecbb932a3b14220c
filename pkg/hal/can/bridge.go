package can

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
)

// Bridge defaults.
const (
	DefaultReceiveTimeout = 20 * time.Millisecond
	DefaultQueueCapacity  = 64
)

// BridgeStats reports counters of a Bridge.
type BridgeStats struct {
	Received       uint64
	Dispatched     uint64
	DispatchErrors uint64
	// Superseded counts pending frames replaced by a newer frame with the
	// same identifier while the queue was full.
	Superseded uint64
	// Evicted counts pending frames discarded while the queue was full and
	// no pending frame shared the new frame's identifier.
	Evicted uint64
}

// Bridge continuously receives frames from Bus on a dedicated goroutine and
// hands them to Dispatcher, decoupling frame arrival from the control loop.
type Bridge struct {
	Bus            Bus
	Dispatcher     Dispatcher
	ReceiveTimeout time.Duration
	Capacity       int

	received       atomic.Uint64
	dispatched     atomic.Uint64
	dispatchErrors atomic.Uint64
	superseded     atomic.Uint64
	evicted        atomic.Uint64
}

// NewBridge creates a Bridge with default timeout and capacity.
func NewBridge(bus Bus, dispatcher Dispatcher) *Bridge {
	return &Bridge{
		Bus:            bus,
		Dispatcher:     dispatcher,
		ReceiveTimeout: DefaultReceiveTimeout,
		Capacity:       DefaultQueueCapacity,
	}
}

// Name implements framework.Named.
func (b *Bridge) Name() string {
	return "can-bridge/" + b.Bus.Name()
}

// Stats returns a snapshot of the counters.
func (b *Bridge) Stats() BridgeStats {
	return BridgeStats{
		Received:       b.received.Load(),
		Dispatched:     b.dispatched.Load(),
		DispatchErrors: b.dispatchErrors.Load(),
		Superseded:     b.superseded.Load(),
		Evicted:        b.evicted.Load(),
	}
}

// Run implements framework.Runnable. It returns ctx.Err() after ctx is
// cancelled and the listener has exited, or the receive error that stopped
// the listener (e.g. ErrClosed). Dispatch is only ever called from the
// goroutine executing Run, so no frame is dispatched after Run returns.
func (b *Bridge) Run(ctx context.Context) error {
	timeout := b.ReceiveTimeout
	if timeout <= 0 {
		timeout = DefaultReceiveTimeout
	}
	capacity := b.Capacity
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	q := newFrameQueue(capacity)

	readCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	errCh := make(chan error, 1)
	go func() {
		errCh <- b.readLoop(readCtx, q, timeout)
	}()

	for {
		select {
		case <-ctx.Done():
			cancel()
			<-errCh
			if n := q.discard(); n > 0 {
				glog.V(2).Infof("%s: %d pending frames discarded on stop", b.Name(), n)
			}
			return ctx.Err()
		case err := <-errCh:
			b.drain(ctx, q)
			return err
		case <-q.notify:
			b.drain(ctx, q)
		}
	}
}

func (b *Bridge) readLoop(ctx context.Context, q *frameQueue, timeout time.Duration) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, err := b.Bus.Receive(timeout)
		if err != nil {
			if errors.Is(err, ErrTimeout) {
				continue
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b.received.Add(1)
		switch q.push(f) {
		case pushSuperseded:
			if n := b.superseded.Add(1); n&(n-1) == 0 {
				glog.Warningf("%s: queue full, %d frames superseded", b.Name(), n)
			}
		case pushEvicted:
			if n := b.evicted.Add(1); n&(n-1) == 0 {
				glog.Warningf("%s: queue full, %d frames evicted", b.Name(), n)
			}
		}
	}
}

func (b *Bridge) drain(ctx context.Context, q *frameQueue) {
	for ctx.Err() == nil {
		f, ok := q.pop()
		if !ok {
			return
		}
		if err := b.Dispatcher.Dispatch(f); err != nil {
			b.dispatchErrors.Add(1)
			if glog.V(4) {
				glog.Infof("%s: dispatch %s: %v", b.Name(), f, err)
			}
		}
		b.dispatched.Add(1)
	}
}

type pushResult int

const (
	pushQueued pushResult = iota
	pushSuperseded
	pushEvicted
)

// frameQueue is a bounded FIFO ring of frames.
type frameQueue struct {
	lock   sync.Mutex
	ring   []Frame
	head   int
	size   int
	notify chan struct{}
}

func newFrameQueue(capacity int) *frameQueue {
	return &frameQueue{
		ring:   make([]Frame, capacity),
		notify: make(chan struct{}, 1),
	}
}

func (q *frameQueue) at(i int) int {
	return (q.head + i) % len(q.ring)
}

func (q *frameQueue) push(f Frame) (res pushResult) {
	q.lock.Lock()
	if q.size == len(q.ring) {
		victim := 0
		res = pushEvicted
		for i := 0; i < q.size; i++ {
			if old := q.ring[q.at(i)]; old.ID == f.ID && old.Extended == f.Extended {
				victim, res = i, pushSuperseded
				break
			}
		}
		for i := victim; i+1 < q.size; i++ {
			q.ring[q.at(i)] = q.ring[q.at(i+1)]
		}
		q.size--
	}
	q.ring[q.at(q.size)] = f
	q.size++
	q.lock.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return
}

func (q *frameQueue) pop() (f Frame, ok bool) {
	q.lock.Lock()
	defer q.lock.Unlock()
	if q.size == 0 {
		return
	}
	f, ok = q.ring[q.head], true
	q.head = (q.head + 1) % len(q.ring)
	q.size--
	return
}

func (q *frameQueue) discard() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	n := q.size
	q.head, q.size = 0, 0
	return n
}
