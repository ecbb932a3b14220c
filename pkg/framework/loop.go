package framework

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/rm.go/pkg/control/deadline"
)

// DefaultInterval is the loop period when Interval is zero (1kHz).
const DefaultInterval = time.Millisecond

// Loop runs controllers at a fixed rate, ordered by priority level, and
// owns the background Runnables they depend on.
type Loop struct {
	Interval time.Duration

	lock        sync.Mutex
	controllers [PriorityLevels][]Controller
	runners     []Runnable

	tick     uint64
	overruns uint64
}

// LoopAdder provides specific logic to add components to loop.
type LoopAdder interface {
	AddToLoop(*Loop)
}

// NewLoop creates a Loop.
func NewLoop() *Loop {
	return &Loop{Interval: DefaultInterval}
}

// Add adds LoopAdders.
func (l *Loop) Add(adders ...LoopAdder) *Loop {
	for _, adder := range adders {
		adder.AddToLoop(l)
	}
	return l
}

// AddController registers controllers at a priority level. Controllers
// implementing Runnable are also started when the loop runs.
func (l *Loop) AddController(priorityLevel int, ctls ...Controller) *Loop {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.controllers[priorityLevel] = append(l.controllers[priorityLevel], ctls...)
	for _, ctl := range ctls {
		if runner, ok := ctl.(Runnable); ok {
			l.runners = append(l.runners, runner)
		}
	}
	return l
}

// AddRunnable adds Runnable implementions.
func (l *Loop) AddRunnable(runnables ...Runnable) *Loop {
	l.lock.Lock()
	l.runners = append(l.runners, runnables...)
	l.lock.Unlock()
	return l
}

// Overruns returns the number of iterations which took longer than Interval.
func (l *Loop) Overruns() uint64 {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.overruns
}

// Run implements Runnable. Runnables are started first and joined before
// Run returns. A Runnable failing stops the whole loop.
func (l *Loop) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	l.lock.Lock()
	runners := make([]Runnable, len(l.runners))
	for n, r := range l.runners {
		runners[n] = &failFast{Runnable: r, stop: cancel}
	}
	l.lock.Unlock()
	runner := NewRunnerWith(ctx).Go(runners...)

	interval := l.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	dl := deadline.New()
	for {
		select {
		case <-ctx.Done():
			if err := runner.Wait(); err != nil {
				return err
			}
			return ctx.Err()
		case now := <-ticker.C:
			l.RunIteration(ctx, now, dl.Lap())
			if spent := time.Since(now); spent > interval {
				l.lock.Lock()
				l.overruns++
				l.lock.Unlock()
				glog.V(2).Infof("loop overrun: %v > %v", spent, interval)
			}
		}
	}
}

// RunIteration runs all controllers once, in priority order.
// Run calls it on every tick; tests may call it directly.
func (l *Loop) RunIteration(ctx context.Context, now time.Time, dt time.Duration) {
	l.lock.Lock()
	l.tick++
	iter := &loopIteration{ctx: ctx, time: now, dt: dt, tick: l.tick}
	controllers := l.controllers
	l.lock.Unlock()
	for i := 0; i < PriorityLevels; i++ {
		iter.priorityLevel = i
		for _, ctl := range controllers[i] {
			if err := ctl.Control(iter); err != nil {
				glog.Errorf("controller error: %v", err)
			}
		}
	}
}

// failFast cancels the loop when a Runnable stops with an error.
type failFast struct {
	Runnable
	stop context.CancelFunc
}

func (r *failFast) Name() string {
	if named, ok := r.Runnable.(Named); ok {
		return named.Name()
	}
	return ""
}

func (r *failFast) Run(ctx context.Context) error {
	err := r.Runnable.Run(ctx)
	if err != nil && ctx.Err() == nil {
		glog.Errorf("runner %s stopped: %v", r.Name(), err)
		r.stop()
	}
	return err
}

type loopIteration struct {
	ctx           context.Context
	time          time.Time
	dt            time.Duration
	tick          uint64
	priorityLevel int
}

func (t *loopIteration) Context() context.Context { return t.ctx }
func (t *loopIteration) Time() time.Time          { return t.time }
func (t *loopIteration) Dt() time.Duration        { return t.dt }
func (t *loopIteration) Tick() uint64             { return t.tick }
func (t *loopIteration) PriorityLevel() int       { return t.priorityLevel }
