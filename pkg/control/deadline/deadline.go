// Package deadline measures elapsed time between control iterations.
package deadline

import "time"

// Clock returns the current time. It must carry a monotonic reading, which
// time.Now does, so wall-clock adjustments never affect elapsed durations.
type Clock func() time.Time

// Deadline marks a reference point in time.
// It is not safe for concurrent use; each control loop owns its own.
type Deadline struct {
	Clock Clock

	ref time.Time
}

// New creates a Deadline referenced at now.
func New() *Deadline {
	return NewWithClock(time.Now)
}

// NewWithClock creates a Deadline using clock.
func NewWithClock(clock Clock) *Deadline {
	return &Deadline{Clock: clock, ref: clock()}
}

// Elapsed returns the time since the last reset.
func (d *Deadline) Elapsed() time.Duration {
	return d.now().Sub(d.ref)
}

// Reset moves the reference point to now.
func (d *Deadline) Reset() {
	d.ref = d.now()
}

// Lap returns the time since the last reset and resets.
func (d *Deadline) Lap() time.Duration {
	now := d.now()
	dt := now.Sub(d.ref)
	d.ref = now
	return dt
}

func (d *Deadline) now() time.Time {
	if d.Clock == nil {
		return time.Now()
	}
	return d.Clock()
}
