package deadline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func TestDeadline(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	d := NewWithClock(clock.Now)
	require.Zero(t, d.Elapsed())

	clock.now = clock.now.Add(5 * time.Millisecond)
	require.Equal(t, 5*time.Millisecond, d.Elapsed())
	require.Equal(t, 5*time.Millisecond, d.Elapsed())

	clock.now = clock.now.Add(time.Millisecond)
	require.Equal(t, 6*time.Millisecond, d.Lap())
	require.Zero(t, d.Elapsed())

	clock.now = clock.now.Add(2 * time.Millisecond)
	d.Reset()
	require.Zero(t, d.Elapsed())
}

func TestDeadlineMonotonic(t *testing.T) {
	d := New()
	time.Sleep(2 * time.Millisecond)
	require.True(t, d.Elapsed() >= 2*time.Millisecond)
	require.True(t, d.Lap() > 0)
}
