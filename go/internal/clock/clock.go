package clock

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock is the single time source for playback position math.
// In production, wrap clockwork.NewRealClock(). In tests, a FakeClock.
//
// Anchor timestamps taken from Now() carry Go's monotonic clock reading,
// so SecondsSince never goes negative across wall-clock adjustments.
type Clock struct {
	clockwork.Clock
}

// New returns a Clock backed by the real monotonic clock.
func New() Clock {
	return Clock{clockwork.NewRealClock()}
}

// Wrap adapts any clockwork.Clock, typically a fake clock in tests.
func Wrap(c clockwork.Clock) Clock {
	return Clock{c}
}

// SecondsSince returns the elapsed seconds since t as a float.
func (c Clock) SecondsSince(t time.Time) float64 {
	return c.Since(t).Seconds()
}
