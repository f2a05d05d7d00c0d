package testutil

import (
	"sync"
	"time"
)

// Epoch is the default start time of a FakeClock.
var Epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// FakeClock is a settable wall clock for tests. It satisfies
// datastore.Clock.
//
// Unlike the system clock, FakeClock only moves when told to, so expiry
// scenarios run identically every time. All methods are safe for
// concurrent use.
type FakeClock struct {
	mu    sync.Mutex
	start time.Time
	now   time.Time
}

// NewFakeClock returns a clock stopped at start, or at Epoch when start is
// the zero time.
func NewFakeClock(start time.Time) *FakeClock {
	if start.IsZero() {
		start = Epoch
	}
	start = start.UTC()
	return &FakeClock{start: start, now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new time.
func (c *FakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Set moves the clock to t.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}

// Reset returns the clock to its start time.
func (c *FakeClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.start
}
