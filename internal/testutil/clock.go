package testutil

import (
	"sync"
	"time"
)

// Clock is a deterministic wall clock for tests.
//
// Every call to Now returns the current instant and then advances it by the
// configured step, so consecutive readings are strictly increasing when step
// is positive and identical when it is zero.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Clock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewClock creates a clock starting at start.
func NewClock(start time.Time, step time.Duration) *Clock {
	return &Clock{now: start, step: step}
}

// Now returns the current instant and advances the clock by one step.
// Its signature matches time.Now so it can be injected directly.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// Peek returns the instant the next Now will return.
func (c *Clock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d without a reading.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
