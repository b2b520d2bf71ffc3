package testutil

import (
	"sync"
	"time"
)

// WallClock is a manually advanced clock for tests.
//
// Sessions, the tuple cache and the row transition engine all read time through a
// func() time.Time; passing clock.Now makes transaction numbers, timestamps and
// cache expiry reproducible.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type WallClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewWallClock creates a clock frozen at start.
func NewWallClock(start time.Time) *WallClock {
	return &WallClock{now: start}
}

// Now returns the current time of the clock.
func (c *WallClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *WallClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t. Used to cross UTC day boundaries in tests.
func (c *WallClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
