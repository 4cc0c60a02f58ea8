package testutil

import (
	"context"
	"sync"
	"time"
)

// FakeClock is a manually driven clock for tests.
//
// Sleep advances the fake time by the full duration and returns
// immediately, so poll loops built on clock.Clock run to completion
// without real waiting. Tests that need wall-clock-shaped assertions
// read Now() before and after.
//
// Thread-safety: all methods are safe for concurrent use via internal
// mutex.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock creates a clock frozen at start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Sleep advances the fake time by d without blocking. A cancelled
// context still wins, matching the real clock's contract.
func (c *FakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return nil
}

// Advance moves the fake time forward by d outside of Sleep.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
