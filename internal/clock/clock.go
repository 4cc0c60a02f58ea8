// Package clock abstracts wall time behind an injectable interface so the
// polling loops in the gate and rollout packages become deterministic
// under test. Production code uses Real; tests use testutil.FakeClock.
package clock

import (
	"context"
	"time"
)

// Clock provides the two operations the polling loops need: reading the
// current time and suspending for an interval. Sleep returns early with
// ctx.Err() on cancellation, which is how operator aborts propagate
// through a poll loop.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// Real is the wall-clock implementation.
type Real struct{}

// Now returns the current wall time.
func (Real) Now() time.Time { return time.Now() }

// Sleep blocks for d or until ctx is cancelled, whichever comes first.
func (Real) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
