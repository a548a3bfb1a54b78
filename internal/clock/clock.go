// Package clock abstracts time for deterministic tests.
package clock

import (
	"context"
	"time"
)

// Clock returns the current time and sleeps; fakes replace it in tests.
// Sleep returns early when the context is cancelled so long pauses never
// stall shutdown.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration)
}

// System is the real wall clock.
type System struct{}

// Now returns time.Now.
func (System) Now() time.Time { return time.Now() }

// Sleep waits for d or until ctx is cancelled, whichever comes first.
func (System) Sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
