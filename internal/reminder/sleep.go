package reminder

import (
	"context"
	"time"
)

// sleepUnless waits for d or until ctx is cancelled, whichever comes first.
// Returns true when the full duration elapsed undisturbed, false the moment
// cancellation is observed. Every time-based wait in the scheduler goes
// through this, which is what gives Stop() its bounded shutdown latency
// no matter how long a dispatcher intended to sleep.
func sleepUnless(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
