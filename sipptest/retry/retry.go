// Package retry repeats a predicate under a fixed
// attempts/delay policy.
package retry

import (
	"context"
	"log/slog"
	"time"
)

// Policy is a fixed retry schedule: no jitter, no
// exponential growth.
type Policy struct {
	Attempts int
	Delay    time.Duration
}

// Default is the health-check schedule: 5 attempts,
// 2s apart.
func Default() Policy {
	return Policy{Attempts: 5, Delay: 2 * time.Second}
}

// Until calls fn until it returns true or the attempts
// run out; a done ctx stops it early. attempt is 1-based.
// It returns whether fn succeeded and how many attempts
// were made. Attempts < 1 counts as 1.
func Until(
	ctx context.Context,
	p Policy,
	fn func(ctx context.Context, attempt int) bool,
) (bool, int) {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	for i := 1; i <= attempts; i++ {
		if fn(ctx, i) {
			return true, i
		}

		if i == attempts {
			return false, i
		}

		slog.Warn(
			"attempt failed",
			"attempt", i,
			"of", attempts,
			"retry_in", p.Delay,
		)

		if !Sleep(ctx, p.Delay) {
			return false, i
		}
	}

	return false, attempts
}

// Sleep waits for d or until ctx is done. It reports
// false when ctx ended first.
func Sleep(ctx context.Context, d time.Duration) bool {
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
