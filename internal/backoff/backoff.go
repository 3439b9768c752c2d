// Package backoff wraps a fallible operation with bounded
// exponential-backoff retries.
package backoff

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Do runs op, retrying up to maxRetries times after failures. The wait
// before retry attempt n is initialDelay × 2^(n-1), pure exponential with
// no jitter, so the total attempt count is maxRetries+1. The wait is
// context-aware: cancellation aborts it immediately and ctx.Err() is
// returned instead of the operation's last error, which lets callers tell
// a cancelled call from an exhausted one.
//
// Do knows nothing about T or why op failed; every error path is treated
// uniformly.
func Do[T any](ctx context.Context, maxRetries int, initialDelay time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	delay := initialDelay

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, delay); err != nil {
				return zero, err
			}
			delay *= 2
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}

		lastErr = err
	}

	return zero, errors.Wrapf(lastErr, "failed after %d attempts", maxRetries+1)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
