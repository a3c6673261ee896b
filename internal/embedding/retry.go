package embedding

import (
	"context"
	"time"
)

// retryWithBackoff runs fn up to retries+1 times, sleeping base, 2*base,
// 4*base, ... between attempts. The final failure is returned unchanged so
// callers see the underlying error message.
func retryWithBackoff(ctx context.Context, retries int, base time.Duration, fn func(context.Context) error) error {
	var lastErr error
	delay := base

	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay *= 2
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
	}

	return lastErr
}
