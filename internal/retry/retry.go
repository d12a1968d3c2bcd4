package retry

import (
	"context"
	"time"

	ai "github.com/spetersoncode/dylan"
)

// effectiveDelay returns the delay to use, honoring the server's Retry-After
// when it is larger.
func effectiveDelay(configured time.Duration, err error) time.Duration {
	if server := ai.RetryAfterOf(err); server > configured {
		return server
	}
	return configured
}

// Do executes fn, retrying transient failures with exponential backoff.
// Waits between attempts end early when ctx is done.
// Returns the result on success, or the last error if all attempts fail.
func Do[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	b := cfg.backOff()

	for attempt := 1; attempt <= max(cfg.MaxAttempts, 1); attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !IsTransient(err) || attempt >= cfg.MaxAttempts {
			break
		}

		timer := time.NewTimer(effectiveDelay(b.NextBackOff(), err))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, lastErr
}

// DoStream is like Do for functions that open a stream. Only establishing
// the stream is retried; failures inside the stream are not.
func DoStream[T any](ctx context.Context, cfg Config, fn func() (<-chan T, error)) (<-chan T, error) {
	return Do(ctx, cfg, fn)
}
