package retry

import (
	"context"
	"errors"
	"time"

	"github.com/spetersoncode/longform"
)

// retryAfter extracts the server-suggested delay from a categorized error.
func retryAfter(err error) time.Duration {
	var ce longform.CategorizedError
	if errors.As(err, &ce) {
		return ce.RetryAfter()
	}
	return 0
}

// effectiveDelay honors the server's Retry-After when it is longer than the
// computed backoff.
func effectiveDelay(configured time.Duration, err error) time.Duration {
	if server := retryAfter(err); server > configured {
		return server
	}
	return configured
}

// Do executes fn until it succeeds, returns a non-transient error, or the
// attempts run out. It respects context cancellation during backoff waits.
func Do[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	max := cfg.attempts()
	for attempt := 0; attempt < max; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !IsTransient(err) {
			return zero, err
		}

		if attempt < max-1 {
			if err := wait(ctx, cfg, attempt, err); err != nil {
				return zero, err
			}
		}
	}

	return zero, lastErr
}

// DoStream is like Do for functions that open a stream. Only establishing
// the stream is retried, not individual chunks.
func DoStream[T any](ctx context.Context, cfg Config, fn func() (<-chan T, error)) (<-chan T, error) {
	return Do(ctx, cfg, fn)
}

func wait(ctx context.Context, cfg Config, attempt int, cause error) error {
	delay := effectiveDelay(cfg.Delay(attempt), cause)
	if cfg.OnRetry != nil {
		cfg.OnRetry(attempt+1, cause, delay)
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
