// Package retry holds the bounded linear-backoff policy shared by the model and
// search gateways.
package retry

import (
	"context"
	"time"
)

const DefaultMaxAttempts = 3

type Policy struct {
	MaxAttempts int
	// BaseDelay is multiplied by the attempt number that just failed.
	BaseDelay time.Duration
	// Retryable reports whether a failed attempt may be repeated. A nil
	// predicate retries every error.
	Retryable func(err error) bool
	// OnRetry is called before sleeping for the next attempt.
	OnRetry func(attempt int, delay time.Duration, err error)
}

func (p Policy) attempts() int {
	if p.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return p.MaxAttempts
}

func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.BaseDelay * time.Duration(attempt)
}

// Do calls fn until it succeeds, returns a non-retryable error, or the attempt
// cap is reached. It returns the number of attempts made alongside the result.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) (T, error)) (T, int, error) {
	var zero T
	max := p.attempts()
	var lastErr error
	for attempt := 1; attempt <= max; attempt++ {
		out, err := fn(ctx, attempt)
		if err == nil {
			return out, attempt, nil
		}
		lastErr = err
		if attempt == max {
			break
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return zero, attempt, err
		}
		delay := p.Delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}
		if err := Sleep(ctx, delay); err != nil {
			return zero, attempt, err
		}
	}
	return zero, max, lastErr
}

func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
