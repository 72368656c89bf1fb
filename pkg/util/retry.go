package util

import (
	"context"
	"time"
)

// RetryPolicy is linear backoff: attempt n waits n*Backoff.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Backoff: 50 * time.Millisecond}
}

// Retry runs fn until it succeeds, fails with a non-retryable error, runs
// out of attempts or ctx ends. Only use it for idempotent calls.
func Retry[T any](ctx context.Context, p RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	if p.Attempts < 1 {
		p.Attempts = 1
	}

	var (
		result T
		err    error
	)
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		result, err = fn(ctx)
		if err == nil {
			return result, nil
		}
		if retryable, _ := IsRetryableError(err); !retryable || attempt == p.Attempts {
			return result, err
		}

		timer := time.NewTimer(time.Duration(attempt) * p.Backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return result, err
		case <-timer.C:
		}
	}
	return result, err
}
