package db

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy bounds RetryOnConflict.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// RetryOnConflict calls fn until it succeeds, fails with an error that
// retryable rejects, or the attempt budget runs out. attempt starts at 1.
// The last error is returned unwrapped.
func RetryOnConflict(ctx context.Context, p RetryPolicy, retryable func(error) bool, fn func(ctx context.Context, attempt int) error) error {
	if p.Attempts <= 0 {
		p.Attempts = 3
	}
	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := fn(ctx, attempt)
		if err == nil {
			return struct{}{}, nil
		}
		if retryable != nil && retryable(err) {
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	},
		backoff.WithBackOff(newBackOff(p.Backoff)),
		backoff.WithMaxTries(uint(p.Attempts)),
	)

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}

func newBackOff(initial time.Duration) backoff.BackOff {
	if initial <= 0 {
		return &backoff.ZeroBackOff{}
	}
	return &backoff.ExponentialBackOff{
		InitialInterval:     initial,
		RandomizationFactor: 0.5,
		Multiplier:          2,
		MaxInterval:         10 * initial,
	}
}
