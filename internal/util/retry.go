package util

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	defaultInitialInterval = 500 * time.Millisecond
	defaultMaxInterval     = 30 * time.Second
)

func newExponential(maxTries int) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = defaultInitialInterval
	b.MaxInterval = defaultMaxInterval
	// RandomizationFactor defaults to 0.5, giving jittered intervals.
	if maxTries <= 0 {
		maxTries = 1
	}
	return backoff.WithMaxRetries(b, uint64(maxTries-1))
}

// RetryErrWithContext calls fn until it returns nil, retrying transient
// failures with exponential backoff and jitter, up to maxTries attempts.
// Context cancellation stops retrying immediately and is returned as-is.
func RetryErrWithContext(ctx context.Context, maxTries int, fn func(context.Context) error) error {
	op := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.Retry(op, backoff.WithContext(newExponential(maxTries), ctx))
}

// RetryWithContext calls fn until it succeeds, with the same backoff policy
// as RetryErrWithContext, and returns fn's result.
func RetryWithContext[T any](ctx context.Context, maxTries int, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := RetryErrWithContext(ctx, maxTries, func(ctx context.Context) error {
		res, err := fn(ctx)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
