package errors

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy is a bounded, fixed-delay retry policy. There is no exponential growth.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultRetryPolicy returns three attempts two seconds apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Delay: 2 * time.Second}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Delay), uint64(attempts-1))
	return backoff.WithContext(b, ctx)
}

// Retry runs fn until it succeeds, returns a non-transient error, or the
// policy is exhausted. Cancellation of ctx is observed between attempts only.
// It returns the number of attempts made and the last error.
func Retry(ctx context.Context, policy RetryPolicy, logger *slog.Logger, operation string, fn func() error) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}

	attempts := 0
	op := func() error {
		attempts++
		err := fn()
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, next time.Duration) {
		logger.Warn("operation failed, retrying",
			"operation", operation,
			"attempt", attempts,
			"max_attempts", policy.MaxAttempts,
			"error_type", Classify(err),
			"retry_in", next,
			"error", err.Error())
	}

	err := backoff.RetryNotify(op, policy.backOff(ctx), notify)
	if err != nil {
		logger.Debug("operation gave up",
			"operation", operation,
			"attempts", attempts,
			"error", err.Error())
	}
	return attempts, err
}
