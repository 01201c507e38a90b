package sync

import (
	"context"
	"errors"
	"time"

	"github.com/harper/dispatch/internal/clock"
)

// RetryPolicy defines the exponential backoff schedule for failed sync work:
// BaseDelay doubles per attempt up to MaxDelay, and rows are quarantined after
// MaxAttempts failures.
type RetryPolicy struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

// DefaultRetryPolicy is 1s, 2s, 4s, 8s, 16s, capped at 30s, 5 attempts.
var DefaultRetryPolicy = RetryPolicy{
	BaseDelay:   time.Second,
	MaxDelay:    30 * time.Second,
	MaxAttempts: 5,
}

// Delay returns the backoff delay after the given failed attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// HTTPStatusError is implemented by transport errors that carry an HTTP
// status code, so retry logic can separate transient from permanent failures.
type HTTPStatusError interface {
	error
	HTTPStatus() int
}

// IsTransient reports whether a transport error is worth retrying.
// 429 and any 5xx are transient; other HTTP errors are permanent.
// Non-HTTP errors (connection refused, timeouts) are treated as transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var se HTTPStatusError
	if errors.As(err, &se) {
		status := se.HTTPStatus()
		return status == 429 || status >= 500
	}
	return true
}

// retryTransient runs fn, retrying transient failures on the policy's backoff
// schedule. Permanent failures and context cancellation return immediately.
// The clock is injected so tests can drive the waits.
func retryTransient(ctx context.Context, clk clock.Clock, policy RetryPolicy, fn func() error) error {
	var err error
	for attempt := 1; ; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !IsTransient(err) || attempt >= policy.MaxAttempts {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clk.After(policy.Delay(attempt)):
		}
	}
}
