// Package util holds small helpers shared by services and adapters.
package util

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/custodia-labs/scanqa/internal/core/domain"
)

// MaxBackoff caps the delay between attempts.
const MaxBackoff = 30 * time.Second

// CalculateBackoff returns exponential backoff with jitter for the given
// retry number. The first retry waits about baseDelay, doubling after that,
// with random jitter of up to 25% either way.
func CalculateBackoff(baseDelay time.Duration, attempt int) time.Duration {
	if attempt <= 0 || baseDelay <= 0 {
		return 0
	}
	// Cap attempt to avoid overflow in bit shift
	if attempt > 30 {
		attempt = 30
	}
	backoff := baseDelay * time.Duration(1<<uint(attempt-1))
	if backoff > MaxBackoff || backoff <= 0 {
		backoff = MaxBackoff
	}
	half := int64(backoff) / 2
	if half <= 0 {
		return backoff
	}
	jitter := time.Duration(rand.Int64N(half)) - backoff/4
	return backoff + jitter
}

// Retryable reports whether a failed attempt should be retried.
type Retryable func(err error) bool

// Always retries every error.
func Always(error) bool { return true }

// Do runs fn under policy. Each attempt gets its own policy.Timeout deadline
// and failed attempts are retried with backoff while retryable returns true.
// It returns the last error once attempts run out.
// Cancellation of ctx stops retrying immediately.
func Do(ctx context.Context, policy domain.RetryPolicy, retryable Retryable, fn func(ctx context.Context) error) error {
	if retryable == nil {
		retryable = Always
	}
	var lastErr error
	for attempt := 0; attempt < policy.Attempts(); attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, CalculateBackoff(policy.BaseDelay, attempt)); err != nil {
				return errors.Join(lastErr, err)
			}
		}

		attemptCtx, cancel := withTimeout(ctx, policy.Timeout)
		err := fn(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return errors.Join(lastErr, ctx.Err())
		}
		if !retryable(err) {
			return lastErr
		}
	}
	return lastErr
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func sleep(ctx context.Context, d time.Duration) error {
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
