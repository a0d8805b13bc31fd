// Package resilience provides the retry and circuit-breaking policies
// composed around raw fetch operations. Policies are plain wrappers, not
// part of any fetcher, so they can be swapped per job.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy retries retryable failures with exponential backoff and
// jitter. Errors exposing Retryable() bool decide their own fate;
// everything else propagates immediately.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Logger      *zap.Logger
}

// DefaultRetryPolicy is tuned for page fetches.
func DefaultRetryPolicy(logger *zap.Logger) RetryPolicy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Logger:      logger,
	}
}

type retryable interface {
	Retryable() bool
}

func isRetryable(err error) bool {
	var r retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}

// Retry runs op until it succeeds, fails non-retryably, exhausts the
// attempt budget or the context is cancelled.
func Retry[T any](ctx context.Context, p RetryPolicy, op func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := op()
		if err == nil {
			if attempt > 0 {
				logger.Info("operation succeeded after retry",
					zap.Int("attempt", attempt+1),
					zap.Int("max_attempts", attempts))
			}
			return result, nil
		}
		lastErr = err

		if !isRetryable(err) {
			return zero, err
		}
		if attempt == attempts-1 {
			break
		}

		delay := backoffDelay(attempt, p.BaseDelay, p.MaxDelay)
		logger.Warn("operation failed, retrying",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", attempts),
			zap.Duration("delay", delay))

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}

	return zero, fmt.Errorf("operation failed after %d attempts: %w", attempts, lastErr)
}

// backoffDelay computes base * 2^attempt capped at max, with ±10% jitter.
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	delay := float64(base) * math.Pow(2, float64(attempt))
	if max > 0 && delay > float64(max) {
		delay = float64(max)
	}
	jitter := delay * 0.1 * (rand.Float64()*2 - 1)
	return time.Duration(delay + jitter)
}
