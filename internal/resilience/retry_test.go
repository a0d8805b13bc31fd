package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyError struct {
	retryable bool
}

func (e *flakyError) Error() string   { return "flaky" }
func (e *flakyError) Retryable() bool { return e.retryable }

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
	}
}

func TestRetrySucceedsFirstTry(t *testing.T) {
	calls := 0
	got, err := Retry(context.Background(), fastPolicy(3), func() (string, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 1, calls)
}

func TestRetryRecoversFromTransientFailure(t *testing.T) {
	calls := 0
	got, err := Retry(context.Background(), fastPolicy(3), func() (int, error) {
		calls++
		if calls < 3 {
			return 0, &flakyError{retryable: true}
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, calls)
}

func TestRetryExhaustsBudget(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(3), func() (int, error) {
		calls++
		return 0, &flakyError{retryable: true}
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "after 3 attempts")

	var fe *flakyError
	assert.True(t, errors.As(err, &fe), "original error must stay unwrappable")
}

func TestRetryStopsOnNonRetryableError(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(5), func() (int, error) {
		calls++
		return 0, &flakyError{retryable: false}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryTreatsUnknownErrorsAsFatal(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(5), func() (int, error) {
		calls++
		return 0, errors.New("plain failure")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := Retry(ctx, fastPolicy(3), func() (int, error) {
		calls++
		return 0, &flakyError{retryable: true}
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, calls)
}

func TestBackoffDelayGrowsAndCaps(t *testing.T) {
	base := 100 * time.Millisecond
	max := 400 * time.Millisecond

	first := backoffDelay(0, base, max)
	assert.InDelta(t, float64(base), float64(first), float64(base)*0.11)

	second := backoffDelay(1, base, max)
	assert.InDelta(t, float64(2*base), float64(second), float64(2*base)*0.11)

	capped := backoffDelay(10, base, max)
	assert.LessOrEqual(t, capped, time.Duration(float64(max)*1.11))
}
