package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failing(calls *int) func() (int, error) {
	return func() (int, error) {
		*calls++
		return 0, &flakyError{retryable: true}
	}
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Minute, nil)
	calls := 0

	for i := 0; i < 3; i++ {
		_, err := Do(cb, failing(&calls))
		require.Error(t, err)
	}
	assert.Equal(t, StateOpen, cb.State())
	assert.Equal(t, 3, calls)

	// Open breaker rejects without invoking the operation.
	_, err := Do(cb, failing(&calls))
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 3, calls)
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	cb := NewCircuitBreaker(1, 20*time.Millisecond, nil)
	calls := 0

	_, err := Do(cb, failing(&calls))
	require.Error(t, err)
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(30 * time.Millisecond)

	// A successful probe closes the breaker again.
	got, err := Do(cb, func() (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, got)
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(1, 20*time.Millisecond, nil)
	calls := 0

	_, _ = Do(cb, failing(&calls))
	time.Sleep(30 * time.Millisecond)

	_, err := Do(cb, failing(&calls))
	require.Error(t, err)
	assert.Equal(t, StateOpen, cb.State())
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Minute, nil)
	calls := 0

	_, _ = Do(cb, failing(&calls))
	_, err := Do(cb, func() (int, error) { return 1, nil })
	require.NoError(t, err)

	// One more failure must not trip the breaker: the streak was broken.
	_, _ = Do(cb, failing(&calls))
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerStateChangeCallback(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Minute, nil)
	var transitions []State
	cb.OnStateChange(func(s State) { transitions = append(transitions, s) })

	calls := 0
	_, _ = Do(cb, failing(&calls))
	assert.Equal(t, []State{StateOpen}, transitions)
}

func TestExecuteCountsRetrySequenceAsOneFailure(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Minute, nil)
	calls := 0

	// One Execute runs 3 attempts but charges the breaker once.
	_, err := Execute(context.Background(), cb, fastPolicy(3), failing(&calls))
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, StateClosed, cb.State())

	_, err = Execute(context.Background(), cb, fastPolicy(3), failing(&calls))
	require.Error(t, err)
	assert.Equal(t, StateOpen, cb.State())

	// The open breaker short-circuits before any retry attempt runs.
	_, err = Execute(context.Background(), cb, fastPolicy(3), failing(&calls))
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 6, calls)
}
