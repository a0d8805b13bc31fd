package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitSpacesRequests(t *testing.T) {
	l := New(30*time.Millisecond, 60*time.Millisecond, 1)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "example.com"))
	l.Done("example.com")

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "example.com"))
	l.Done("example.com")
	gap := time.Since(start)

	assert.GreaterOrEqual(t, gap, 25*time.Millisecond, "second request started before the minimum delay")
	assert.Less(t, gap, 200*time.Millisecond)
}

func TestWaitDomainsAreIndependent(t *testing.T) {
	l := New(100*time.Millisecond, 100*time.Millisecond, 1)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "a.example"))
	l.Done("a.example")

	// A different domain has its own schedule and starts immediately.
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "b.example"))
	l.Done("b.example")
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestWaitEnforcesConcurrencyCeiling(t *testing.T) {
	l := New(0, 0, 2)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "example.com"))
	require.NoError(t, l.Wait(ctx, "example.com"))

	// Both slots held; a third acquisition must block until Done.
	blocked, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	err := l.Wait(blocked, "example.com")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	l.Done("example.com")
	require.NoError(t, l.Wait(ctx, "example.com"))
	l.Done("example.com")
	l.Done("example.com")
}

func TestWaitHonorsCancellation(t *testing.T) {
	l := New(5*time.Second, 5*time.Second, 1)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "example.com"))
	l.Done("example.com")

	cancelled, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- l.Wait(cancelled, "example.com") }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after cancellation")
	}
}
