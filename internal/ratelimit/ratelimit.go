// Package ratelimit paces fetches per domain and bounds in-flight requests.
package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Limiter enforces a randomized inter-request delay per domain and caps the
// number of concurrent fetches against each domain. Every fetch path goes
// through Wait; nothing bypasses it.
type Limiter struct {
	minDelay    time.Duration
	maxDelay    time.Duration
	concurrency int64

	mu      sync.Mutex
	domains map[string]*domainState
	rng     *rand.Rand
}

type domainState struct {
	sem *semaphore.Weighted

	mu     sync.Mutex
	nextAt time.Time // earliest moment the next fetch may start
}

// New creates a limiter drawing delays uniformly from [minDelay, maxDelay]
// and allowing at most concurrency simultaneous fetches per domain.
func New(minDelay, maxDelay time.Duration, concurrency int) *Limiter {
	if concurrency < 1 {
		concurrency = 1
	}
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &Limiter{
		minDelay:    minDelay,
		maxDelay:    maxDelay,
		concurrency: int64(concurrency),
		domains:     make(map[string]*domainState),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Wait suspends the caller until the domain's next permitted fetch slot and
// acquires one in-flight slot. Callers must release it with Done. Context
// cancellation aborts the wait.
func (l *Limiter) Wait(ctx context.Context, domain string) error {
	state := l.stateFor(domain)

	state.mu.Lock()
	now := time.Now()
	start := state.nextAt
	if start.Before(now) {
		start = now
	}
	state.nextAt = start.Add(l.randomDelay())
	state.mu.Unlock()

	if wait := time.Until(start); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return state.sem.Acquire(ctx, 1)
}

// Done releases the in-flight slot acquired by Wait.
func (l *Limiter) Done(domain string) {
	l.stateFor(domain).sem.Release(1)
}

func (l *Limiter) stateFor(domain string) *domainState {
	l.mu.Lock()
	defer l.mu.Unlock()
	state, ok := l.domains[domain]
	if !ok {
		state = &domainState{sem: semaphore.NewWeighted(l.concurrency)}
		l.domains[domain] = state
	}
	return state
}

func (l *Limiter) randomDelay() time.Duration {
	spread := l.maxDelay - l.minDelay
	if spread <= 0 {
		return l.minDelay
	}
	l.mu.Lock()
	jitter := time.Duration(l.rng.Int63n(int64(spread) + 1))
	l.mu.Unlock()
	return l.minDelay + jitter
}
