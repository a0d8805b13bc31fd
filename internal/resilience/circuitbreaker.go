package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// ErrCircuitOpen is returned without any operation attempt while the
// breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker stops attempting an operation after consecutive failures,
// to avoid compounding load on a failing target. One breaker belongs to one
// fetch path; it is never shared across jobs.
type CircuitBreaker struct {
	failureThreshold int
	recoveryTimeout  time.Duration
	onStateChange    func(State)
	logger           *zap.Logger

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(failureThreshold int, recoveryTimeout time.Duration, logger *zap.Logger) *CircuitBreaker {
	if failureThreshold < 1 {
		failureThreshold = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		logger:           logger,
		state:            StateClosed,
	}
}

// OnStateChange registers a callback invoked after every transition, for
// metrics. Must be set before first use.
func (cb *CircuitBreaker) OnStateChange(fn func(State)) {
	cb.onStateChange = fn
}

// State returns the current state, accounting for recovery-timeout expiry.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// allow reports whether a call may proceed, transitioning OPEN to HALF_OPEN
// once the recovery timeout has elapsed.
func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if time.Since(cb.lastFailure) >= cb.recoveryTimeout {
			cb.setStateLocked(StateHalfOpen)
			return true
		}
		return false
	}
	return false
}

// record updates the breaker after an attempt.
func (cb *CircuitBreaker) record(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if success {
		cb.failures = 0
		if cb.state != StateClosed {
			cb.setStateLocked(StateClosed)
		}
		return
	}

	cb.failures++
	cb.lastFailure = time.Now()
	if cb.state == StateHalfOpen || cb.failures >= cb.failureThreshold {
		cb.setStateLocked(StateOpen)
	}
}

func (cb *CircuitBreaker) setStateLocked(next State) {
	if cb.state == next {
		return
	}
	prev := cb.state
	cb.state = next
	cb.logger.Info("circuit breaker state changed",
		zap.String("from", prev.String()),
		zap.String("to", next.String()),
		zap.Int("consecutive_failures", cb.failures))
	if cb.onStateChange != nil {
		cb.onStateChange(next)
	}
}

// Do runs op under the breaker: open state rejects immediately with
// ErrCircuitOpen, a half-open breaker admits this single trial call.
func Do[T any](cb *CircuitBreaker, op func() (T, error)) (T, error) {
	var zero T
	if !cb.allow() {
		return zero, ErrCircuitOpen
	}
	result, err := op()
	cb.record(err == nil)
	if err != nil {
		return zero, err
	}
	return result, nil
}

// Execute composes the two policies in the required order,
// CircuitBreaker(Retry(op)), so that one exhausted retry sequence counts as
// a single breaker failure.
func Execute[T any](ctx context.Context, cb *CircuitBreaker, p RetryPolicy, op func() (T, error)) (T, error) {
	return Do(cb, func() (T, error) {
		return Retry(ctx, p, op)
	})
}
