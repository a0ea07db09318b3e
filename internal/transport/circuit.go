package transport

import (
	"sync"
	"time"
)

// CircuitState is one of CLOSED, OPEN, HALF_OPEN.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "CLOSED"
	case CircuitOpen:
		return "OPEN"
	case CircuitHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// breaker is a per-upstream CLOSED/OPEN/HALF_OPEN failure gate. Counters are
// updated under a dedicated lock, independent of the Pool's own lock.
type breaker struct {
	mu sync.Mutex

	state            CircuitState
	failureCount     int
	successCount     int
	lastFailureAt    time.Time
	failureThreshold int
	successThreshold int
	openTimeout      time.Duration
}

func newBreaker(failureThreshold, successThreshold int, openTimeout time.Duration) *breaker {
	return &breaker{
		state:            CircuitClosed,
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		openTimeout:      openTimeout,
	}
}

// allow reports whether an acquisition may proceed, transitioning OPEN to
// HALF_OPEN once the cooldown has elapsed.
func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitClosed, CircuitHalfOpen:
		return true
	case CircuitOpen:
		if time.Since(b.lastFailureAt) >= b.openTimeout {
			b.state = CircuitHalfOpen
			b.successCount = 0
			return true
		}
		return false
	default:
		return true
	}
}

func (b *breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitClosed:
		b.failureCount = 0
	case CircuitHalfOpen:
		b.successCount++
		if b.successCount >= b.successThreshold {
			b.state = CircuitClosed
			b.failureCount = 0
			b.successCount = 0
		}
	}
}

func (b *breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailureAt = time.Now()
	switch b.state {
	case CircuitClosed:
		b.failureCount++
		if b.failureCount >= b.failureThreshold {
			b.state = CircuitOpen
		}
	case CircuitHalfOpen:
		b.state = CircuitOpen
		b.successCount = 0
	}
}

func (b *breaker) snapshot() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
