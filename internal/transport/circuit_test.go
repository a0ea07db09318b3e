package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := newBreaker(3, 2, 50*time.Millisecond)

	assert.True(t, b.allow())
	b.recordFailure()
	b.recordFailure()
	assert.Equal(t, CircuitClosed, b.snapshot())
	b.recordFailure()
	assert.Equal(t, CircuitOpen, b.snapshot())
	assert.False(t, b.allow())
}

func TestBreaker_HalfOpenThenClose(t *testing.T) {
	b := newBreaker(1, 2, 10*time.Millisecond)
	b.recordFailure()
	assert.Equal(t, CircuitOpen, b.snapshot())

	time.Sleep(20 * time.Millisecond)
	assert.True(t, b.allow())
	assert.Equal(t, CircuitHalfOpen, b.snapshot())

	b.recordSuccess()
	assert.Equal(t, CircuitHalfOpen, b.snapshot())
	b.recordSuccess()
	assert.Equal(t, CircuitClosed, b.snapshot())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := newBreaker(1, 2, 10*time.Millisecond)
	b.recordFailure()
	time.Sleep(20 * time.Millisecond)
	assert.True(t, b.allow())

	b.recordFailure()
	assert.Equal(t, CircuitOpen, b.snapshot())
}
