package sync

import (
	"errors"
	"sync"
	"time"

	"github.com/harper/dispatch/internal/clock"
)

// ErrCircuitOpen is returned when the breaker is open and calls fail fast.
var ErrCircuitOpen = errors.New("circuit open")

// BreakerState is a circuit breaker's position.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

const (
	breakerThreshold = 5
	breakerCooldown  = 30 * time.Second
)

// CircuitBreaker guards all server calls of a sync manager. It opens after
// breakerThreshold consecutive transport failures, fails fast for a cooldown,
// then admits a single probe: success closes it, failure reopens it.
type CircuitBreaker struct {
	mu      sync.Mutex
	clk     clock.Clock
	state   BreakerState
	fails   int
	openedAt time.Time
	probing bool
}

// NewCircuitBreaker returns a closed breaker on the given clock.
func NewCircuitBreaker(clk clock.Clock) *CircuitBreaker {
	return &CircuitBreaker{clk: clk, state: BreakerClosed}
}

// Allow reports whether a call may proceed. In the open state it returns
// ErrCircuitOpen until the cooldown elapses, then admits one probe
// (half-open); further calls fail fast until the probe resolves.
func (b *CircuitBreaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return nil
	case BreakerOpen:
		if b.clk.Now().Sub(b.openedAt) < breakerCooldown {
			return ErrCircuitOpen
		}
		b.state = BreakerHalfOpen
		b.probing = true
		return nil
	case BreakerHalfOpen:
		if b.probing {
			return ErrCircuitOpen
		}
		b.probing = true
		return nil
	}
	return nil
}

// RecordSuccess closes the breaker and resets its counters.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.fails = 0
	b.probing = false
}

// RecordFailure counts a transport failure. The breaker opens on the
// threshold'th consecutive failure, or immediately when a half-open probe fails.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerHalfOpen {
		b.trip()
		return
	}

	b.fails++
	if b.fails >= breakerThreshold {
		b.trip()
	}
}

func (b *CircuitBreaker) trip() {
	b.state = BreakerOpen
	b.openedAt = b.clk.Now()
	b.fails = 0
	b.probing = false
}

// State returns the breaker's current position, advancing open to half-open
// when the cooldown has elapsed.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && b.clk.Now().Sub(b.openedAt) >= breakerCooldown {
		return BreakerHalfOpen
	}
	return b.state
}
