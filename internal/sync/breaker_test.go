package sync

import (
	"errors"
	"testing"
	"time"

	"github.com/harper/dispatch/internal/clock"
)

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	clk := clock.Fake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	b := NewCircuitBreaker(clk)

	for i := 0; i < 4; i++ {
		if err := b.Allow(); err != nil {
			t.Fatalf("failure %d: breaker closed early: %v", i, err)
		}
		b.RecordFailure()
	}
	if b.State() != BreakerClosed {
		t.Fatalf("state after 4 failures: %v", b.State())
	}

	b.RecordFailure()
	if b.State() != BreakerOpen {
		t.Fatalf("state after 5 failures: %v", b.State())
	}
	if err := b.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("open breaker allowed a call: %v", err)
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	clk := clock.Fake(time.Now())
	b := NewCircuitBreaker(clk)

	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	b.RecordSuccess()
	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	if b.State() != BreakerClosed {
		t.Fatalf("interleaved success did not reset the count: %v", b.State())
	}
}

func TestBreaker_HalfOpenProbeAfterCooldown(t *testing.T) {
	clk := clock.Fake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	b := NewCircuitBreaker(clk)

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}

	// Before the cooldown: fail fast.
	clk.Advance(29 * time.Second)
	if err := b.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("allowed during cooldown: %v", err)
	}

	// After the cooldown: exactly one probe is admitted.
	clk.Advance(time.Second)
	if err := b.Allow(); err != nil {
		t.Fatalf("probe rejected after cooldown: %v", err)
	}
	if b.State() != BreakerHalfOpen {
		t.Fatalf("state: %v, want half_open", b.State())
	}
	if err := b.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatal("second call admitted while probe in flight")
	}
}

func TestBreaker_ProbeSuccessCloses(t *testing.T) {
	clk := clock.Fake(time.Now())
	b := NewCircuitBreaker(clk)

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	clk.Advance(30 * time.Second)
	if err := b.Allow(); err != nil {
		t.Fatalf("probe: %v", err)
	}
	b.RecordSuccess()

	if b.State() != BreakerClosed {
		t.Fatalf("state after successful probe: %v", b.State())
	}
	if err := b.Allow(); err != nil {
		t.Fatalf("closed breaker rejected a call: %v", err)
	}
}

func TestBreaker_ProbeFailureReopens(t *testing.T) {
	clk := clock.Fake(time.Now())
	b := NewCircuitBreaker(clk)

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	clk.Advance(30 * time.Second)
	if err := b.Allow(); err != nil {
		t.Fatalf("probe: %v", err)
	}
	b.RecordFailure()

	if b.State() != BreakerOpen {
		t.Fatalf("state after failed probe: %v", b.State())
	}
	// A fresh cooldown starts from the failed probe.
	clk.Advance(29 * time.Second)
	if err := b.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatal("reopened breaker admitted a call before its cooldown")
	}
	clk.Advance(time.Second)
	if err := b.Allow(); err != nil {
		t.Fatalf("second probe rejected: %v", err)
	}
}
