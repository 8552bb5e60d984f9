package timeutil

import (
	"testing"
	"time"
)

func TestSystemClock(t *testing.T) {
	before := time.Now()
	now := SystemClock{}.Now()
	if now.Before(before) {
		t.Errorf("Now() = %v, before %v", now, before)
	}
	if d := Elapsed(SystemClock{}, before.Add(-time.Second)); d < time.Second {
		t.Errorf("Elapsed() = %v, want >= 1s", d)
	}
}

func TestStepClock(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewStepClock(start, 2*time.Second)

	if got := c.Now(); !got.Equal(start) {
		t.Errorf("first Now() = %v, want %v", got, start)
	}
	if got := c.Now(); !got.Equal(start.Add(2 * time.Second)) {
		t.Errorf("second Now() = %v, want +2s", got)
	}

	c.Skip(time.Minute)
	// Elapsed consumes one read: start+4s+1m.
	if d := Elapsed(c, start); d != time.Minute+4*time.Second {
		t.Errorf("Elapsed() = %v, want 1m4s", d)
	}
}

func TestStepClock_ZeroStepIsFrozen(t *testing.T) {
	start := time.Unix(1700000000, 0)
	c := NewStepClock(start, 0)
	for i := 0; i < 3; i++ {
		if got := c.Now(); !got.Equal(start) {
			t.Fatalf("Now() = %v, want %v", got, start)
		}
	}
}

var _ Clock = SystemClock{}
var _ Clock = (*StepClock)(nil)
