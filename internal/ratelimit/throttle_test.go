package ratelimit

import (
	"testing"
	"time"
)

func TestThrottle_Allow(t *testing.T) {
	tests := []struct {
		name      string
		perSecond float64
		burst     int
		calls     int
		wantPass  int
	}{
		{"burst allows initial events", 1, 3, 3, 3},
		{"exceeding burst blocks", 1, 2, 5, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			th := NewThrottle(tt.perSecond, tt.burst)
			th.SetClock(clock.Now)

			passed := 0
			for i := 0; i < tt.calls; i++ {
				if th.Allow("conn") {
					passed++
				}
			}

			if passed != tt.wantPass {
				t.Errorf("Allow() passed %d, want %d", passed, tt.wantPass)
			}
		})
	}
}

func TestThrottle_RefillsAndKeysAreIndependent(t *testing.T) {
	clock := newFakeClock()
	th := NewThrottle(1, 1)
	th.SetClock(clock.Now)

	if !th.Allow("a") || th.Allow("a") {
		t.Fatal("expected exactly one immediate event for a")
	}
	if !th.Allow("b") {
		t.Error("key b should have its own bucket")
	}

	clock.Advance(time.Second)
	if !th.Allow("a") {
		t.Error("bucket should refill after one second")
	}
}

func TestThrottle_ForgetAndSweep(t *testing.T) {
	clock := newFakeClock()
	th := NewThrottle(1, 1)
	th.SetClock(clock.Now)

	th.Allow("a")
	th.Allow("b")
	th.Forget("a")
	if th.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", th.Len())
	}

	clock.Advance(time.Hour)
	th.Allow("c")
	if n := th.Sweep(time.Minute); n != 1 {
		t.Errorf("Sweep() removed %d, want 1", n)
	}
	if th.Len() != 1 {
		t.Errorf("Len() = %d, want 1", th.Len())
	}
}
