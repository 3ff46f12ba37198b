package wakeup_test

import (
	"testing"
	"time"

	"github.com/barnqueue/barn/internal/wakeup"
)

func TestSleep_ReturnsEarlyOnWakeup(t *testing.T) {
	sig := wakeup.NewSignal()
	sig.Set()

	start := time.Now()
	stopped := wakeup.Sleep(time.Hour, make(chan struct{}), sig)
	if stopped {
		t.Fatal("a wakeup should not report stopped")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("slept %v despite a pending wakeup", elapsed)
	}
}

func TestSleep_ReturnsOnStop(t *testing.T) {
	stop := make(chan struct{})
	close(stop)

	if stopped := wakeup.Sleep(time.Hour, stop, wakeup.NewSignal()); !stopped {
		t.Fatal("a closed stop channel should report stopped")
	}
}

// TestSignal_SetIsIdempotent checks the one-shot, auto-resetting
// contract: multiple Sets before a Wait collapse into a single wakeup.
func TestSignal_SetIsIdempotent(t *testing.T) {
	sig := wakeup.NewSignal()
	sig.Set()
	sig.Set()
	sig.Set()

	if stopped := wakeup.Sleep(time.Hour, make(chan struct{}), sig); stopped {
		t.Fatal("first sleep should consume the wakeup")
	}

	// The signal is now cleared; the next sleep must run to its timeout.
	start := time.Now()
	wakeup.Sleep(20*time.Millisecond, make(chan struct{}), sig)
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Fatalf("second sleep returned after %v, want the full timeout", elapsed)
	}
}

func TestJitter_Bounds(t *testing.T) {
	d := 10 * time.Second
	for i := 0; i < 100; i++ {
		j := wakeup.Jitter(d, 0.05)
		if j < time.Duration(float64(d)*0.95) || j > time.Duration(float64(d)*1.05) {
			t.Fatalf("jitter = %v, want within 5%% of %v", j, d)
		}
	}
	if wakeup.Jitter(d, 0) != d {
		t.Fatal("zero fraction should return d unchanged")
	}
}
