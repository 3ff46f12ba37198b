// Package wakeup implements the composite {stop, wakeup} sleep: a
// single jittered timeout that returns early when either the component
// is told to stop or a bus notification arrives.
package wakeup

import (
	"math/rand"
	"time"
)

// Signal is a one-shot, auto-resetting condition. Set is idempotent and
// non-blocking; Sleep clears it when it returns on the wakeup.
type Signal struct {
	ch chan struct{}
}

func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{}, 1)}
}

// Set wakes one pending or future Sleep call. Calling it multiple times
// before the wakeup is consumed has no additional effect.
func (s *Signal) Set() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// C exposes the underlying channel for use in a select alongside a stop
// channel, as Worker/Scheduler do in their sleep phase.
func (s *Signal) C() <-chan struct{} {
	return s.ch
}

// Jitter returns d scaled by a uniform random factor in [1-frac, 1+frac].
// Jitter is applied to the sleep timeout, never to a task's run_at or
// a schedule's next_run_at.
func Jitter(d time.Duration, frac float64) time.Duration {
	if frac <= 0 {
		return d
	}
	delta := (rand.Float64()*2 - 1) * frac
	return time.Duration(float64(d) * (1 + delta))
}

// Sleep blocks for up to Jitter(interval, 0.05), returning early if stop
// or wakeup fires. It reports whether it returned because of stop.
func Sleep(interval time.Duration, stop <-chan struct{}, wake *Signal) (stopped bool) {
	timer := time.NewTimer(Jitter(interval, 0.05))
	defer timer.Stop()

	select {
	case <-stop:
		return true
	case <-wake.C():
		return false
	case <-timer.C:
		return false
	}
}
