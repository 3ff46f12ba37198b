// Package leader implements lease-based leader election so that exactly
// one scheduler process in a fleet advances due schedules at a time.
// The lease lives in the locks table behind store.LockStore; its
// (owner, locked_at) pair doubles as a fencing token.
package leader

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/barnqueue/barn/internal/events"
	"github.com/barnqueue/barn/internal/metrics"
	"github.com/barnqueue/barn/internal/store"
	"github.com/barnqueue/barn/internal/wakeup"
	"github.com/google/uuid"
)

// State is the Elector's current relationship to the lease.
type State string

const (
	Follower State = "follower"
	Leader   State = "leader"
)

const (
	DefaultHeartbeatInterval = 5 * time.Second
	DefaultLeaseTTL          = 30 * time.Second
)

// Elector runs the Follower/Leader state machine against a single named
// lease. Construct one per process; Run blocks until its stop channel is
// closed.
type Elector struct {
	locks  store.LockStore
	events *events.Bus
	logger *slog.Logger

	leaseName         string
	owner             string
	heartbeatInterval time.Duration
	leaseTTL          time.Duration

	mu       sync.RWMutex
	state    State
	lockedAt time.Time

	wake *wakeup.Signal
}

// New constructs an Elector for leaseName. owner defaults to a freshly
// generated UUID when empty. heartbeatInterval/leaseTTL fall back
// to the package defaults when zero; leaseTTL must be at least 3x
// heartbeatInterval so a stalled leader is noticed before its lease
// expires elsewhere, and is clamped up to that floor rather than
// rejected.
func New(locks store.LockStore, evs *events.Bus, logger *slog.Logger, leaseName, owner string, heartbeatInterval, leaseTTL time.Duration) *Elector {
	if owner == "" {
		owner = uuid.NewString()
	}
	if heartbeatInterval <= 0 {
		heartbeatInterval = DefaultHeartbeatInterval
	}
	if leaseTTL <= 0 {
		leaseTTL = DefaultLeaseTTL
	}
	if leaseTTL < 3*heartbeatInterval {
		leaseTTL = 3 * heartbeatInterval
	}
	if evs == nil {
		evs = events.New()
	}
	return &Elector{
		locks:             locks,
		events:            evs,
		logger:            logger.With("component", "leader", "lease", leaseName, "owner", owner),
		leaseName:         leaseName,
		owner:             owner,
		heartbeatInterval: heartbeatInterval,
		leaseTTL:          leaseTTL,
		state:             Follower,
		wake:              wakeup.NewSignal(),
	}
}

// IsLeader reports whether this Elector currently holds the lease. Safe
// for concurrent use by the Scheduler deciding whether to run its drain
// phase.
func (e *Elector) IsLeader() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state == Leader
}

// Run loops TryAcquire/Confirm at heartbeatInterval until stop is
// closed, firing leader-acquired/leader-released transitions via the
// events bus and releasing the lease on shutdown if held.
func (e *Elector) Run(ctx context.Context, stop <-chan struct{}) {
	e.logger.Info("leader elector started", "heartbeat_interval", e.heartbeatInterval, "lease_ttl", e.leaseTTL)

	for {
		e.tick(ctx)

		if wakeup.Sleep(e.heartbeatInterval, stop, e.wake) {
			e.shutdown(ctx)
			e.logger.Info("leader elector shut down")
			return
		}
	}
}

func (e *Elector) tick(ctx context.Context) {
	e.mu.Lock()
	was := e.state
	e.mu.Unlock()

	if was == Follower {
		acquired, lockedAt, err := e.locks.TryAcquire(ctx, e.leaseName, e.owner, e.leaseTTL)
		if err != nil {
			e.logger.Error("try acquire", "error", err)
			return
		}
		if !acquired {
			return
		}
		e.becomeLeader(ctx, lockedAt)
		return
	}

	e.mu.RLock()
	expected := e.lockedAt
	e.mu.RUnlock()

	ok, lockedAt, err := e.locks.Confirm(ctx, e.leaseName, e.owner, expected)
	if err != nil {
		e.logger.Error("confirm lease", "error", err)
		return
	}
	if !ok {
		e.becomeFollower(ctx)
		return
	}
	e.mu.Lock()
	e.lockedAt = lockedAt
	e.mu.Unlock()
}

func (e *Elector) becomeLeader(ctx context.Context, lockedAt time.Time) {
	e.mu.Lock()
	e.state = Leader
	e.lockedAt = lockedAt
	e.mu.Unlock()

	e.logger.Info("acquired leadership")
	metrics.LeaderState.Set(1)
	e.events.FireLeaderAcquired(ctx)
}

func (e *Elector) becomeFollower(ctx context.Context) {
	e.mu.Lock()
	e.state = Follower
	e.mu.Unlock()

	e.logger.Warn("lost leadership")
	metrics.LeaderState.Set(0)
	e.events.FireLeaderReleased(ctx)
}

func (e *Elector) shutdown(ctx context.Context) {
	e.mu.Lock()
	was := e.state
	expected := e.lockedAt
	e.state = Follower
	e.mu.Unlock()

	if was != Leader {
		return
	}
	if err := e.locks.Release(ctx, e.leaseName, e.owner, expected); err != nil {
		e.logger.Error("release lease", "error", err)
	}
	metrics.LeaderState.Set(0)
	e.events.FireLeaderReleased(ctx)
}
