// Package scheduler implements the scheduler loop: a long-running
// component that drains due Schedule rows, enqueues their Task, and
// advances them via internal/cronexpr. When more than one process runs
// the scheduler component, a leader elector gates the drain so only one
// node ticks.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/barnqueue/barn/internal/bus"
	"github.com/barnqueue/barn/internal/cronexpr"
	"github.com/barnqueue/barn/internal/domain"
	"github.com/barnqueue/barn/internal/events"
	barnlog "github.com/barnqueue/barn/internal/log"
	"github.com/barnqueue/barn/internal/metrics"
	"github.com/barnqueue/barn/internal/store"
	"github.com/barnqueue/barn/internal/wakeup"
)

// Elector is the subset of leader.Elector the Scheduler needs. A nil
// Elector means "always leader", the single-process case where no
// gating is necessary.
type Elector interface {
	IsLeader() bool
}

type Config struct {
	PollInterval time.Duration
	FinishedTTL  time.Duration
	BatchSize    int
}

type Scheduler struct {
	store   store.ScheduleStore
	events  *events.Bus
	bus     bus.Bus
	elector Elector
	logger  *slog.Logger
	cfg     Config

	wake *wakeup.Signal
}

func New(s store.ScheduleStore, evs *events.Bus, b bus.Bus, elector Elector, logger *slog.Logger, cfg Config) *Scheduler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 60 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if evs == nil {
		evs = events.New()
	}
	if b == nil {
		b = bus.NewNoop()
	}
	return &Scheduler{
		store:   s,
		events:  evs,
		bus:     b,
		elector: elector,
		logger:  logger.With("component", "scheduler"),
		cfg:     cfg,
		wake:    wakeup.NewSignal(),
	}
}

// Run is the main loop: drain (gated by leadership), sweep,
// sleep, repeat. The Scheduler runs at most once per process; when an
// Elector is supplied, only the leader's drain does anything.
func (s *Scheduler) Run(ctx context.Context, stop <-chan struct{}) {
	s.logger.Info("scheduler started", "poll_interval", s.cfg.PollInterval)

	notifications, unsubscribe := s.bus.Subscribe(bus.ModelSchedule)
	go s.relayNotifications(notifications, stop)
	defer unsubscribe()

	for {
		if s.elector == nil || s.elector.IsLeader() {
			s.drainUntilStable(ctx)

			if s.cfg.FinishedTTL > 0 {
				s.sweep(ctx)
			}
		}

		if wakeup.Sleep(s.cfg.PollInterval, stop, s.wake) {
			s.logger.Info("scheduler shut down")
			return
		}
	}
}

func (s *Scheduler) relayNotifications(notifications <-chan bus.Notification, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case n, ok := <-notifications:
			if !ok {
				return
			}
			metrics.BusNotificationsTotal.WithLabelValues(n.Model).Inc()
			s.wake.Set()
		}
	}
}

// drainUntilStable fires one drain pass and repeats it while any
// just-advanced next_run_at is still in the past (catch-up after
// downtime), until a pass advances nothing further.
func (s *Scheduler) drainUntilStable(ctx context.Context) {
	for {
		fired, stillDue := s.drain(ctx)
		if fired == 0 || !stillDue {
			return
		}
	}
}

// drain claims every due schedule and processes each in its own
// sub-transaction (store.ScheduleStore.ClaimDue's contract), reporting
// how many fired and whether any advanced next_run_at is still due now.
func (s *Scheduler) drain(ctx context.Context) (fired int, stillDue bool) {
	started := time.Now()
	defer func() { metrics.SchedulerCycleDuration.Observe(time.Since(started).Seconds()) }()

	claims, err := s.store.ClaimDue(ctx, s.cfg.BatchSize)
	if err != nil {
		s.logger.Error("claim due schedules", "error", err)
		return 0, false
	}

	now := time.Now().UTC()
	for _, claim := range claims {
		advanced, dueAgain := s.fire(ctx, claim.Schedule, claim.Tx, now)
		if advanced {
			fired++
		}
		stillDue = stillDue || dueAgain
	}
	if fired > 0 {
		s.logger.Info("fired schedules", "count", fired)
	}
	return fired, stillDue
}

func (s *Scheduler) fire(ctx context.Context, sc *domain.Schedule, tx store.ScheduleTx, now time.Time) (advanced, dueAgain bool) {
	ctx = barnlog.WithTaskID(ctx, sc.ID)
	logger := s.logger.With("schedule_id", sc.ID, "func", sc.Func)

	if err := s.events.FirePreScheduleExecute(ctx, sc); err != nil {
		logger.Warn("pre_schedule_execute aborted fire", "error", err)
		_ = tx.Rollback(ctx)
		return false, false
	}

	runAt := now
	if sc.NextRunAt != nil {
		runAt = *sc.NextRunAt
	}
	if _, err := tx.EnqueueFired(ctx, runAt); err != nil {
		logger.Error("enqueue fired task", "error", err)
		_ = tx.Rollback(ctx)
		return false, false
	}

	nextRunAt, isActive := cronexpr.Advance(sc, now)
	if err := tx.Advance(ctx, nextRunAt, now, isActive); err != nil {
		logger.Error("advance schedule", "error", err)
		return false, false
	}

	sc.NextRunAt = nextRunAt
	sc.LastRunAt = &now
	sc.IsActive = isActive
	metrics.SchedulesFiredTotal.WithLabelValues(sc.Func).Inc()
	s.events.FirePostScheduleExecute(ctx, sc)

	if !isActive && sc.CronExpr != "" {
		logger.Warn("schedule deactivated on advance", "cron_expr", sc.CronExpr)
	}

	// Catch-up after downtime: if the freshly advanced next_run_at is
	// still not in the future, this schedule needs another pass before
	// the Scheduler sleeps.
	dueAgain = isActive && nextRunAt != nil && !nextRunAt.After(time.Now().UTC())
	return true, dueAgain
}

func (s *Scheduler) sweep(ctx context.Context) {
	n, err := s.store.SweepOld(ctx, s.cfg.FinishedTTL)
	if err != nil {
		s.logger.Error("sweep schedules", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("swept inactive schedules", "count", n)
	}
}
