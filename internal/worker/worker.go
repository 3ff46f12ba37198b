// Package worker implements the worker loop: a long-running component
// that claims one due task at a time, invokes its registered function
// inside the claim transaction, and records the outcome. No heartbeat
// goroutine is needed: if the process dies mid-task the claim
// transaction aborts and the row reverts to QUEUED for another worker.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/barnqueue/barn/internal/bus"
	"github.com/barnqueue/barn/internal/domain"
	"github.com/barnqueue/barn/internal/events"
	barnlog "github.com/barnqueue/barn/internal/log"
	"github.com/barnqueue/barn/internal/metrics"
	"github.com/barnqueue/barn/internal/registry"
	"github.com/barnqueue/barn/internal/store"
	"github.com/barnqueue/barn/internal/wakeup"
)

// Config holds the Worker's tunables, sourced from the TASK_* env keys.
type Config struct {
	PollInterval time.Duration
	// FinishedTTL, if non-zero, enables the sweep phase.
	FinishedTTL time.Duration
	Concurrency int
}

// Worker claims and executes queued tasks. Construct one per process;
// Run blocks until stop is closed.
type Worker struct {
	store    store.TaskStore
	registry *registry.Registry
	events   *events.Bus
	bus      bus.Bus
	logger   *slog.Logger
	cfg      Config

	wake *wakeup.Signal
}

func New(s store.TaskStore, reg *registry.Registry, evs *events.Bus, b bus.Bus, logger *slog.Logger, cfg Config) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if evs == nil {
		evs = events.New()
	}
	if b == nil {
		b = bus.NewNoop()
	}
	return &Worker{
		store:    s,
		registry: reg,
		events:   evs,
		bus:      b,
		logger:   logger.With("component", "worker"),
		cfg:      cfg,
		wake:     wakeup.NewSignal(),
	}
}

// Run is the main loop: drain, sweep, sleep, repeat.
func (w *Worker) Run(ctx context.Context, stop <-chan struct{}) {
	w.logger.Info("worker started", "poll_interval", w.cfg.PollInterval, "concurrency", w.cfg.Concurrency)

	notifications, unsubscribe := w.bus.Subscribe(bus.ModelTask)
	go w.relayNotifications(notifications, stop)
	defer unsubscribe()

	for {
		w.drain(ctx, stop)
		w.sampleQueueDepth(ctx)

		if w.cfg.FinishedTTL > 0 {
			w.sweep(ctx)
		}

		if wakeup.Sleep(w.cfg.PollInterval, stop, w.wake) {
			w.logger.Info("worker shut down")
			return
		}
	}
}

func (w *Worker) relayNotifications(notifications <-chan bus.Notification, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case n, ok := <-notifications:
			if !ok {
				return
			}
			metrics.BusNotificationsTotal.WithLabelValues(n.Model).Inc()
			w.wake.Set()
		}
	}
}

// drain runs rounds of up to cfg.Concurrency concurrent claims each,
// stopping when a round claims nothing or stop fires.
func (w *Worker) drain(ctx context.Context, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		results := make(chan bool, w.cfg.Concurrency)
		var wg sync.WaitGroup
		for i := 0; i < w.cfg.Concurrency; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results <- w.drainOne(ctx)
			}()
		}
		wg.Wait()
		close(results)

		any := false
		for ok := range results {
			any = any || ok
		}
		if !any {
			return
		}
	}
}

// drainOne claims and executes exactly one task, reporting whether a
// task was processed (see execute).
func (w *Worker) drainOne(ctx context.Context) bool {
	task, tx, err := w.store.Claim(ctx)
	if err != nil {
		w.logger.Error("claim task", "error", err)
		return false
	}
	if task == nil {
		return false
	}

	metrics.TaskPickupLatency.Observe(time.Since(task.RunAt).Seconds())
	return w.execute(ctx, task, tx)
}

// execute runs task's registered function inside tx, entirely within
// the claim transaction that holds the row lock. It
// reports whether the task was actually processed: a pre-hook abort
// rolls the row back to QUEUED and counts as an empty round, so the
// drain loop does not hot-spin re-claiming the same vetoed task; it
// is retried on the next poll instead.
func (w *Worker) execute(ctx context.Context, task *domain.Task, tx store.TaskTx) bool {
	ctx = barnlog.WithTaskID(ctx, task.ID)
	logger := w.logger.With("task_id", task.ID, "func", task.Func)

	if err := w.events.FirePreTaskExecute(ctx, task); err != nil {
		logger.Warn("pre_task_execute aborted task", "error", err)
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			logger.Error("rollback after aborted pre-hook", "error", rbErr)
		}
		return false
	}

	started := time.Now()
	outcome := w.invoke(ctx, task)
	duration := time.Since(started).Seconds()

	if err := tx.Finish(ctx, outcome); err != nil {
		logger.Error("finish task", "error", err)
		_ = tx.Rollback(ctx)
		return false
	}
	if err := tx.Commit(ctx); err != nil {
		logger.Error("commit task", "error", err)
		return false
	}

	result := "done"
	if outcome.Err != nil {
		result = "failed"
		logger.Warn("task failed", "error", outcome.Err)
	} else {
		logger.Info("task done")
	}
	metrics.TaskExecutionDuration.WithLabelValues(task.Func, result).Observe(duration)
	metrics.TasksCompletedTotal.WithLabelValues(result).Inc()
	w.events.FirePostTaskExecute(ctx, task, outcome.Err)
	return true
}

// invoke resolves and calls task's registered function, recovering from
// a panic the same way the worker records a returned error: as a
// recorded TaskFailure that never escapes the loop.
func (w *Worker) invoke(ctx context.Context, task *domain.Task) domain.Outcome {
	fn, err := w.registry.Resolve(task.Func)
	if err != nil {
		return domain.Outcome{Err: err}
	}

	args := task.Args
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}

	ctx = withCurrentTask(ctx, task)

	var outcome domain.Outcome
	func() {
		defer func() {
			if r := recover(); r != nil {
				outcome = domain.Outcome{Err: fmt.Errorf("panic: %v\n%s", r, debug.Stack())}
			}
		}()
		result, err := fn(ctx, args)
		if err != nil {
			outcome = domain.Outcome{Err: err}
			return
		}
		raw, mErr := json.Marshal(result)
		if mErr != nil {
			outcome = domain.Outcome{Err: fmt.Errorf("marshal task result: %w", mErr)}
			return
		}
		outcome = domain.Outcome{Result: raw}
	}()
	return outcome
}

// sampleQueueDepth refreshes metrics.TasksQueuedGauge once per cycle, so
// the admin API's /metrics reflects backlog size without every Enqueue
// paying for a live count.
func (w *Worker) sampleQueueDepth(ctx context.Context) {
	n, err := w.store.Count(ctx, domain.StatusQueued)
	if err != nil {
		w.logger.Warn("sample queue depth", "error", err)
		return
	}
	metrics.TasksQueuedGauge.Set(float64(n))
}

func (w *Worker) sweep(ctx context.Context) {
	n, err := w.store.SweepOld(ctx, w.cfg.FinishedTTL)
	if err != nil {
		w.logger.Error("sweep tasks", "error", err)
		return
	}
	if n > 0 {
		w.logger.Info("swept finished tasks", "count", n)
	}
}

// RunSynchronously claims and executes a single already-enqueued task
// inline, for the TASK_SYNC configuration flag. It rejects
// tasks that are not currently QUEUED (e.g. one a worker has already
// claimed and finished). It does not check run_at.
func (w *Worker) RunSynchronously(ctx context.Context, taskID int64) (*domain.Task, error) {
	task, tx, err := w.store.ClaimByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	w.execute(ctx, task, tx)
	return w.store.GetByID(ctx, taskID)
}
