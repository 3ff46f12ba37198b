// Package registry resolves symbolic "<module>.<name>" function names:
// a plain string-to-callable map populated at startup. It also carries
// the public embedding API: Task wraps a registered Func and exposes
// Delay/ApplyAsync/Cancel, backed by a store.TaskStore.
package registry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/barnqueue/barn/internal/domain"
	"github.com/barnqueue/barn/internal/store"
)

// Func is a registered task body. It receives the decoded argument bag
// (an empty map if the task was enqueued with no args) and returns a
// JSON-encodable result or an error.
type Func func(ctx context.Context, args json.RawMessage) (any, error)

// Runner executes one already-enqueued task inline, in the caller's
// goroutine. worker.Worker's RunSynchronously satisfies it.
type Runner interface {
	RunSynchronously(ctx context.Context, taskID int64) (*domain.Task, error)
}

// Registry maps "<module>.<name>" to a Func. It is populated once at
// startup, before any Worker is started, and is read-only thereafter;
// no lock is needed on the read path.
type Registry struct {
	funcs map[string]Func
	sync  Runner
}

func New() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// EnableSync turns on TASK_SYNC mode: every Delay/
// ApplyAsync executes its task inline through r before returning, and
// enqueues with a future run_at are rejected. Call at startup, before
// any enqueue.
func (r *Registry) EnableSync(runner Runner) {
	r.sync = runner
}

// Register adds fn under name, typically "<module>.<name>". Registering
// the same name twice overwrites the previous entry; callers control
// load order and the last registration wins.
func (r *Registry) Register(name string, fn Func) {
	r.funcs[name] = fn
}

// Resolve looks fn up by name. A miss is domain.ErrFuncNotRegistered,
// which the Worker records on the task as a failure.
func (r *Registry) Resolve(name string) (Func, error) {
	fn, ok := r.funcs[name]
	if !ok {
		return nil, domain.ErrFuncNotRegistered
	}
	return fn, nil
}

// Task is the embedding-API wrapper: user code holds one per registered
// function and calls Delay/ApplyAsync/Cancel on it.
type Task struct {
	name  string
	store store.TaskStore
	reg   *Registry
}

// NewTask registers fn under name in reg and returns a Task wrapper bound
// to store for enqueue/cancel operations.
func NewTask(reg *Registry, store store.TaskStore, name string, fn Func) *Task {
	reg.Register(name, fn)
	return &Task{name: name, store: store, reg: reg}
}

// Delay enqueues the task to run as soon as a worker is free.
func (t *Task) Delay(ctx context.Context, args any) (*domain.Task, error) {
	return t.ApplyAsync(ctx, ApplyOptions{Args: args})
}

// ApplyOptions configures ApplyAsync. Countdown and ETA are mutually
// exclusive.
type ApplyOptions struct {
	Args      any
	Countdown time.Duration
	ETA       time.Time
}

// ApplyAsync enqueues the task with an optional delay (Countdown) or
// absolute instant (ETA).
func (t *Task) ApplyAsync(ctx context.Context, opts ApplyOptions) (*domain.Task, error) {
	var raw json.RawMessage
	if opts.Args != nil {
		b, err := json.Marshal(opts.Args)
		if err != nil {
			return nil, err
		}
		raw = b
	}

	runAt := time.Now().UTC()
	switch {
	case !opts.ETA.IsZero() && opts.Countdown != 0:
		return nil, domain.ErrCountdownAndETA
	case !opts.ETA.IsZero():
		runAt = opts.ETA.UTC()
	case opts.Countdown != 0:
		runAt = runAt.Add(opts.Countdown)
	}

	if t.reg.sync != nil && runAt.After(time.Now().UTC()) {
		return nil, domain.ErrSyncFutureRunAt
	}

	task, err := t.store.Enqueue(ctx, store.EnqueueInput{
		Func:  t.name,
		Args:  raw,
		RunAt: runAt,
	})
	if err != nil {
		return nil, err
	}

	if t.reg.sync != nil {
		return t.reg.sync.RunSynchronously(ctx, task.ID)
	}
	return task, nil
}

// Cancel deletes queued rows for this task whose args match argsMatch as
// a JSON subset, returning whether any were removed.
func (t *Task) Cancel(ctx context.Context, argsMatch map[string]any) (bool, error) {
	return t.store.Cancel(ctx, store.CancelInput{Func: t.name, ArgsMatch: argsMatch})
}
