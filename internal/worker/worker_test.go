package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/barnqueue/barn/internal/domain"
	"github.com/barnqueue/barn/internal/events"
	"github.com/barnqueue/barn/internal/registry"
	"github.com/barnqueue/barn/internal/store"
	"github.com/barnqueue/barn/internal/store/storetest"
	"github.com/barnqueue/barn/internal/worker"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestWorker_HappyPath: an echo function completes and the task
// reaches DONE with started_at <= finished_at.
func TestWorker_HappyPath(t *testing.T) {
	fake := storetest.New()
	reg := registry.New()
	reg.Register("m.ok", func(_ context.Context, args json.RawMessage) (any, error) {
		var v map[string]any
		_ = json.Unmarshal(args, &v)
		return v, nil
	})

	task, err := fake.Tasks.Enqueue(context.Background(), store.EnqueueInput{Func: "m.ok", Args: json.RawMessage(`{"x":1}`)})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	w := worker.New(fake.Tasks, reg, nil, nil, discardLogger(), worker.Config{PollInterval: time.Hour})
	stop := make(chan struct{})
	go func() {
		time.Sleep(50 * time.Millisecond)
		close(stop)
	}()
	w.Run(context.Background(), stop)

	got, err := fake.Tasks.GetByID(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.StatusDone {
		t.Fatalf("status = %s, want DONE", got.Status)
	}
	if got.StartedAt == nil || got.FinishedAt == nil || got.FinishedAt.Before(*got.StartedAt) {
		t.Fatalf("started_at/finished_at invariant violated: %+v", got)
	}
	if string(got.Result) != `{"x":1}` {
		t.Errorf("result = %s, want echoed args", got.Result)
	}
}

// TestWorker_FailurePath: a function returning an error moves the task
// to FAILED without the error escaping the worker loop.
func TestWorker_FailurePath(t *testing.T) {
	fake := storetest.New()
	reg := registry.New()
	reg.Register("m.boom", func(context.Context, json.RawMessage) (any, error) {
		return nil, errors.New("RuntimeError: 71ADA163")
	})

	task, err := fake.Tasks.Enqueue(context.Background(), store.EnqueueInput{Func: "m.boom"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	w := worker.New(fake.Tasks, reg, nil, nil, discardLogger(), worker.Config{PollInterval: time.Hour})
	stop := make(chan struct{})
	go func() {
		time.Sleep(50 * time.Millisecond)
		close(stop)
	}()
	w.Run(context.Background(), stop)

	got, err := fake.Tasks.GetByID(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want FAILED", got.Status)
	}
	if got.Error == nil || !strings.Contains(*got.Error, "71ADA163") {
		t.Fatalf("error = %v, want it to contain 71ADA163", got.Error)
	}
	if got.FinishedAt == nil {
		t.Fatal("finished_at not set on failure")
	}
}

// TestWorker_UnregisteredFunc: an unknown func name is recorded as a
// failure on the task, not propagated.
func TestWorker_UnregisteredFunc(t *testing.T) {
	fake := storetest.New()
	reg := registry.New()

	task, err := fake.Tasks.Enqueue(context.Background(), store.EnqueueInput{Func: "m.missing"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	w := worker.New(fake.Tasks, reg, nil, nil, discardLogger(), worker.Config{PollInterval: time.Hour})
	stop := make(chan struct{})
	go func() {
		time.Sleep(50 * time.Millisecond)
		close(stop)
	}()
	w.Run(context.Background(), stop)

	got, _ := fake.Tasks.GetByID(context.Background(), task.ID)
	if got.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want FAILED", got.Status)
	}
	if got.Error == nil || !strings.Contains(*got.Error, domain.ErrFuncNotRegistered.Error()) {
		t.Fatalf("error = %v, want it to mention unregistered func", got.Error)
	}
}

// TestWorker_Ordering: of two ready tasks, the one with the earlier
// run_at is claimed first.
func TestWorker_Ordering(t *testing.T) {
	fake := storetest.New()
	reg := registry.New()

	var order []string
	reg.Register("m.mark", func(_ context.Context, args json.RawMessage) (any, error) {
		var v struct{ Name string }
		_ = json.Unmarshal(args, &v)
		order = append(order, v.Name)
		return nil, nil
	})

	now := time.Now().UTC()
	if _, err := fake.Tasks.Enqueue(context.Background(), store.EnqueueInput{
		Func: "m.mark", Args: json.RawMessage(`{"Name":"second"}`), RunAt: now.Add(10 * time.Millisecond),
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := fake.Tasks.Enqueue(context.Background(), store.EnqueueInput{
		Func: "m.mark", Args: json.RawMessage(`{"Name":"first"}`), RunAt: now,
	}); err != nil {
		t.Fatal(err)
	}

	time.Sleep(15 * time.Millisecond) // let both run_at pass

	w := worker.New(fake.Tasks, reg, nil, nil, discardLogger(), worker.Config{PollInterval: time.Hour, Concurrency: 1})
	stop := make(chan struct{})
	go func() {
		time.Sleep(50 * time.Millisecond)
		close(stop)
	}()
	w.Run(context.Background(), stop)

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("claim order = %v, want [first second]", order)
	}
}

// TestWorker_PreHookAbort verifies a vetoing pre_task_execute handler
// rolls the claim back: the task stays QUEUED and its function is never
// invoked.
func TestWorker_PreHookAbort(t *testing.T) {
	fake := storetest.New()
	reg := registry.New()

	invoked := false
	reg.Register("m.guarded", func(context.Context, json.RawMessage) (any, error) {
		invoked = true
		return nil, nil
	})

	evs := events.New()
	evs.OnPreTaskExecute(func(context.Context, *domain.Task) error {
		return errors.New("vetoed")
	})

	task, err := fake.Tasks.Enqueue(context.Background(), store.EnqueueInput{Func: "m.guarded"})
	if err != nil {
		t.Fatal(err)
	}

	w := worker.New(fake.Tasks, reg, evs, nil, discardLogger(), worker.Config{PollInterval: time.Hour})
	stop := make(chan struct{})
	go func() {
		time.Sleep(50 * time.Millisecond)
		close(stop)
	}()
	w.Run(context.Background(), stop)

	if invoked {
		t.Fatal("vetoed task's function must not be invoked")
	}
	got, _ := fake.Tasks.GetByID(context.Background(), task.ID)
	if got.Status != domain.StatusQueued {
		t.Fatalf("status = %s, want the task back in QUEUED", got.Status)
	}
}

// TestWorker_RunSynchronously exercises the TASK_SYNC inline path.
func TestWorker_RunSynchronously(t *testing.T) {
	fake := storetest.New()
	reg := registry.New()
	reg.Register("m.ok", func(context.Context, json.RawMessage) (any, error) {
		return "done", nil
	})

	task, err := fake.Tasks.Enqueue(context.Background(), store.EnqueueInput{Func: "m.ok"})
	if err != nil {
		t.Fatal(err)
	}

	w := worker.New(fake.Tasks, reg, nil, nil, discardLogger(), worker.Config{})
	got, err := w.RunSynchronously(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("run synchronously: %v", err)
	}
	if got.Status != domain.StatusDone {
		t.Fatalf("status = %s, want DONE", got.Status)
	}

	if _, err := w.RunSynchronously(context.Background(), task.ID); !errors.Is(err, domain.ErrTaskNotQueued) {
		t.Fatalf("second run error = %v, want ErrTaskNotQueued", err)
	}
}

