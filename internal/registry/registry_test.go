package registry_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/barnqueue/barn/internal/domain"
	"github.com/barnqueue/barn/internal/registry"
	"github.com/barnqueue/barn/internal/store/storetest"
	"github.com/barnqueue/barn/internal/worker"
)

func TestRegistry_ResolveMissing(t *testing.T) {
	reg := registry.New()
	if _, err := reg.Resolve("m.nope"); !errors.Is(err, domain.ErrFuncNotRegistered) {
		t.Fatalf("err = %v, want ErrFuncNotRegistered", err)
	}
}

func TestRegistry_RegisterOverwrites(t *testing.T) {
	reg := registry.New()
	reg.Register("m.greet", func(ctx context.Context, args json.RawMessage) (any, error) {
		return "first", nil
	})
	reg.Register("m.greet", func(ctx context.Context, args json.RawMessage) (any, error) {
		return "second", nil
	})

	fn, err := reg.Resolve("m.greet")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	result, err := fn(context.Background(), nil)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if result != "second" {
		t.Fatalf("result = %v, want the later registration to win", result)
	}
}

func TestTask_DelayEnqueuesNow(t *testing.T) {
	fake := storetest.New()
	task := registry.NewTask(registry.New(), fake.Tasks, "m.greet", func(ctx context.Context, args json.RawMessage) (any, error) {
		return nil, nil
	})

	got, err := task.Delay(context.Background(), map[string]any{"name": "ada"})
	if err != nil {
		t.Fatalf("delay: %v", err)
	}
	if got.Func != "m.greet" {
		t.Fatalf("func = %q, want m.greet", got.Func)
	}
	if got.RunAt.After(time.Now().Add(time.Second)) {
		t.Fatalf("run_at = %v, want roughly now", got.RunAt)
	}
}

func TestTask_ApplyAsyncCountdownAndETAConflict(t *testing.T) {
	fake := storetest.New()
	task := registry.NewTask(registry.New(), fake.Tasks, "m.greet", func(ctx context.Context, args json.RawMessage) (any, error) {
		return nil, nil
	})

	_, err := task.ApplyAsync(context.Background(), registry.ApplyOptions{
		Countdown: time.Minute,
		ETA:       time.Now().Add(time.Hour),
	})
	if !errors.Is(err, domain.ErrCountdownAndETA) {
		t.Fatalf("err = %v, want ErrCountdownAndETA", err)
	}
}

func TestTask_ApplyAsyncCountdownDelaysRunAt(t *testing.T) {
	fake := storetest.New()
	task := registry.NewTask(registry.New(), fake.Tasks, "m.greet", func(ctx context.Context, args json.RawMessage) (any, error) {
		return nil, nil
	})

	before := time.Now().UTC()
	got, err := task.ApplyAsync(context.Background(), registry.ApplyOptions{Countdown: time.Hour})
	if err != nil {
		t.Fatalf("apply async: %v", err)
	}
	if !got.RunAt.After(before.Add(55 * time.Minute)) {
		t.Fatalf("run_at = %v, want roughly one hour from now", got.RunAt)
	}
}

// TestTask_SyncModeExecutesInline exercises the TASK_SYNC path: with a
// sync runner installed, Delay returns the already-executed task, and an
// enqueue with a future run_at is rejected outright.
func TestTask_SyncModeExecutesInline(t *testing.T) {
	fake := storetest.New()
	reg := registry.New()
	task := registry.NewTask(reg, fake.Tasks, "m.echo", func(_ context.Context, args json.RawMessage) (any, error) {
		var v map[string]any
		_ = json.Unmarshal(args, &v)
		return v, nil
	})

	w := worker.New(fake.Tasks, reg, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)), worker.Config{})
	reg.EnableSync(w)

	got, err := task.Delay(context.Background(), map[string]any{"x": 1})
	if err != nil {
		t.Fatalf("delay: %v", err)
	}
	if got.Status != domain.StatusDone {
		t.Fatalf("status = %s, want DONE from the inline execution", got.Status)
	}

	_, err = task.ApplyAsync(context.Background(), registry.ApplyOptions{Countdown: time.Hour})
	if !errors.Is(err, domain.ErrSyncFutureRunAt) {
		t.Fatalf("err = %v, want ErrSyncFutureRunAt", err)
	}
}

func TestTask_CancelDelegatesToStore(t *testing.T) {
	fake := storetest.New()
	task := registry.NewTask(registry.New(), fake.Tasks, "m.greet", func(ctx context.Context, args json.RawMessage) (any, error) {
		return nil, nil
	})
	if _, err := task.Delay(context.Background(), map[string]any{"name": "ada"}); err != nil {
		t.Fatalf("delay: %v", err)
	}

	removed, err := task.Cancel(context.Background(), map[string]any{"name": "ada"})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !removed {
		t.Fatal("expected the matching task to be cancelled")
	}
}
