package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/barnqueue/barn/internal/domain"
	"github.com/barnqueue/barn/internal/store"
	"github.com/barnqueue/barn/internal/store/storetest"
	"github.com/barnqueue/barn/internal/usecase"
)

func TestTaskUsecase_ListPaginates(t *testing.T) {
	fake := storetest.New()
	for i := 0; i < 5; i++ {
		if _, err := fake.Tasks.Enqueue(context.Background(), store.EnqueueInput{Func: "m.noop"}); err != nil {
			t.Fatal(err)
		}
	}

	uc := usecase.NewTaskUsecase(fake.Tasks)
	result, err := uc.List(context.Background(), usecase.ListTasksInput{Limit: 3})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(result.Tasks) != 3 {
		t.Fatalf("len(tasks) = %d, want 3", len(result.Tasks))
	}
	if result.NextCursor == nil {
		t.Fatal("expected a next cursor with 5 rows and limit 3")
	}
}

// TestTaskUsecase_CancelSubsetMatch pins down the JSON-subset semantics:
// every key/value in the match must be present and equal in the stored
// args, so a partially overlapping match removes nothing.
func TestTaskUsecase_CancelSubsetMatch(t *testing.T) {
	fake := storetest.New()
	future := time.Now().Add(time.Hour)
	for _, args := range []string{`{"a":1,"b":3}`, `{"a":2,"b":4}`} {
		if _, err := fake.Tasks.Enqueue(context.Background(), store.EnqueueInput{
			Func: "f", Args: []byte(args), RunAt: future,
		}); err != nil {
			t.Fatal(err)
		}
	}

	uc := usecase.NewTaskUsecase(fake.Tasks)

	removed, err := uc.Cancel(context.Background(), "f", map[string]any{"a": 1, "b": 4})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if removed {
		t.Fatal("a match straddling two tasks should remove nothing")
	}

	removed, err = uc.Cancel(context.Background(), "f", map[string]any{"a": 2, "b": 4})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !removed {
		t.Fatal("an exact-subset match should remove the task")
	}

	result, err := uc.List(context.Background(), usecase.ListTasksInput{Status: domain.StatusQueued})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(result.Tasks) != 1 || string(result.Tasks[0].Args) != `{"a":1,"b":3}` {
		t.Fatalf("surviving tasks = %+v, want only the {a:1,b:3} one", result.Tasks)
	}
}

func TestTaskUsecase_Cancel(t *testing.T) {
	fake := storetest.New()
	if _, err := fake.Tasks.Enqueue(context.Background(), store.EnqueueInput{
		Func: "m.greet", Args: []byte(`{"name":"ada"}`), RunAt: time.Now().Add(time.Hour),
	}); err != nil {
		t.Fatal(err)
	}

	uc := usecase.NewTaskUsecase(fake.Tasks)
	removed, err := uc.Cancel(context.Background(), "m.greet", map[string]any{"name": "ada"})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !removed {
		t.Fatal("expected a matching queued task to be removed")
	}

	result, err := uc.List(context.Background(), usecase.ListTasksInput{Status: domain.StatusQueued})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(result.Tasks) != 0 {
		t.Fatalf("tasks = %+v, want none after cancel", result.Tasks)
	}
}
