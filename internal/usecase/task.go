package usecase

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/barnqueue/barn/internal/domain"
	"github.com/barnqueue/barn/internal/store"
)

// TaskUsecase is the admin API's read/cancel surface over the Task
// Store. Enqueueing is deliberately not exposed here; tasks are
// created through the registry's Delay/ApplyAsync embedding API, not
// the admin HTTP surface.
type TaskUsecase struct {
	tasks store.TaskStore
}

func NewTaskUsecase(tasks store.TaskStore) *TaskUsecase {
	return &TaskUsecase{tasks: tasks}
}

func (u *TaskUsecase) GetByID(ctx context.Context, id int64) (*domain.Task, error) {
	return u.tasks.GetByID(ctx, id)
}

type ListTasksInput struct {
	Status domain.Status
	Cursor string
	Limit  int
}

type ListTasksResult struct {
	Tasks      []*domain.Task
	NextCursor *string
}

type taskCursor struct {
	RunAt time.Time `json:"r"`
	ID    int64     `json:"i"`
}

func decodeTaskCursor(s string) (time.Time, int64, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("decode cursor: %w", err)
	}
	var c taskCursor
	if err := json.Unmarshal(b, &c); err != nil {
		return time.Time{}, 0, fmt.Errorf("unmarshal cursor: %w", err)
	}
	return c.RunAt, c.ID, nil
}

func encodeTaskCursor(runAt time.Time, id int64) string {
	b, _ := json.Marshal(taskCursor{RunAt: runAt, ID: id})
	return base64.RawURLEncoding.EncodeToString(b)
}

// List returns a page of tasks, keyset-paginated over (run_at, id).
func (u *TaskUsecase) List(ctx context.Context, in ListTasksInput) (ListTasksResult, error) {
	limit := in.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	var cursorRunAt time.Time
	var cursorID int64
	if in.Cursor != "" {
		var err error
		cursorRunAt, cursorID, err = decodeTaskCursor(in.Cursor)
		if err != nil {
			return ListTasksResult{}, domain.ErrTaskNotFound
		}
	}

	tasks, err := u.tasks.List(ctx, in.Status, cursorRunAt, cursorID, limit+1)
	if err != nil {
		return ListTasksResult{}, fmt.Errorf("list tasks: %w", err)
	}

	var nextCursor *string
	if len(tasks) == limit+1 {
		last := tasks[limit]
		s := encodeTaskCursor(last.RunAt, last.ID)
		nextCursor = &s
		tasks = tasks[:limit]
	}

	return ListTasksResult{Tasks: tasks, NextCursor: nextCursor}, nil
}

// Cancel deletes queued tasks matching func/args, the embedding API's
// cancel operation surfaced for operators.
func (u *TaskUsecase) Cancel(ctx context.Context, fn string, argsMatch map[string]any) (bool, error) {
	return u.tasks.Cancel(ctx, store.CancelInput{Func: fn, ArgsMatch: argsMatch})
}
