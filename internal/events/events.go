// Package events is a small, typed, synchronous pub/sub owned by the
// supervisor and injected into Worker, Scheduler, and the Leader
// Elector at construction. Handlers run on the calling goroutine
// (inside the claim transaction for pre_/post_task_execute), and a
// pre-hook may abort the task by returning an error.
package events

import (
	"context"

	"github.com/barnqueue/barn/internal/domain"
)

type TaskHandler func(ctx context.Context, task *domain.Task) error
type TaskDoneHandler func(ctx context.Context, task *domain.Task, err error)
type ScheduleHandler func(ctx context.Context, schedule *domain.Schedule) error
type LeaderHandler func(ctx context.Context)

// Bus is the supervisor-owned registry. The zero value is usable.
type Bus struct {
	preTask   []TaskHandler
	postTask  []TaskDoneHandler
	preSched  []ScheduleHandler
	postSched []ScheduleHandler
	acquired  []LeaderHandler
	released  []LeaderHandler
}

func New() *Bus { return &Bus{} }

func (b *Bus) OnPreTaskExecute(h TaskHandler)          { b.preTask = append(b.preTask, h) }
func (b *Bus) OnPostTaskExecute(h TaskDoneHandler)     { b.postTask = append(b.postTask, h) }
func (b *Bus) OnPreScheduleExecute(h ScheduleHandler)  { b.preSched = append(b.preSched, h) }
func (b *Bus) OnPostScheduleExecute(h ScheduleHandler) { b.postSched = append(b.postSched, h) }
func (b *Bus) OnLeaderAcquired(h LeaderHandler)        { b.acquired = append(b.acquired, h) }
func (b *Bus) OnLeaderReleased(h LeaderHandler)        { b.released = append(b.released, h) }

func (b *Bus) FirePreTaskExecute(ctx context.Context, t *domain.Task) error {
	for _, h := range b.preTask {
		if err := h(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bus) FirePostTaskExecute(ctx context.Context, t *domain.Task, err error) {
	for _, h := range b.postTask {
		h(ctx, t, err)
	}
}

func (b *Bus) FirePreScheduleExecute(ctx context.Context, s *domain.Schedule) error {
	for _, h := range b.preSched {
		if err := h(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bus) FirePostScheduleExecute(ctx context.Context, s *domain.Schedule) {
	for _, h := range b.postSched {
		_ = h(ctx, s)
	}
}

func (b *Bus) FireLeaderAcquired(ctx context.Context) {
	for _, h := range b.acquired {
		h(ctx)
	}
}

func (b *Bus) FireLeaderReleased(ctx context.Context) {
	for _, h := range b.released {
		h(ctx)
	}
}
