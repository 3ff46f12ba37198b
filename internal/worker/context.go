package worker

import (
	"context"

	"github.com/barnqueue/barn/internal/domain"
)

type currentTaskKey struct{}

// withCurrentTask installs task as the ambient "current task" reference
// for the duration of one invocation: an explicit context value rather
// than a module-level mutable singleton.
func withCurrentTask(ctx context.Context, task *domain.Task) context.Context {
	return context.WithValue(ctx, currentTaskKey{}, task)
}

// CurrentTask returns the task being executed on ctx's call chain, or
// nil outside of one. Safe to call from user task bodies for
// introspection.
func CurrentTask(ctx context.Context) *domain.Task {
	t, _ := ctx.Value(currentTaskKey{}).(*domain.Task)
	return t
}
