package events_test

import (
	"context"
	"errors"
	"testing"

	"github.com/barnqueue/barn/internal/domain"
	"github.com/barnqueue/barn/internal/events"
)

func TestFirePreTaskExecute_AbortsOnFirstError(t *testing.T) {
	b := events.New()
	abort := errors.New("handler veto")

	var calls []string
	b.OnPreTaskExecute(func(context.Context, *domain.Task) error {
		calls = append(calls, "first")
		return abort
	})
	b.OnPreTaskExecute(func(context.Context, *domain.Task) error {
		calls = append(calls, "second")
		return nil
	})

	err := b.FirePreTaskExecute(context.Background(), &domain.Task{ID: 1})
	if !errors.Is(err, abort) {
		t.Fatalf("err = %v, want the handler's veto", err)
	}
	if len(calls) != 1 || calls[0] != "first" {
		t.Fatalf("calls = %v, want the chain to stop at the vetoing handler", calls)
	}
}

func TestFirePostTaskExecute_DeliversError(t *testing.T) {
	b := events.New()
	taskErr := errors.New("task failed")

	var got error
	b.OnPostTaskExecute(func(_ context.Context, _ *domain.Task, err error) {
		got = err
	})

	b.FirePostTaskExecute(context.Background(), &domain.Task{ID: 1}, taskErr)
	if !errors.Is(got, taskErr) {
		t.Fatalf("handler saw %v, want the task's error", got)
	}
}

func TestLeaderTransitions(t *testing.T) {
	b := events.New()

	var edges []string
	b.OnLeaderAcquired(func(context.Context) { edges = append(edges, "acquired") })
	b.OnLeaderReleased(func(context.Context) { edges = append(edges, "released") })

	b.FireLeaderAcquired(context.Background())
	b.FireLeaderReleased(context.Background())

	if len(edges) != 2 || edges[0] != "acquired" || edges[1] != "released" {
		t.Fatalf("edges = %v, want [acquired released]", edges)
	}
}
