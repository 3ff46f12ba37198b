// Package log wraps log/slog with request/task correlation: every
// record is enriched with the request ID and with the task/schedule ID
// a claim transaction is currently operating on.
package log

import (
	"context"
	"io"
	"log/slog"

	"github.com/barnqueue/barn/internal/requestid"
)

type taskIDKey struct{}

// WithTaskID attaches the ID of the task or schedule currently being
// processed to ctx, so every log line emitted inside a claim
// transaction carries it without the call site repeating "task_id"
// on every call.
func WithTaskID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, taskIDKey{}, id)
}

func taskIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(taskIDKey{}).(int64)
	return id, ok
}

// ContextHandler wraps an slog.Handler and automatically extracts
// request_id and task_id from the context of each log record.
type ContextHandler struct {
	inner slog.Handler
}

// NewContextHandler returns a handler that enriches every record with
// context values before delegating to inner.
func NewContextHandler(inner slog.Handler) *ContextHandler {
	return &ContextHandler{inner: inner}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := requestid.FromContext(ctx); id != "" {
		r.AddAttrs(slog.String("request_id", id))
	}
	if id, ok := taskIDFromContext(ctx); ok {
		r.AddAttrs(slog.Int64("task_id", id))
	}
	return h.inner.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{inner: h.inner.WithGroup(name)}
}

// New builds the slog.Logger used by cmd/barn: pretty tinted console
// output for local development, structured JSON otherwise, both routed
// through ContextHandler so request/task correlation is automatic.
func New(env string, level slog.Level, w io.Writer) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = newTintHandler(w, level)
	} else {
		inner = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}
	return slog.New(NewContextHandler(inner))
}
