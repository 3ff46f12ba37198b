package log

import (
	"io"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"
)

func newTintHandler(w io.Writer, level slog.Level) slog.Handler {
	return tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	})
}
