package logging

import (
	"io"
	"log/slog"
	"os"

	"github.com/sonicshare/sonicshare/internal/termio"
)

// New creates a structured text logger writing to the shared stdout writer.
// app: application name (e.g., "sonicserv")
// level: one of "debug", "info", "warn", "error" (default: "info")
func New(app string, level string) *slog.Logger {
	return NewWithWriter(termio.Stdout(), app, level)
}

// NewWithWriter creates a structured text logger on an explicit writer; used
// by tests to capture output.
func NewWithWriter(w io.Writer, app string, level string) *slog.Logger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	return slog.New(handler).With(
		slog.String("app", app),
		slog.Int("pid", os.Getpid()),
	)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
