// Package logger provides the shared structured logger.
package logger

import (
	"log/slog"
	"os"
	"strings"
)

// New returns a JSON slog logger tagged with the component name.
// Level comes from LOG_LEVEL (debug|info|warn|error), default info.
func New(component string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: levelFromEnv()}
	l := slog.New(slog.NewJSONHandler(os.Stdout, opts))
	return l.With("component", component)
}

func levelFromEnv() slog.Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
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
