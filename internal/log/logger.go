package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	once   sync.Once
	logger *slog.Logger
)

// Setup initializes the global logger, writing JSON lines to w.
// w must never be the outbound frame channel; nil means stderr.
// logic: default to INFO. If level is invalid, fallback to INFO.
func Setup(level string, w io.Writer) {
	once.Do(func() {
		if w == nil {
			w = os.Stderr
		}

		opts := &slog.HandlerOptions{
			Level: ParseLevel(level),
		}
		handler := slog.NewJSONHandler(w, opts)
		logger = slog.New(handler)
		slog.SetDefault(logger)
	})
}

// ParseLevel maps DEBUG/INFO/WARN/ERROR (any case) to a slog level.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Get returns the configured logger, or a default one if Setup hasn't been called.
func Get() *slog.Logger {
	if logger == nil {
		Setup("INFO", nil)
	}
	return logger
}

// WithComponent returns a logger with the component field set.
func WithComponent(name string) *slog.Logger {
	return Get().With(slog.String("component", name))
}

// WithInvocation returns a logger with the invocation_id field set.
func WithInvocation(id string) *slog.Logger {
	return Get().With(slog.String("invocation_id", id))
}
