package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/library-circulation/internal/config"
	"github.com/library-circulation/internal/domain/event"
)

// ParseLevel maps LOG_LEVEL to a slog level, defaulting to info
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a JSON logger on stdout tagged with the process name
func NewLogger(cfg *config.Config) *slog.Logger {
	return newLogger(os.Stdout, cfg)
}

func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	level := ParseLevel(cfg.Logging.Level)
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	})

	logger := slog.New(handler)
	if cfg.Application.Name != "" {
		logger = logger.With("app", cfg.Application.Name, "env", cfg.Application.Env)
	}
	logger.Info("logger initialized", "level", level.String())
	return logger
}

// FromContext returns l annotated with the request's correlation id, if any
func FromContext(ctx context.Context, l *slog.Logger) *slog.Logger {
	if id := event.CorrelationIDFromContext(ctx); id != "" {
		return l.With("correlation_id", id)
	}
	return l
}
