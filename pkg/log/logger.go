package log

import (
	"context"
	"log/slog"
)

type contextKey string

const loggerKey contextKey = "logger"

// IntoContext stores a logger scoped to the current unit of work.
func IntoContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the logger stored by IntoContext, or the default logger.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok && logger != nil {
		return logger
	}

	return slog.Default()
}
