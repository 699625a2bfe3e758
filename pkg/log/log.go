package log

import (
	"log/slog"
	"os"
)

func Setup(logLevel string, format string) {
	var level slog.Level

	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	options := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler = slog.NewTextHandler(os.Stderr, options)
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, options)
	}

	slog.SetDefault(slog.New(handler))
}

func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}
