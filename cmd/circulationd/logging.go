package main

import (
	"io"
	"log/slog"
)

func newLogger(w io.Writer, level string) *slog.Logger {
	return slog.New(newLogHandler(w, level))
}

func newLogHandler(w io.Writer, level string) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(level)})
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
