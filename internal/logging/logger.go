package logging

import (
	"log/slog"
	"os"
	"strings"
)

var level = new(slog.LevelVar)

var Logger *slog.Logger

func init() {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	Logger = slog.New(handler)
}

// SetLevel adjusts the global log level ("debug", "info", "warn", "error").
func SetLevel(name string) {
	switch strings.ToLower(name) {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}
}

func WithComponent(component string) *slog.Logger {
	return Logger.With("component", component)
}
