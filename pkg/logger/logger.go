package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Log defaults to an info-level JSON logger so packages can log before Init runs.
var Log = slog.New(slog.NewJSONHandler(os.Stdout, nil))

func Init() {
	InitWith(os.Stdout, "debug")
}

// InitWith configures the global logger with a writer and a level name
// ("debug", "info", "warn", "error"). Unknown names fall back to info.
func InitWith(w io.Writer, level string) {
	// JSON handler for production-ready logging
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})
	Log = slog.New(handler)
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
