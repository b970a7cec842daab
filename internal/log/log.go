package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

var (
	// logger is swapped whole by SetOutput while other goroutines log.
	logger   atomic.Pointer[slog.Logger]
	minLevel = new(slog.LevelVar)
)

func init() {
	logger.Store(newLogger(os.Stderr))
}

func newLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: minLevel}))
}

// SetLevel changes the minimum level for all subsequent records.
func SetLevel(l Level) {
	minLevel.Set(toSlog(l))
}

// ParseLevel maps config/env strings ("debug", "warn", ...) to a Level.
// Unknown values map to INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// SetOutput redirects the logger, mainly for tests.
func SetOutput(w io.Writer) {
	logger.Store(newLogger(w))
}

func Debug(msg string, kv ...any) {
	logger.Load().Debug(msg, kv...)
}

func Info(msg string, kv ...any) {
	logger.Load().Info(msg, kv...)
}

func Warn(msg string, kv ...any) {
	logger.Load().Warn(msg, kv...)
}

func Error(msg string, err error, kv ...any) {
	// Prepend error into key-value list.
	extended := append([]any{"err", err}, kv...)
	logger.Load().Error(msg, extended...)
}

func toSlog(l Level) slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
