// Package logging writes the orchestrator's structured log file.
// Until Init is called every logger discards its output, so library code
// and tests can log freely without touching the filesystem.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	// LevelDebug is for verbose debugging information
	LevelDebug LogLevel = iota
	// LevelInfo is for general operational information
	LevelInfo
	// LevelWarn is for warning conditions
	LevelWarn
	// LevelError is for error conditions
	LevelError
)

func (l LogLevel) toSlogLevel() slog.Level {
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

// ParseLevel maps a config value ("debug", "info", "warn", "error") to a LogLevel.
// Unknown values yield LevelInfo.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

var (
	mu       sync.Mutex
	levelVar = new(slog.LevelVar)
	base     = discardLogger()
	logFile  *os.File
	logPath  string
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// Init opens (or creates) the log file at path and routes all loggers to it.
// Calling Init again switches to the new path.
func Init(path string, level LogLevel) error {
	mu.Lock()
	defer mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open log file %s: %w", path, err)
	}
	if logFile != nil {
		logFile.Close()
	}
	logFile = f
	logPath = path
	levelVar.Set(level.toSlogLevel())
	base = slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: levelVar}))
	base.Debug("logger initialized", "path", path)
	return nil
}

// SetLevel changes the minimum level at runtime.
func SetLevel(level LogLevel) {
	levelVar.Set(level.toSlogLevel())
}

// Path returns the current log file path, empty before Init.
func Path() string {
	mu.Lock()
	defer mu.Unlock()
	return logPath
}

func logf(level slog.Level, format string, args ...interface{}) {
	mu.Lock()
	l := base
	mu.Unlock()

	if !l.Enabled(context.Background(), level) {
		return
	}
	l.Log(context.Background(), level, fmt.Sprintf(format, args...))
}

// Debug writes a debug message.
func Debug(format string, args ...interface{}) { logf(slog.LevelDebug, format, args...) }

// Info writes an info message.
func Info(format string, args ...interface{}) { logf(slog.LevelInfo, format, args...) }

// Warn writes a warning message.
func Warn(format string, args ...interface{}) { logf(slog.LevelWarn, format, args...) }

// Error writes an error message.
func Error(format string, args ...interface{}) { logf(slog.LevelError, format, args...) }

// Component returns a logger with the component attribute pre-attached.
//
//	log := logging.Component("merge")
//	log.Info("merge succeeded", "session", name, "target", target)
//
// The returned logger is bound to the handler current at call time; long-lived
// components should call Component per operation rather than caching it across Init.
func Component(name string) *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return base.With(slog.String("component", name))
}

// Close closes the log file and reverts to discarding output.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	logPath = ""
	base = discardLogger()
}
