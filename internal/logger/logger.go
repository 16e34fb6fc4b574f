// Package logger holds the structured logger shared by the pool manager and
// its tools.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// L is the global logger instance. It's initialized to discard all output by default.
// Call Init() to enable logging.
var L = slog.New(slog.DiscardHandler)

// file is the log file opened by the last Init, if any.
var file *os.File

// Options configures the logger initialization.
type Options struct {
	Enabled bool       // If false, all logging is discarded
	Output  io.Writer  // Destination. Default: os.Stderr
	File    string     // If set, log to this file (appending) instead of Output
	Level   slog.Level // Minimum log level. Default: LevelInfo when enabled
	JSON    bool       // Emit JSON records instead of key=value text
}

// Init configures logging. Call from main() before any log calls.
// If opts.Enabled is false, all log output is discarded. A file opened by a
// previous Init is closed.
func Init(opts Options) error {
	if err := Close(); err != nil {
		return err
	}
	if !opts.Enabled {
		return nil
	}

	out := opts.Output
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		file = f
		out = f
	}
	if out == nil {
		out = os.Stderr
	}

	hopts := &slog.HandlerOptions{Level: opts.Level}
	if opts.JSON {
		L = slog.New(slog.NewJSONHandler(out, hopts))
	} else {
		L = slog.New(slog.NewTextHandler(out, hopts))
	}
	return nil
}

// Close discards further output and closes the log file, if one is open.
func Close() error {
	L = slog.New(slog.DiscardHandler)
	if file == nil {
		return nil
	}
	err := file.Close()
	file = nil
	return err
}

// Enabled reports whether records at level would be written.
func Enabled(level slog.Level) bool {
	return L.Enabled(context.Background(), level)
}

// ParseLevel maps a level name ("debug", "info", "warn", "error") to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(name))
	return level, err
}

// Debug logs a debug message with optional key-value pairs.
func Debug(msg string, args ...any) { L.Debug(msg, args...) }

// Info logs an info message with optional key-value pairs.
func Info(msg string, args ...any) { L.Info(msg, args...) }

// Warn logs a warning message with optional key-value pairs.
func Warn(msg string, args ...any) { L.Warn(msg, args...) }

// Error logs an error message with optional key-value pairs.
func Error(msg string, args ...any) { L.Error(msg, args...) }
