// Package logger provides a process-wide structured logger over log/slog,
// configurable between JSON and human-readable output.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
)

// envReader abstracts environment lookups so tests can fake them without
// mutating the real process environment.
type envReader interface {
	Getenv(string) string
}

type osEnvReader struct{}

func (osEnvReader) Getenv(key string) string { return os.Getenv(key) }

var singleton atomic.Pointer[slog.Logger]

func init() {
	singleton.Store(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
}

// Initialize configures the package-level singleton logger from the process
// environment. OAGW_UNSTRUCTURED_LOGS (default true) selects a human-readable
// text handler; set to "false" for JSON output suited to log aggregation.
func Initialize() {
	InitializeWithEnv(osEnvReader{})
}

// InitializeWithEnv is Initialize with an injectable environment reader, used
// by tests.
func InitializeWithEnv(env envReader) {
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if unstructuredLogsWithEnv(env) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	singleton.Store(slog.New(handler))
}

func unstructuredLogsWithEnv(env envReader) bool {
	v := env.Getenv("OAGW_UNSTRUCTURED_LOGS")
	switch v {
	case "false", "0":
		return false
	default:
		return true
	}
}

// Get returns the current singleton logger.
func Get() *slog.Logger {
	return singleton.Load()
}

// newWithOutput returns a text-handler logger writing to w at level. It
// does not touch the singleton.
func newWithOutput(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

type ctxKey struct{}

// With returns a context carrying a logger enriched with the given key/value
// pairs, retrievable via FromContext.
func With(ctx context.Context, args ...any) context.Context {
	l := FromContext(ctx).With(args...)
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger attached to ctx, or the singleton if none.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return Get()
}

// Debug logs at debug level.
func Debug(msg string) { Get().Debug(msg) }

// Debugf logs a formatted message at debug level.
func Debugf(format string, args ...any) { Get().Debug(fmt.Sprintf(format, args...)) }

// Debugw logs a message with key/value pairs at debug level.
func Debugw(msg string, kv ...any) { Get().Debug(msg, kv...) }

// Info logs at info level.
func Info(msg string) { Get().Info(msg) }

// Infof logs a formatted message at info level.
func Infof(format string, args ...any) { Get().Info(fmt.Sprintf(format, args...)) }

// Infow logs a message with key/value pairs at info level.
func Infow(msg string, kv ...any) { Get().Info(msg, kv...) }

// Warn logs at warn level.
func Warn(msg string) { Get().Warn(msg) }

// Warnf logs a formatted message at warn level.
func Warnf(format string, args ...any) { Get().Warn(fmt.Sprintf(format, args...)) }

// Warnw logs a message with key/value pairs at warn level.
func Warnw(msg string, kv ...any) { Get().Warn(msg, kv...) }

// Error logs at error level.
func Error(msg string) { Get().Error(msg) }

// Errorf logs a formatted message at error level.
func Errorf(format string, args ...any) { Get().Error(fmt.Sprintf(format, args...)) }

// Errorw logs a message with key/value pairs at error level.
func Errorw(msg string, kv ...any) { Get().Error(msg, kv...) }
