// Package log builds the process slog handlers and carries request-scoped
// identifiers through context.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/helixml/branchscope/internal/config"
)

type contextKey string

const (
	correlationIDKey contextKey = "correlation_id"
	requestIDKey     contextKey = "request_id"
	taskKey          contextKey = "task"
)

// NewHandler returns a handler for format writing to w at level. The
// returned handler adds correlation_id, request_id and task attributes found
// in the record's context.
func NewHandler(w io.Writer, format config.LogFormat, level string) slog.Handler {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var inner slog.Handler
	switch format {
	case config.LogFormatJSON:
		inner = slog.NewJSONHandler(w, opts)
	default:
		inner = newTerminalHandler(w, opts)
	}
	return contextHandler{inner: inner}
}

// New returns a logger writing to w.
func New(w io.Writer, format config.LogFormat, level string) *slog.Logger {
	return slog.New(NewHandler(w, format, level))
}

// Configure builds the logger described by cfg, writing to stderr, and
// installs it as the slog default.
func Configure(cfg config.AppConfig) *slog.Logger {
	logger := New(os.Stderr, cfg.LogFormat(), cfg.LogLevel())
	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps a level name to a slog.Level, defaulting to Info.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithCorrelationID adds a correlation ID to the context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// WithTask adds the unique name of the task being processed.
func WithTask(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, taskKey, key)
}

// CorrelationID extracts the correlation ID from context.
func CorrelationID(ctx context.Context) string {
	return stringValue(ctx, correlationIDKey)
}

// RequestID extracts the request ID from context.
func RequestID(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// Task extracts the task key from context.
func Task(ctx context.Context) string {
	return stringValue(ctx, taskKey)
}

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

type contextHandler struct {
	inner slog.Handler
}

func (h contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, key := range []contextKey{correlationIDKey, requestIDKey, taskKey} {
		if v := stringValue(ctx, key); v != "" {
			r.AddAttrs(slog.String(string(key), v))
		}
	}
	return h.inner.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{inner: h.inner.WithGroup(name)}
}
