// Package observability provides structured logging, metrics, and tracing
// for logmill pipelines.
//
// Features:
//   - Structured logging via slog, with per-unit minimum levels
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// Metrics and tracing are opt-in and have no-op implementations when disabled.
package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// LogConfig configures NewLogger.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string

	// Format is text or json. Empty means text.
	Format string

	// Filename appends log output to a file instead of Writer.
	Filename string

	// Writer receives log output when Filename is empty. Nil means stderr.
	Writer io.Writer
}

// ParseLevel converts a level name to a slog.Level.
// Names are case-insensitive; "warning" and "critical" are accepted aliases.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error", "critical":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// NewLogger builds the process logger. The returned closer releases the
// log file, if one was opened, and is never nil.
func NewLogger(cfg LogConfig) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	var (
		w      io.Writer = os.Stderr
		closer io.Closer = nopCloser{}
	)
	if cfg.Writer != nil {
		w = cfg.Writer
	}
	if cfg.Filename != "" {
		f, err := os.OpenFile(cfg.Filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w, closer = f, f
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		h = slog.NewTextHandler(w, opts)
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		_ = closer.Close()
		return nil, nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return slog.New(h), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// LevelHandler drops records below a minimum level before delegating.
// It can only raise the effective level of the wrapped handler.
type LevelHandler struct {
	level   slog.Leveler
	handler slog.Handler
}

// NewLevelHandler wraps h with a minimum level.
func NewLevelHandler(level slog.Leveler, h slog.Handler) *LevelHandler {
	return &LevelHandler{level: level, handler: h}
}

// Enabled implements slog.Handler.
func (h *LevelHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level.Level() && h.handler.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *LevelHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.handler.Handle(ctx, r)
}

// WithAttrs implements slog.Handler.
func (h *LevelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return NewLevelHandler(h.level, h.handler.WithAttrs(attrs))
}

// WithGroup implements slog.Handler.
func (h *LevelHandler) WithGroup(name string) slog.Handler {
	return NewLevelHandler(h.level, h.handler.WithGroup(name))
}

// WithLevel returns a logger that drops records below level.
func WithLevel(logger *slog.Logger, level slog.Level) *slog.Logger {
	if logger == nil {
		return nil
	}
	return slog.New(NewLevelHandler(level, logger.Handler()))
}

// EnrichLogger adds unit context to a logger.
// Returns a new logger with unit_id and worker fields.
//
// Example:
//
//	enriched := EnrichLogger(logger, "StdOut", 0)
//	enriched.Info("doing work") // includes unit_id and worker
func EnrichLogger(logger *slog.Logger, unitID string, worker int) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("unit_id", unitID),
		slog.Int("worker", worker),
	)
}

// LogStateChange logs an orchestrator state transition.
func LogStateChange(logger *slog.Logger, from, to string) {
	if logger == nil {
		return
	}
	logger.Info("StateChange",
		slog.String("from", from),
		slog.String("to", to),
	)
}

// LogUnitStart logs the start of a unit's own loop.
func LogUnitStart(logger *slog.Logger, unitID string, worker int) {
	if logger == nil {
		return
	}
	logger.Debug("unit starting",
		slog.String("unit_id", unitID),
		slog.Int("worker", worker),
	)
}

// LogUnitStop logs that a unit finished, with the error it returned.
func LogUnitStop(logger *slog.Logger, unitID string, worker int, err error) {
	if logger == nil {
		return
	}
	if err != nil {
		logger.Error("unit stopped with error",
			slog.String("unit_id", unitID),
			slog.Int("worker", worker),
			slog.String("error", err.Error()),
		)
		return
	}
	logger.Debug("unit stopped",
		slog.String("unit_id", unitID),
		slog.Int("worker", worker),
	)
}

// LogEventError logs a per-event handler failure. The event is forwarded
// unchanged by the caller.
func LogEventError(logger *slog.Logger, unitID, eventID string, err error) {
	if logger == nil {
		return
	}
	logger.Error("event handling failed",
		slog.String("unit_id", unitID),
		slog.String("event_id", eventID),
		slog.String("error_type", fmt.Sprintf("%T", err)),
		slog.String("error", err.Error()),
	)
}

// LogFilterError logs a filter evaluation failure, treated as no match.
func LogFilterError(logger *slog.Logger, unitID, filter string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("filter evaluation failed",
		slog.String("unit_id", unitID),
		slog.String("filter", filter),
		slog.String("error", err.Error()),
	)
}

// LogTemplateError logs a template render failure.
func LogTemplateError(logger *slog.Logger, unitID, tmpl string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("template rendering failed",
		slog.String("unit_id", unitID),
		slog.String("template", tmpl),
		slog.String("error", err.Error()),
	)
}

// LogDrain logs a drain round that still found pending events.
func LogDrain(logger *slog.Logger, round int, pending int) {
	if logger == nil {
		return
	}
	logger.Debug("draining channels",
		slog.Int("round", round),
		slog.Int("pending", pending),
	)
}

// LogDrainResidual logs events abandoned at shutdown.
func LogDrainResidual(logger *slog.Logger, pending int) {
	if logger == nil {
		return
	}
	logger.Warn("shutdown with undelivered events",
		slog.Int("pending", pending),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	elapsed := done()
func TimedOperation() func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		return time.Since(start)
	}
}
