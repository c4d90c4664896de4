package logmill

import (
	"log/slog"

	"github.com/randalmurphal/logmill/pkg/logmill/observability"
	"github.com/randalmurphal/logmill/pkg/logmill/store"
)

// buildConfig holds the settings Build takes beyond the document.
type buildConfig struct {
	logger   *slog.Logger
	metrics  observability.MetricsRecorder
	spans    observability.SpanManager
	ackStore store.KV
	name     string
}

// Option configures Build.
type Option func(*buildConfig)

// WithLogger sets the process logger.
// Default: slog.Default()
func WithLogger(logger *slog.Logger) Option {
	return func(c *buildConfig) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics recorder.
// Default: the global OpenTelemetry provider when Global.metrics is true,
// otherwise a no-op.
//
// Example:
//
//	recorder, _ := observability.NewMetricsRecorderWithProvider(mp)
//	p, err := logmill.Build(doc, catalog, logmill.WithMetrics(recorder))
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(c *buildConfig) {
		c.metrics = m
	}
}

// WithSpans sets the span manager.
// Default: the global OpenTelemetry provider when Global.tracing is true,
// otherwise a no-op.
func WithSpans(s observability.SpanManager) Option {
	return func(c *buildConfig) {
		c.spans = s
	}
}

// WithAckStore enables at-least-once delivery backed by kv, overriding
// Global.event_buffer. The pipeline closes kv on shutdown.
func WithAckStore(kv store.KV) Option {
	return func(c *buildConfig) {
		c.ackStore = kv
	}
}

// WithName sets the name reported on the pipeline span.
// Default: the document path, or "logmill"
func WithName(name string) Option {
	return func(c *buildConfig) {
		c.name = name
	}
}
