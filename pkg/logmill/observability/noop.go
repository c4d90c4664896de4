package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NoopMetrics is a MetricsRecorder that does nothing.
type NoopMetrics struct{}

var _ MetricsRecorder = NoopMetrics{}

// RecordEvent does nothing.
func (NoopMetrics) RecordEvent(context.Context, string, time.Duration, error) {}

// RecordRouted does nothing.
func (NoopMetrics) RecordRouted(context.Context, string, string) {}

// RecordFilterError does nothing.
func (NoopMetrics) RecordFilterError(context.Context, string) {}

// RecordFlush does nothing.
func (NoopMetrics) RecordFlush(context.Context, string, int) {}

// RecordDrainResidual does nothing.
func (NoopMetrics) RecordDrainResidual(context.Context, int) {}

// NoopSpanManager is a SpanManager that does nothing.
type NoopSpanManager struct{}

var _ SpanManager = NoopSpanManager{}

var noopSpan = noop.Span{}

// StartPipelineSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartPipelineSpan(ctx context.Context, _ string, _ int) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// StartUnitSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartUnitSpan(ctx context.Context, _ string, _ int) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// EndSpanWithError does nothing.
func (NoopSpanManager) EndSpanWithError(trace.Span, error) {}

// AddSpanEvent does nothing.
func (NoopSpanManager) AddSpanEvent(context.Context, string, ...attribute.KeyValue) {}
