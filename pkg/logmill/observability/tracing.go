package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartPipelineSpan starts a span covering a whole pipeline run.
	StartPipelineSpan(ctx context.Context, name string, workers int) (context.Context, trace.Span)

	// StartUnitSpan starts a span for one unit's loop or handler call.
	StartUnitSpan(ctx context.Context, unitID string, worker int) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

// otelSpanManager implements SpanManager using OpenTelemetry.
type otelSpanManager struct {
	tracer trace.Tracer
}

// NewSpanManager returns a SpanManager that uses the global OTel tracer
// provider. Configure the provider before calling this function:
//
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return NewSpanManagerWithProvider(otel.GetTracerProvider())
}

// NewSpanManagerWithProvider returns a SpanManager bound to tp.
func NewSpanManagerWithProvider(tp trace.TracerProvider) SpanManager {
	return &otelSpanManager{tracer: tp.Tracer("logmill")}
}

// StartPipelineSpan starts the pipeline span.
func (m *otelSpanManager) StartPipelineSpan(ctx context.Context, name string, workers int) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "logmill.pipeline.run",
		trace.WithAttributes(
			attribute.String("pipeline.name", name),
			attribute.Int("pipeline.workers", workers),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartUnitSpan starts a unit span as a child of the span in ctx.
func (m *otelSpanManager) StartUnitSpan(ctx context.Context, unitID string, worker int) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "logmill.unit."+unitID,
		trace.WithAttributes(
			attribute.String("unit.id", unitID),
			attribute.Int("unit.worker", worker),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span.
func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
