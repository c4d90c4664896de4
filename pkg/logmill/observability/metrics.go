package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	lmerrors "github.com/randalmurphal/logmill/pkg/logmill/errors"
)

// MetricsRecorder records pipeline metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordEvent records one handled event with its duration and error status.
	RecordEvent(ctx context.Context, unitID string, duration time.Duration, err error)

	// RecordRouted records an event dispatched from one unit to a receiver.
	RecordRouted(ctx context.Context, from, to string)

	// RecordFilterError records a filter that failed to evaluate.
	RecordFilterError(ctx context.Context, unitID string)

	// RecordFlush records a channel buffer flush.
	RecordFlush(ctx context.Context, channelID string, size int)

	// RecordDrainResidual records events left undelivered at shutdown.
	RecordDrainResidual(ctx context.Context, pending int)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	eventsHandled metric.Int64Counter
	eventErrors   metric.Int64Counter
	eventLatency  metric.Float64Histogram
	eventsRouted  metric.Int64Counter
	filterErrors  metric.Int64Counter
	flushSize     metric.Int64Histogram
	drainResidual metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics(otel.Meter("logmill"))
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics(meter metric.Meter) (*otelMetrics, error) {
	var (
		m   otelMetrics
		err error
	)

	if m.eventsHandled, err = meter.Int64Counter("logmill.events.handled",
		metric.WithDescription("Number of events handled by units"),
	); err != nil {
		return nil, err
	}
	if m.eventErrors, err = meter.Int64Counter("logmill.events.errors",
		metric.WithDescription("Number of events whose handler failed"),
	); err != nil {
		return nil, err
	}
	if m.eventLatency, err = meter.Float64Histogram("logmill.event.latency_ms",
		metric.WithDescription("Event handling latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.eventsRouted, err = meter.Int64Counter("logmill.events.routed",
		metric.WithDescription("Number of events dispatched to receivers"),
	); err != nil {
		return nil, err
	}
	if m.filterErrors, err = meter.Int64Counter("logmill.filter.errors",
		metric.WithDescription("Number of filter evaluation failures"),
	); err != nil {
		return nil, err
	}
	if m.flushSize, err = meter.Int64Histogram("logmill.channel.flush_size",
		metric.WithDescription("Events per channel flush"),
	); err != nil {
		return nil, err
	}
	if m.drainResidual, err = meter.Int64Counter("logmill.drain.residual",
		metric.WithDescription("Events left undelivered at shutdown"),
	); err != nil {
		return nil, err
	}
	return &m, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// NewMetricsRecorderWithProvider returns a MetricsRecorder bound to mp
// instead of the global provider.
func NewMetricsRecorderWithProvider(mp metric.MeterProvider) (MetricsRecorder, error) {
	m, err := newOtelMetrics(mp.Meter("logmill"))
	if err != nil {
		return nil, err
	}
	return m, nil
}

// RecordEvent records a handled event. Failures are labelled with their
// error category.
func (m *otelMetrics) RecordEvent(ctx context.Context, unitID string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("unit_id", unitID))

	m.eventsHandled.Add(ctx, 1, attrs)
	m.eventLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)

	if err != nil {
		m.eventErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("unit_id", unitID),
			attribute.String("category", lmerrors.Categorize(err).String()),
		))
	}
}

// RecordRouted records a dispatch.
func (m *otelMetrics) RecordRouted(ctx context.Context, from, to string) {
	m.eventsRouted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// RecordFilterError records a failed filter.
func (m *otelMetrics) RecordFilterError(ctx context.Context, unitID string) {
	m.filterErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("unit_id", unitID)))
}

// RecordFlush records a flush.
func (m *otelMetrics) RecordFlush(ctx context.Context, channelID string, size int) {
	m.flushSize.Record(ctx, int64(size), metric.WithAttributes(attribute.String("channel_id", channelID)))
}

// RecordDrainResidual records undelivered events.
func (m *otelMetrics) RecordDrainResidual(ctx context.Context, pending int) {
	m.drainResidual.Add(ctx, int64(pending))
}
