// Package process holds the state shared by every unit of a running
// pipeline: logger, timers, counters, metrics, and the shutdown signal.
package process

import (
	"log/slog"
	"os"
	"sync"

	"github.com/randalmurphal/logmill/pkg/logmill/observability"
	"github.com/randalmurphal/logmill/pkg/logmill/timer"
)

// Context is the process-wide state injected into units.
// Create it with New and release it with Close.
type Context struct {
	Logger   *slog.Logger
	Timers   *timer.Registry
	Counters *Counters
	Metrics  observability.MetricsRecorder
	Spans    observability.SpanManager

	// Hostname and PID are stamped into event metadata.
	Hostname string
	PID      int

	// Workers is the configured worker count.
	Workers int

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// Option configures a Context.
type Option func(*Context)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Context) {
		c.Logger = logger
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(c *Context) {
		c.Metrics = m
	}
}

// WithSpans sets the span manager.
func WithSpans(s observability.SpanManager) Option {
	return func(c *Context) {
		c.Spans = s
	}
}

// WithWorkers sets the worker count.
func WithWorkers(n int) Option {
	return func(c *Context) {
		c.Workers = n
	}
}

// New creates a Context. Metrics and tracing default to no-ops.
func New(opts ...Option) *Context {
	c := &Context{
		Logger:   slog.Default(),
		Counters: NewCounters(),
		Metrics:  observability.NoopMetrics{},
		Spans:    observability.NoopSpanManager{},
		PID:      os.Getpid(),
		Workers:  1,
		shutdown: make(chan struct{}),
	}
	if host, err := os.Hostname(); err == nil {
		c.Hostname = host
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	c.Timers = timer.NewRegistry(c.Logger)
	return c
}

// RequestShutdown asks the pipeline to stop. Safe to call more than once
// and from any goroutine.
func (c *Context) RequestShutdown() {
	c.shutdownOnce.Do(func() {
		c.Logger.Info("shutdown requested")
		close(c.shutdown)
	})
}

// ShutdownRequested is closed once RequestShutdown has been called.
func (c *Context) ShutdownRequested() <-chan struct{} {
	return c.shutdown
}

// Close stops every registered timer and waits for them to exit.
func (c *Context) Close() {
	c.Timers.StopAll()
}
