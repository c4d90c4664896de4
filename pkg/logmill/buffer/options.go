package buffer

import (
	"log/slog"
	"time"

	"github.com/randalmurphal/logmill/pkg/logmill/timer"
)

// Config holds buffer tuning.
type Config struct {
	// Name identifies the buffer in logs.
	Name string

	// FlushSize triggers a flush when this many items are pending.
	FlushSize int

	// MaxSize is the capacity; Append blocks while it is reached.
	MaxSize int

	// Interval triggers a flush of whatever is pending. Zero disables
	// interval flushing.
	Interval time.Duration

	// PollInterval is how often a blocked Append rechecks capacity.
	PollInterval time.Duration

	// WarnInterval limits how often a blocked Append logs a warning.
	WarnInterval time.Duration
}

// DefaultConfig provides reasonable defaults.
var DefaultConfig = Config{
	Name:         "buffer",
	FlushSize:    50,
	MaxSize:      5000,
	Interval:     time.Second,
	PollInterval: 50 * time.Millisecond,
	WarnInterval: time.Second,
}

// Option configures a Buffer.
type Option func(*settings)

type settings struct {
	cfg      Config
	logger   *slog.Logger
	timers   *timer.Registry
	observer func(size int, elapsed time.Duration, err error)
}

// WithName sets the name used in log messages and timer registration.
func WithName(name string) Option {
	return func(s *settings) { s.cfg.Name = name }
}

// WithFlushSize sets the pending count that triggers a flush.
func WithFlushSize(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.cfg.FlushSize = n
		}
	}
}

// WithMaxSize sets the buffer capacity.
func WithMaxSize(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.cfg.MaxSize = n
		}
	}
}

// WithInterval sets the periodic flush interval. Zero disables it.
func WithInterval(d time.Duration) Option {
	return func(s *settings) { s.cfg.Interval = d }
}

// WithPollInterval sets how often a blocked Append rechecks capacity.
func WithPollInterval(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.cfg.PollInterval = d
		}
	}
}

// WithWarnInterval sets the minimum spacing of "buffer full" warnings.
func WithWarnInterval(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.cfg.WarnInterval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTimers registers the interval flush in reg instead of a private
// registry, so a process-wide StopAll also stops it.
func WithTimers(reg *timer.Registry) Option {
	return func(s *settings) {
		if reg != nil {
			s.timers = reg
		}
	}
}

// WithFlushObserver installs a callback invoked after every flush attempt.
func WithFlushObserver(fn func(size int, elapsed time.Duration, err error)) Option {
	return func(s *settings) { s.observer = fn }
}
