// Package buffer implements a size- and interval-triggered batching buffer
// with a blocking capacity guard.
//
// Items accumulate until FlushSize is reached or the flush interval fires,
// then the whole batch is handed to the flush callback. Pending items are
// discarded only after the callback succeeds; a failed batch stays in place
// and is retried on the next trigger. Nothing is ever dropped: once the
// buffer holds MaxSize items, Append blocks until a flush makes room.
package buffer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/randalmurphal/logmill/pkg/logmill/timer"
)

// FlushFunc receives a batch. It must not modify the slice if it returns
// an error, since the same batch is retried.
type FlushFunc[T any] func(ctx context.Context, batch []T) error

// Buffer batches items for a FlushFunc. It is safe for concurrent use.
type Buffer[T any] struct {
	cfg      Config
	flushFn  FlushFunc[T]
	logger   *slog.Logger
	timers   *timer.Registry
	observer func(int, time.Duration, error)

	mu       sync.Mutex
	items    []T
	flushing bool
	ticking  bool
	handle   *timer.Handle
}

// New creates a buffer that flushes into fn.
func New[T any](fn FlushFunc[T], opts ...Option) *Buffer[T] {
	s := settings{cfg: DefaultConfig}
	for _, opt := range opts {
		opt(&s)
	}
	if s.cfg.MaxSize < s.cfg.FlushSize {
		s.cfg.MaxSize = s.cfg.FlushSize
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.timers == nil {
		s.timers = timer.NewRegistry(s.logger)
	}
	return &Buffer[T]{
		cfg:      s.cfg,
		flushFn:  fn,
		logger:   s.logger,
		timers:   s.timers,
		observer: s.observer,
		items:    make([]T, 0, s.cfg.FlushSize),
	}
}

// Config returns the effective configuration.
func (b *Buffer[T]) Config() Config {
	return b.cfg
}

// Len returns the number of pending items.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Append adds item, blocking while the buffer is at capacity or a flush is
// in progress. Reaching FlushSize triggers a flush on the caller's
// goroutine. Append returns an error only if ctx ends while blocked; the
// item is not added in that case.
func (b *Buffer[T]) Append(ctx context.Context, item T) error {
	var (
		waitStart time.Time
		lastWarn  time.Time
	)
	for {
		b.mu.Lock()
		if !b.flushing && len(b.items) < b.cfg.MaxSize {
			break
		}
		full := !b.flushing
		b.mu.Unlock()

		now := time.Now()
		if waitStart.IsZero() {
			waitStart = now
		}
		if now.Sub(lastWarn) >= b.cfg.WarnInterval && now.Sub(waitStart) >= b.cfg.WarnInterval {
			lastWarn = now
			b.logger.Warn("buffer full, waiting for flush",
				"buffer", b.cfg.Name,
				"max_size", b.cfg.MaxSize,
				"waited", now.Sub(waitStart),
			)
		}
		if full {
			// Nobody is flushing a full buffer; retry the pending batch.
			b.flushAndLog(ctx)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.cfg.PollInterval):
		}
	}

	b.items = append(b.items, item)
	trigger := len(b.items) >= b.cfg.FlushSize
	b.mu.Unlock()

	if trigger {
		b.flushAndLog(ctx)
	}
	return nil
}

// Flush hands all pending items to the flush callback. Only one flush runs
// at a time; a concurrent call returns nil immediately. The interval timer
// is stopped while the callback runs.
func (b *Buffer[T]) Flush(ctx context.Context) error {
	b.mu.Lock()
	if b.flushing || len(b.items) == 0 {
		b.mu.Unlock()
		return nil
	}
	b.flushing = true
	batch := b.items
	b.stopTimerLocked()
	b.mu.Unlock()

	start := time.Now()
	err := b.flushFn(ctx, batch)
	elapsed := time.Since(start)

	b.mu.Lock()
	if err == nil {
		rest := b.items[len(batch):]
		b.items = make([]T, len(rest), max(b.cfg.FlushSize, len(rest)))
		copy(b.items, rest)
	}
	b.flushing = false
	if b.ticking {
		b.startTimerLocked()
	}
	b.mu.Unlock()

	if b.observer != nil {
		b.observer(len(batch), elapsed, err)
	}
	return err
}

func (b *Buffer[T]) flushAndLog(ctx context.Context) {
	if err := b.Flush(ctx); err != nil {
		b.logger.Warn("buffer flush failed, batch kept for retry",
			"buffer", b.cfg.Name,
			"pending", b.Len(),
			"error", err,
		)
	}
}

// StartInterval enables interval flushing.
func (b *Buffer[T]) StartInterval() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ticking || b.cfg.Interval <= 0 {
		return
	}
	b.ticking = true
	if !b.flushing {
		b.startTimerLocked()
	}
}

// StopInterval disables interval flushing.
func (b *Buffer[T]) StopInterval() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ticking = false
	b.stopTimerLocked()
}

func (b *Buffer[T]) startTimerLocked() {
	if b.handle != nil {
		return
	}
	b.handle = b.timers.Every(b.cfg.Name, b.cfg.Interval, func() {
		b.flushAndLog(context.Background())
	})
}

func (b *Buffer[T]) stopTimerLocked() {
	if b.handle != nil {
		b.handle.Stop()
		b.handle = nil
	}
}
