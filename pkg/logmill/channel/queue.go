package channel

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	lmerrors "github.com/randalmurphal/logmill/pkg/logmill/errors"
	"github.com/randalmurphal/logmill/pkg/logmill/event"
)

// ErrClosed is returned by queue operations after Close. It wraps
// errors.ErrShutdown so callers can swallow it during shutdown.
var ErrClosed = fmt.Errorf("channel closed: %w", lmerrors.ErrShutdown)

// Queue moves batches of events between producers and consumers.
type Queue interface {
	// Put enqueues a batch, blocking while the queue is full.
	Put(ctx context.Context, batch []*event.Event) error

	// Get dequeues the next batch, blocking until one is available.
	Get(ctx context.Context) ([]*event.Event, error)

	// Len returns the number of events enqueued and not yet dequeued.
	Len() int

	// Close releases the queue. Blocked and later calls return ErrClosed.
	Close() error
}

// MemoryQueue is a bounded in-process queue. Batches are passed by
// reference, so it is only used between units of the same worker.
type MemoryQueue struct {
	ch      chan []*event.Event
	pending atomic.Int64
	closed  chan struct{}
	once    sync.Once
}

// NewMemoryQueue creates a queue holding up to capacity batches.
func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &MemoryQueue{
		ch:     make(chan []*event.Event, capacity),
		closed: make(chan struct{}),
	}
}

// Put implements Queue.
func (q *MemoryQueue) Put(ctx context.Context, batch []*event.Event) error {
	select {
	case <-q.closed:
		return ErrClosed
	default:
	}
	q.pending.Add(int64(len(batch)))
	select {
	case q.ch <- batch:
		return nil
	case <-q.closed:
		q.pending.Add(-int64(len(batch)))
		return ErrClosed
	case <-ctx.Done():
		q.pending.Add(-int64(len(batch)))
		return ctx.Err()
	}
}

// Get implements Queue.
func (q *MemoryQueue) Get(ctx context.Context) ([]*event.Event, error) {
	select {
	case batch := <-q.ch:
		q.pending.Add(-int64(len(batch)))
		return batch, nil
	case <-q.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len implements Queue.
func (q *MemoryQueue) Len() int {
	return int(q.pending.Load())
}

// Close implements Queue.
func (q *MemoryQueue) Close() error {
	q.once.Do(func() { close(q.closed) })
	return nil
}
