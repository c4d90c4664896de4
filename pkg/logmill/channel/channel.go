// Package channel implements the buffered transport placed between units.
//
// A Channel pairs a buffer.Buffer with a Queue. Producers call Receive,
// which appends to the buffer; the buffer flushes whole batches into the
// queue on size or interval; a driven unit pulls batches with Get. To the
// sending unit a Channel is just another receiver.
//
// Two queue implementations exist:
//   - MemoryQueue passes batches by reference between units of one worker
//   - SerialQueue serializes batches to msgpack frames over a pipe for
//     edges that cross worker boundaries
package channel

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/randalmurphal/logmill/pkg/logmill/buffer"
	lmerrors "github.com/randalmurphal/logmill/pkg/logmill/errors"
	"github.com/randalmurphal/logmill/pkg/logmill/event"
)

// Channel is a buffered, backpressured event transport.
type Channel struct {
	id     string
	queue  Queue
	buf    *buffer.Buffer[*event.Event]
	logger *slog.Logger
	closed atomic.Bool
}

// New creates a channel named id that flushes into queue. Buffer options
// control flush size, capacity and interval.
func New(id string, queue Queue, logger *slog.Logger, opts ...buffer.Option) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Channel{id: id, queue: queue, logger: logger}
	opts = append([]buffer.Option{buffer.WithName(id), buffer.WithLogger(logger)}, opts...)
	c.buf = buffer.New(c.put, opts...)
	return c
}

func (c *Channel) put(ctx context.Context, batch []*event.Event) error {
	err := c.queue.Put(ctx, batch)
	if err != nil && lmerrors.IsShutdown(err) {
		c.logger.Debug("discarding batch after shutdown",
			"channel", c.id,
			"events", len(batch),
		)
		return nil
	}
	return err
}

// ID returns the channel name, usually the id of the receiving unit.
func (c *Channel) ID() string {
	return c.id
}

// Receive appends evt to the buffer, blocking while it is full.
func (c *Channel) Receive(ctx context.Context, evt *event.Event) error {
	if c.closed.Load() {
		return ErrClosed
	}
	return c.buf.Append(ctx, evt)
}

// Get returns the next batch for the consuming unit.
func (c *Channel) Get(ctx context.Context) ([]*event.Event, error) {
	return c.queue.Get(ctx)
}

// Len returns the number of events buffered or queued but not yet handed
// to a consumer.
func (c *Channel) Len() int {
	return c.buf.Len() + c.queue.Len()
}

// Flush pushes buffered events into the queue.
func (c *Channel) Flush(ctx context.Context) error {
	return c.buf.Flush(ctx)
}

// StartInterval enables periodic flushing.
func (c *Channel) StartInterval() {
	c.buf.StartInterval()
}

// StopInterval disables periodic flushing.
func (c *Channel) StopInterval() {
	c.buf.StopInterval()
}

// Close stops the interval and closes the queue. Events still buffered are
// discarded; callers drain before closing.
func (c *Channel) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.buf.StopInterval()
	if n := c.buf.Len(); n > 0 {
		c.logger.Warn("closing channel with buffered events",
			"channel", c.id,
			"events", n,
		)
	}
	return c.queue.Close()
}
