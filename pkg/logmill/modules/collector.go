package modules

import (
	"context"
	"sync"
	"time"

	"github.com/randalmurphal/logmill/pkg/logmill/event"
	"github.com/randalmurphal/logmill/pkg/logmill/module"
)

// Collector keeps every event it receives in memory.
type Collector struct {
	module.Base

	mu     sync.Mutex
	events []*event.Event
}

// Type implements module.Module.
func (*Collector) Type() module.Type { return module.TypeOutput }

// HandleEvent stores evt.
func (c *Collector) HandleEvent(_ context.Context, evt *event.Event) ([]*event.Event, error) {
	c.mu.Lock()
	c.events = append(c.events, evt)
	c.mu.Unlock()
	return []*event.Event{evt}, nil
}

// Events returns the collected events in arrival order.
func (c *Collector) Events() []*event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*event.Event(nil), c.events...)
}

// Len returns the number of collected events.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

// Wait blocks until at least n events arrived or ctx is done.
func (c *Collector) Wait(ctx context.Context, n int) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for c.Len() < n {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
