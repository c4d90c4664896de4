// Package ack provides at-least-once delivery bookkeeping.
//
// An event is tracked when it enters the pipeline: a snapshot is persisted
// under its id. Events derived from it (fan-out clones, parser output) are
// branched onto the same root. Each commit releases one reference; when
// the last one is released the snapshot is deleted. Snapshots left after
// an unclean exit are replayed on the next start with Requeue.
package ack

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/randalmurphal/logmill/pkg/logmill/event"
	"github.com/randalmurphal/logmill/pkg/logmill/store"
)

// Tracker maps in-flight events to their ingress root.
// It is safe for concurrent use.
type Tracker struct {
	kv     store.KV
	prefix string
	logger *slog.Logger

	mu    sync.Mutex
	refs  map[string]int    // root id -> live events
	owner map[string]string // event id -> root id
}

// New creates a tracker persisting snapshots to kv under prefix.
func New(kv store.KV, prefix string, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		kv:     kv,
		prefix: prefix,
		logger: logger,
		refs:   make(map[string]int),
		owner:  make(map[string]string),
	}
}

// Track persists evt as a new root.
func (t *Tracker) Track(ctx context.Context, evt *event.Event) error {
	data, err := event.Marshal(evt)
	if err != nil {
		return fmt.Errorf("snapshot event %s: %w", evt.ID(), err)
	}
	if err := t.kv.Set(ctx, t.prefix+evt.ID(), data); err != nil {
		return fmt.Errorf("persist event %s: %w", evt.ID(), err)
	}

	t.mu.Lock()
	id := evt.ID()
	if _, ok := t.owner[id]; !ok {
		t.refs[id]++
		t.owner[id] = id
	}
	t.mu.Unlock()
	return nil
}

// Branch attaches child to parent's root. Untracked parents are ignored.
func (t *Tracker) Branch(_ context.Context, parent, child *event.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	root, ok := t.owner[parent.ID()]
	if !ok {
		return
	}
	if _, dup := t.owner[child.ID()]; dup {
		return
	}
	t.owner[child.ID()] = root
	t.refs[root]++
}

// Commit releases evt. When no event of its root remains in flight the
// root snapshot is deleted.
func (t *Tracker) Commit(ctx context.Context, evt *event.Event) {
	t.mu.Lock()
	root, ok := t.owner[evt.ID()]
	if !ok {
		t.mu.Unlock()
		return
	}
	delete(t.owner, evt.ID())
	t.refs[root]--
	done := t.refs[root] <= 0
	if done {
		delete(t.refs, root)
	}
	t.mu.Unlock()

	if !done {
		return
	}
	if err := t.kv.Delete(ctx, t.prefix+root); err != nil {
		t.logger.Warn("failed to delete acknowledged event",
			slog.String("event_id", root),
			slog.String("error", err.Error()),
		)
	}
}

// Pending returns the number of roots with events in flight.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.refs)
}

// Requeue loads every persisted snapshot and passes it to emit, which is
// expected to Track it again. Snapshots that fail to decode are deleted;
// snapshots emit rejects are kept for the next start.
func (t *Tracker) Requeue(ctx context.Context, emit func(context.Context, *event.Event) error) (int, error) {
	keys, err := t.kv.Keys(ctx, t.prefix)
	if err != nil {
		return 0, fmt.Errorf("list persisted events: %w", err)
	}

	count := 0
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		data, err := t.kv.Get(ctx, key)
		if err != nil {
			return count, fmt.Errorf("load %s: %w", key, err)
		}
		evt, err := event.Unmarshal(data)
		if err != nil {
			t.logger.Warn("dropping undecodable persisted event",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
			_ = t.kv.Delete(ctx, key)
			continue
		}
		if err := emit(ctx, evt); err != nil {
			t.logger.Warn("requeue failed",
				slog.String("event_id", evt.ID()),
				slog.String("error", err.Error()),
			)
			continue
		}
		count++
	}
	return count, nil
}

// Close closes the backing store.
func (t *Tracker) Close() error {
	return t.kv.Close()
}
