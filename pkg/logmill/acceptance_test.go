package logmill

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/logmill/pkg/logmill/event"
	"github.com/randalmurphal/logmill/pkg/logmill/store"
)

func TestAcceptance_SpamNoopCollector(t *testing.T) {
	p := build(t, `
- Spam:
    event: ni
    events_count: 3
- Noop
- Collector
`)
	run(t, p)

	cs := collected(t, p, "Collector")
	require.Len(t, cs, 1)
	events := cs[0].Events()
	require.Len(t, events, 3)

	ids := make(map[string]bool)
	for _, evt := range events {
		data, _ := evt.Get("data")
		assert.Equal(t, "ni", data)
		assert.Equal(t, "Spam", evt.Source())
		ids[evt.ID()] = true
	}
	assert.Len(t, ids, 3, "event ids are distinct")

	assert.Equal(t, StateStopped, p.State())
	assert.Equal(t, int64(3), p.Process().Counters.Get("Spam"))
	assert.Equal(t, int64(3), p.Process().Counters.Get("Noop"))
}

func TestAcceptance_ReceiverFilters(t *testing.T) {
	p := build(t, `
- Spam:
    event:
      - status: 404
      - status: 200
      - other: true
    events_count: 3
- Noop:
    receivers:
      - R1:
          filter: status == 404
      - R2
- Collector:
    id: R1
- Collector:
    id: R2
`)
	run(t, p)

	r1 := collected(t, p, "R1")[0].Events()
	r2 := collected(t, p, "R2")[0].Events()
	require.Len(t, r1, 1)
	status, _ := r1[0].Get("status")
	assert.Equal(t, 404, status)
	assert.Len(t, r2, 3)
}

func TestAcceptance_CommonActions(t *testing.T) {
	p := build(t, `
- Spam:
    event: ni
    events_count: 2
    event_type: spam
- Noop:
    filter: $(data) == 'ni'
    add_fields:
      seen_by: $(logmill.source_module)
    delete_fields: [data]
- Collector
`)
	run(t, p)

	events := collected(t, p, "Collector")[0].Events()
	require.Len(t, events, 2)
	for _, evt := range events {
		assert.Equal(t, "spam", evt.Type())
		seen, _ := evt.Get("seen_by")
		assert.Equal(t, "Spam", seen)
		assert.False(t, evt.Contains("data"))
	}
}

func TestAcceptance_WorkersAcrossSerialChannel(t *testing.T) {
	p := build(t, `
- Global:
    workers: 2
    queue_buffer_size: 3
    queue_flush_interval: 10ms
    drain:
      rounds: 20
      step: 5ms
- Spam:
    event: x
    events_count: 11
- SingleCollector
`)
	u, ok := p.Unit("SingleCollector")
	require.True(t, ok)
	require.NotNil(t, u.serial, "forked sender feeding a single-worker unit crosses workers")
	assert.Len(t, p.Instances("Spam"), 2)

	run(t, p)

	events := collected(t, p, "SingleCollector")[0].Events()
	require.Len(t, events, 11)

	perWorker := make(map[any]int)
	for _, evt := range events {
		perWorker[evt.Meta()[event.KeyWorker]]++
	}
	assert.Len(t, perWorker, 2, "both workers produced events")
	assert.Zero(t, p.Pending())
}

func TestAcceptance_PooledUnit(t *testing.T) {
	p := build(t, `
- Global:
    queue_buffer_size: 4
    queue_flush_interval: 10ms
    drain:
      step: 5ms
      rounds: 20
- Spam:
    event: x
    events_count: 20
- Noop:
    pool_size: 3
- Collector
`)
	u, _ := p.Unit("Noop")
	require.Len(t, u.pooled, 1)
	require.Len(t, u.Instances, 3)

	run(t, p)
	assert.Equal(t, 20, collectedLen(t, p, "Collector"))
}

func TestAcceptance_AckStoreEmptiesAfterDelivery(t *testing.T) {
	kv := store.NewMemoryStore()
	p := build(t, `
- Spam:
    event: x
    events_count: 5
- Noop:
    receivers: [A, B]
- Collector:
    id: A
- DropEvent:
    id: B
`, WithAckStore(kv))
	run(t, p)

	assert.Equal(t, 5, collectedLen(t, p, "A"))
	assert.Zero(t, kv.Len(), "every root was committed")
}

func TestAcceptance_RequeueAfterRestart(t *testing.T) {
	kv := store.NewMemoryStore()
	left := event.FromData("from last run", event.WithSource("Spam"))
	data, err := event.Marshal(left)
	require.NoError(t, err)
	require.NoError(t, kv.Set(context.Background(), "logmill:"+left.ID(), data))

	p := build(t, `
- Spam:
    event: fresh
    events_count: 1
- Collector
`, WithAckStore(kv))
	run(t, p)

	events := collected(t, p, "Collector")[0].Events()
	require.Len(t, events, 2)
	assert.Equal(t, left.ID(), events[0].ID(), "requeued events go first")
	assert.Zero(t, kv.Len())
}
