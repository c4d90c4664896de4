package modules

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/logmill/pkg/logmill/event"
)

func TestCollector(t *testing.T) {
	c := &Collector{}
	configure(t, c, testEnv(t, "Collector"), nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	go func() {
		for i := range 3 {
			_, _ = c.HandleEvent(ctx, event.New(map[string]any{"n": i}))
		}
	}()
	require.NoError(t, c.Wait(ctx, 3))

	events := c.Events()
	require.Len(t, events, 3)
	n, _ := events[2].Get("n")
	assert.Equal(t, 2, n)
}

func TestCollector_WaitTimeout(t *testing.T) {
	c := &Collector{}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Wait(ctx, 1), context.DeadlineExceeded)
}

func TestDropEventAndNoop(t *testing.T) {
	assert.Empty(t, handle(t, &DropEvent{}, nil))

	n := &Noop{}
	evt := event.New(nil)
	out, err := n.HandleEvent(context.Background(), evt)
	require.NoError(t, err)
	assert.Equal(t, []*event.Event{evt}, out)
}
