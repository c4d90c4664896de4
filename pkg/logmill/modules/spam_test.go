package modules

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/logmill/pkg/logmill/config"
	lmerrors "github.com/randalmurphal/logmill/pkg/logmill/errors"
	"github.com/randalmurphal/logmill/pkg/logmill/event"
	"github.com/randalmurphal/logmill/pkg/logmill/module"
)

func TestSpam_EventsCount(t *testing.T) {
	s := &Spam{}
	configure(t, s, testEnv(t, "Spam"), map[string]any{"event": "ni", "events_count": 3})

	var out emitted
	require.NoError(t, s.Start(context.Background(), out.emit))

	require.Equal(t, 3, out.len())
	for _, evt := range out.events {
		data, _ := evt.Get("data")
		assert.Equal(t, "ni", data)
		assert.Equal(t, "Spam", evt.Source())
	}
}

func TestSpam_EventList(t *testing.T) {
	s := &Spam{}
	configure(t, s, testEnv(t, "Spam"), map[string]any{
		"event":        []any{"a", map[string]any{"status": 404}},
		"events_count": 3,
	})

	var out emitted
	require.NoError(t, s.Start(context.Background(), out.emit))
	require.Equal(t, 3, out.len())

	data, _ := out.events[0].Get("data")
	assert.Equal(t, "a", data)
	status, _ := out.events[1].Get("status")
	assert.Equal(t, 404, status)
	data, _ = out.events[2].Get("data")
	assert.Equal(t, "a", data)
}

func TestSpam_InvalidEvent(t *testing.T) {
	s := &Spam{}
	err := s.Configure(testEnv(t, "Spam"), config.New(map[string]any{"event": 5}))
	assert.ErrorContains(t, err, "expected string or map")
}

func TestSpam_SplitAcrossWorkers(t *testing.T) {
	tests := []struct {
		name    string
		total   int
		workers int
		want    []int
	}{
		{name: "even", total: 9, workers: 3, want: []int{3, 3, 3}},
		{name: "remainder on first worker", total: 10, workers: 3, want: []int{4, 3, 3}},
		{name: "fewer events than workers", total: 1, workers: 2, want: []int{1, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for w, want := range tt.want {
				env := testEnv(t, "Spam")
				env.Worker, env.Workers = w, tt.workers

				s := &Spam{}
				configure(t, s, env, map[string]any{"event": "x", "events_count": tt.total})
				require.NoError(t, s.InitAfterFork(context.Background(), env))

				var out emitted
				require.NoError(t, s.Start(context.Background(), out.emit))
				assert.Equal(t, want, out.len(), "worker %d", w)
			}
		})
	}
}

func TestSpam_UnlimitedStopsOnCancel(t *testing.T) {
	s := &Spam{}
	configure(t, s, testEnv(t, "Spam"), map[string]any{"event": "x", "sleep": "1ms"})

	ctx, cancel := context.WithCancel(context.Background())
	var out emitted
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx, out.emit) }()

	require.Eventually(t, func() bool { return out.len() > 2 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Spam did not stop after cancel")
	}
}

func TestSpam_StopsOnShutdownError(t *testing.T) {
	s := &Spam{}
	configure(t, s, testEnv(t, "Spam"), map[string]any{"event": "x"})

	calls := 0
	err := s.Start(context.Background(), func(context.Context, *event.Event) error {
		calls++
		return lmerrors.ErrShutdown
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestSpam_Rate(t *testing.T) {
	s := &Spam{}
	configure(t, s, testEnv(t, "Spam"), map[string]any{"event": "x", "events_count": 3, "rate": 1000})
	require.NotNil(t, s.limiter)

	var out emitted
	require.NoError(t, s.Start(context.Background(), out.emit))
	assert.Equal(t, 3, out.len())
	assert.Equal(t, module.TypeInput, s.Type())
}
