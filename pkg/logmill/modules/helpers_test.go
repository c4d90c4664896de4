package modules

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/logmill/pkg/logmill/config"
	"github.com/randalmurphal/logmill/pkg/logmill/event"
	"github.com/randalmurphal/logmill/pkg/logmill/module"
	"github.com/randalmurphal/logmill/pkg/logmill/process"
)

func testEnv(t *testing.T, unitID string) module.Env {
	t.Helper()
	proc := process.New()
	t.Cleanup(proc.Close)
	return module.Env{Proc: proc, Logger: proc.Logger, UnitID: unitID, Workers: 1}
}

func configure(t *testing.T, mod module.Module, env module.Env, fields map[string]any) {
	t.Helper()
	if sp, ok := mod.(module.SchemaProvider); ok {
		require.NoError(t, sp.Schema().Validate(config.New(fields), module.CommonFields...))
	}
	require.NoError(t, mod.Configure(env, config.New(fields)))
}

func handle(t *testing.T, mod module.Module, fields map[string]any) []*event.Event {
	t.Helper()
	out, err := mod.HandleEvent(context.Background(), event.New(fields))
	require.NoError(t, err)
	return out
}

type emitted struct {
	mu     sync.Mutex
	events []*event.Event
}

func (e *emitted) emit(_ context.Context, evt *event.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
	return nil
}

func (e *emitted) len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.events)
}
