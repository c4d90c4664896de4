package modules

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/logmill/pkg/logmill/config"
	"github.com/randalmurphal/logmill/pkg/logmill/module"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newThrottle(t *testing.T, env module.Env, fields map[string]any) (*Throttle, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	th := &Throttle{now: clock.now}
	configure(t, th, env, fields)
	require.NoError(t, th.InitAfterFork(context.Background(), env))
	t.Cleanup(func() { _ = th.ShutDown(context.Background()) })
	return th, clock
}

func passed(t *testing.T, th *Throttle, fields map[string]any) bool {
	t.Helper()
	return len(handle(t, th, fields)) == 1
}

func TestThrottle_DefaultPassesFirstOnly(t *testing.T) {
	th, clock := newThrottle(t, testEnv(t, "Throttle"), map[string]any{"key": "$(ip)"})

	assert.True(t, passed(t, th, map[string]any{"ip": "10.0.0.1"}))
	assert.False(t, passed(t, th, map[string]any{"ip": "10.0.0.1"}))
	assert.True(t, passed(t, th, map[string]any{"ip": "10.0.0.2"}), "keys are independent")

	clock.t = clock.t.Add(601 * time.Second)
	assert.True(t, passed(t, th, map[string]any{"ip": "10.0.0.1"}), "count resets after timeframe")
}

func TestThrottle_MinMaxWindow(t *testing.T) {
	th, _ := newThrottle(t, testEnv(t, "Throttle"), map[string]any{
		"key": "$(ip)", "min_count": 2, "max_count": 3, "timeframe": "1m",
	})

	var got []bool
	for range 5 {
		got = append(got, passed(t, th, map[string]any{"ip": "a"}))
	}
	assert.Equal(t, []bool{false, true, true, false, false}, got)
}

func TestThrottle_MissingKeyFieldUsesRawTemplate(t *testing.T) {
	th, _ := newThrottle(t, testEnv(t, "Throttle"), map[string]any{"key": "$(ip)"})

	assert.True(t, passed(t, th, map[string]any{}))
	assert.False(t, passed(t, th, map[string]any{"other": 1}), "all events without ip share one key")
}

func TestThrottle_Expire(t *testing.T) {
	th, clock := newThrottle(t, testEnv(t, "Throttle"), map[string]any{"key": "$(ip)", "timeframe": 10})

	passed(t, th, map[string]any{"ip": "a"})
	clock.t = clock.t.Add(5 * time.Second)
	passed(t, th, map[string]any{"ip": "b"})

	clock.t = clock.t.Add(6 * time.Second)
	th.expire(context.Background())
	assert.NotContains(t, th.entries, "a")
	assert.Contains(t, th.entries, "b")
}

func TestThrottle_SharedBackend(t *testing.T) {
	env := testEnv(t, "Throttle")

	kvs := &KeyValueStore{}
	configure(t, kvs, env, map[string]any{
		"backend": "sqlite", "path": filepath.Join(t.TempDir(), "kv.db"), "key_prefix": "test:",
	})
	t.Cleanup(func() { _ = kvs.ShutDown(context.Background()) })

	env.Lookup = func(id string) (module.Module, bool) {
		if id == "shared" {
			return kvs, true
		}
		return nil, false
	}

	cfg := map[string]any{"key": "$(ip)", "backend": "shared"}
	first, _ := newThrottle(t, env, cfg)
	second, _ := newThrottle(t, env, cfg)

	assert.True(t, passed(t, first, map[string]any{"ip": "a"}))
	assert.False(t, passed(t, second, map[string]any{"ip": "a"}), "count is shared through the store")

	keys, err := kvs.Store().Keys(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"logmill:throttle:a"}, keys)
}

func TestThrottle_BackendErrors(t *testing.T) {
	env := testEnv(t, "Throttle")
	env.Lookup = func(id string) (module.Module, bool) {
		if id == "noop" {
			return &Noop{}, true
		}
		return nil, false
	}

	tests := []struct {
		backend string
		want    string
	}{
		{backend: "missing", want: "no such unit"},
		{backend: "noop", want: "does not provide a store"},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			th := &Throttle{}
			require.NoError(t, th.Configure(env, config.New(map[string]any{"key": "k", "backend": tt.backend})))
			assert.ErrorContains(t, th.InitAfterFork(context.Background(), env), tt.want)
		})
	}
}

func TestThrottle_ConfigErrors(t *testing.T) {
	env := testEnv(t, "Throttle")
	assert.ErrorContains(t, (&Throttle{}).Configure(env, config.New(nil)), "key")
	assert.ErrorContains(t,
		(&Throttle{}).Configure(env, config.New(map[string]any{"key": "k", "min_count": 3, "max_count": 2})),
		"max_count")
	assert.ErrorContains(t,
		(&Throttle{}).Configure(env, config.New(map[string]any{"key": "$(client"})),
		"key: template: syntax error")
}
