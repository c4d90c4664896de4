package modules

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/logmill/pkg/logmill/config"
	"github.com/randalmurphal/logmill/pkg/logmill/module"
	"github.com/randalmurphal/logmill/pkg/logmill/store"
)

func TestKeyValueStore_Prefix(t *testing.T) {
	kvs := &KeyValueStore{}
	configure(t, kvs, testEnv(t, "KeyValueStore"), map[string]any{"key_prefix": "p:"})

	ctx := context.Background()
	kv := kvs.Store()
	require.NoError(t, kv.Set(ctx, "a", []byte("1")))
	require.NoError(t, kv.Set(ctx, "b", []byte("2")))

	v, err := kv.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)

	keys, err := kv.Keys(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)

	inner := kv.(*prefixedKV).KV
	_, err = inner.Get(ctx, "p:a")
	assert.NoError(t, err, "stored under the prefix")

	require.NoError(t, kv.Delete(ctx, "a"))
	_, err = kv.Get(ctx, "a")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestKeyValueStore_Lifecycle(t *testing.T) {
	kvs := &KeyValueStore{}
	assert.Equal(t, module.TypeStandAlone, kvs.Type())
	assert.False(t, kvs.CanRunForked())
	assert.NoError(t, kvs.ShutDown(context.Background()), "shutdown before configure")

	configure(t, kvs, testEnv(t, "KeyValueStore"), nil)
	require.NoError(t, kvs.ShutDown(context.Background()))

	err := kvs.Store().Set(context.Background(), "a", nil)
	assert.ErrorIs(t, err, store.ErrStoreClosed)
}

func TestKeyValueStore_BadBackend(t *testing.T) {
	err := (&KeyValueStore{}).Configure(testEnv(t, "KeyValueStore"), config.New(map[string]any{"backend": "sqlite"}))
	assert.ErrorContains(t, err, "requires a path")
}
