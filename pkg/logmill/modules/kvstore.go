package modules

import (
	"context"
	"fmt"
	"strings"

	"github.com/randalmurphal/logmill/pkg/logmill/config"
	"github.com/randalmurphal/logmill/pkg/logmill/module"
	"github.com/randalmurphal/logmill/pkg/logmill/store"
)

// StoreProvider is implemented by units that share a key-value store with
// other units. Units find it through module.Env.Lookup.
type StoreProvider interface {
	Store() store.KV
}

// KeyValueStore owns a store that other units, such as Throttle, use as
// their backend.
//
//	- KeyValueStore:
//	    id: shared_store
//	    backend: sqlite
//	    path: /var/lib/logmill/kv.db
//	    key_prefix: "logmill:"
type KeyValueStore struct {
	module.Base

	kv store.KV
}

// Type implements module.Module.
func (*KeyValueStore) Type() module.Type { return module.TypeStandAlone }

// CanRunForked reports false: a single instance on worker 0 owns the store.
func (*KeyValueStore) CanRunForked() bool { return false }

// Schema implements module.SchemaProvider.
func (*KeyValueStore) Schema() config.Schema {
	return config.Schema{
		"backend":    {Kind: config.KindString, OneOf: []string{"memory", "sqlite"}},
		"path":       {Kind: config.KindString},
		"key_prefix": {Kind: config.KindString},
	}
}

// Configure opens the store.
func (k *KeyValueStore) Configure(env module.Env, cfg config.Config) error {
	if err := k.Base.Configure(env, cfg); err != nil {
		return err
	}
	kv, err := store.Open(cfg.String("backend", "memory"), cfg.String("path", ""))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	k.kv = &prefixedKV{KV: kv, prefix: cfg.String("key_prefix", "")}
	return nil
}

// Store returns the shared store.
func (k *KeyValueStore) Store() store.KV { return k.kv }

// ShutDown closes the store.
func (k *KeyValueStore) ShutDown(context.Context) error {
	if k.kv == nil {
		return nil
	}
	return k.kv.Close()
}

// prefixedKV namespaces every key under prefix.
type prefixedKV struct {
	store.KV
	prefix string
}

func (p *prefixedKV) Get(ctx context.Context, key string) ([]byte, error) {
	return p.KV.Get(ctx, p.prefix+key)
}

func (p *prefixedKV) Set(ctx context.Context, key string, value []byte) error {
	return p.KV.Set(ctx, p.prefix+key, value)
}

func (p *prefixedKV) Delete(ctx context.Context, key string) error {
	return p.KV.Delete(ctx, p.prefix+key)
}

func (p *prefixedKV) Keys(ctx context.Context, prefix string) ([]string, error) {
	keys, err := p.KV.Keys(ctx, p.prefix+prefix)
	if err != nil {
		return nil, err
	}
	for i, k := range keys {
		keys[i] = strings.TrimPrefix(k, p.prefix)
	}
	return keys, nil
}
