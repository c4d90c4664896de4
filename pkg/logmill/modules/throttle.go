package modules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/randalmurphal/logmill/pkg/logmill/config"
	lmerrors "github.com/randalmurphal/logmill/pkg/logmill/errors"
	"github.com/randalmurphal/logmill/pkg/logmill/event"
	"github.com/randalmurphal/logmill/pkg/logmill/module"
	"github.com/randalmurphal/logmill/pkg/logmill/store"
	"github.com/randalmurphal/logmill/pkg/logmill/template"
	"github.com/randalmurphal/logmill/pkg/logmill/timer"
)

const throttleGCInterval = 15 * time.Second

// throttleEntry tracks one key within its timeframe.
type throttleEntry struct {
	Count int   `msgpack:"count"`
	Start int64 `msgpack:"ctime"`
}

// Throttle passes an event only while the number of events sharing its key
// within timeframe lies between min_count and max_count.
//
//	- Throttle:
//	    key: $(client_ip)$(user_agent)
//	    timeframe: 10m
//	    min_count: 1
//	    max_count: 1
//	    backend: shared_store   # optional KeyValueStore id
type Throttle struct {
	module.Base

	key       *template.Template
	timeframe time.Duration
	minCount  int
	maxCount  int
	backendID string
	prefix    string

	mu      sync.Mutex
	kv      store.KV
	entries map[string]throttleEntry
	gc      *timer.Handle
	now     func() time.Time
}

// Type implements module.Module.
func (*Throttle) Type() module.Type { return module.TypeModifier }

// Schema implements module.SchemaProvider.
func (*Throttle) Schema() config.Schema {
	return config.Schema{
		"key":                {Kind: config.KindString, Required: true},
		"timeframe":          {Kind: config.KindDuration},
		"min_count":          {Kind: config.KindInt},
		"max_count":          {Kind: config.KindInt},
		"backend":            {Kind: config.KindString},
		"backend_key_prefix": {Kind: config.KindString},
	}
}

// Configure implements module.Module.
func (t *Throttle) Configure(env module.Env, cfg config.Config) error {
	if err := t.Base.Configure(env, cfg); err != nil {
		return err
	}
	key := cfg.String("key", "")
	if key == "" {
		return errors.New("key: is required")
	}
	tmpl, err := template.Parse(key)
	if err != nil {
		return fmt.Errorf("key: %w", err)
	}
	t.key = tmpl
	t.timeframe = cfg.Duration("timeframe", 600*time.Second)
	if t.timeframe <= 0 {
		return fmt.Errorf("timeframe: must be positive, got %s", t.timeframe)
	}
	t.minCount = cfg.Int("min_count", 1)
	t.maxCount = cfg.Int("max_count", 1)
	if t.maxCount < t.minCount {
		return fmt.Errorf("max_count: must be >= min_count (%d), got %d", t.minCount, t.maxCount)
	}
	t.backendID = cfg.String("backend", "")
	t.prefix = cfg.String("backend_key_prefix", "logmill:throttle") + ":"
	t.entries = make(map[string]throttleEntry)
	if t.now == nil {
		t.now = time.Now
	}
	return nil
}

// InitAfterFork resolves the backend unit and starts expiring old keys.
func (t *Throttle) InitAfterFork(_ context.Context, env module.Env) error {
	if t.backendID != "" {
		if env.Lookup == nil {
			return fmt.Errorf("backend %q: unit lookup unavailable", t.backendID)
		}
		mod, ok := env.Lookup(t.backendID)
		if !ok {
			return fmt.Errorf("backend %q: no such unit", t.backendID)
		}
		provider, ok := mod.(StoreProvider)
		if !ok {
			return fmt.Errorf("backend %q: %T does not provide a store", t.backendID, mod)
		}
		t.kv = provider.Store()
	}

	if env.Proc != nil {
		t.gc = env.Proc.Timers.Every(env.UnitID+".gc", min(t.timeframe, throttleGCInterval), func() {
			t.expire(context.Background())
		})
	}
	return nil
}

// HandleEvent implements module.Module.
func (t *Throttle) HandleEvent(ctx context.Context, evt *event.Event) ([]*event.Event, error) {
	key, err := t.key.String(evt)
	if err != nil {
		return nil, lmerrors.Permanent(err, "render throttle key")
	}

	count, err := t.hit(ctx, key)
	if err != nil {
		return nil, err
	}
	if count < t.minCount || count > t.maxCount {
		return nil, nil
	}
	return []*event.Event{evt}, nil
}

// hit counts one more event for key and returns the new count.
func (t *Throttle) hit(ctx context.Context, key string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	entry, err := t.load(ctx, key)
	if err != nil {
		return 0, err
	}
	if entry.Start == 0 || now.Sub(time.Unix(0, entry.Start)) > t.timeframe {
		entry = throttleEntry{Start: now.UnixNano()}
	}
	entry.Count++
	if err := t.save(ctx, key, entry); err != nil {
		return 0, err
	}
	return entry.Count, nil
}

func (t *Throttle) load(ctx context.Context, key string) (throttleEntry, error) {
	if t.kv == nil {
		return t.entries[key], nil
	}
	data, err := t.kv.Get(ctx, t.prefix+key)
	if errors.Is(err, store.ErrNotFound) {
		return throttleEntry{}, nil
	}
	if err != nil {
		return throttleEntry{}, fmt.Errorf("load throttle key: %w", err)
	}
	var entry throttleEntry
	if err := msgpack.Unmarshal(data, &entry); err != nil {
		t.Logger.Warn("discarding unreadable throttle entry",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return throttleEntry{}, nil
	}
	return entry, nil
}

func (t *Throttle) save(ctx context.Context, key string, entry throttleEntry) error {
	if t.kv == nil {
		t.entries[key] = entry
		return nil
	}
	data, err := msgpack.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode throttle key: %w", err)
	}
	if err := t.kv.Set(ctx, t.prefix+key, data); err != nil {
		return fmt.Errorf("store throttle key: %w", err)
	}
	return nil
}

// expire removes keys whose timeframe has passed.
func (t *Throttle) expire(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-t.timeframe).UnixNano()
	if t.kv == nil {
		for k, e := range t.entries {
			if e.Start < cutoff {
				delete(t.entries, k)
			}
		}
		return
	}

	keys, err := t.kv.Keys(ctx, t.prefix)
	if err != nil {
		t.Logger.Warn("list throttle keys", slog.String("error", err.Error()))
		return
	}
	for _, k := range keys {
		data, err := t.kv.Get(ctx, k)
		if err != nil {
			continue
		}
		var e throttleEntry
		if msgpack.Unmarshal(data, &e) != nil || e.Start < cutoff {
			_ = t.kv.Delete(ctx, k)
		}
	}
}

// ShutDown stops the expiry timer.
func (t *Throttle) ShutDown(context.Context) error {
	if t.gc != nil {
		t.gc.Stop()
	}
	return nil
}
