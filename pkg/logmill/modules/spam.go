package modules

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/randalmurphal/logmill/pkg/logmill/config"
	lmerrors "github.com/randalmurphal/logmill/pkg/logmill/errors"
	"github.com/randalmurphal/logmill/pkg/logmill/event"
	"github.com/randalmurphal/logmill/pkg/logmill/module"
)

// Spam emits configured events, optionally a fixed number of them.
// It is meant for load tests and for trying out pipelines.
//
//	- Spam:
//	    event: "ni"          # string, map, or list of either
//	    sleep: 100ms         # pause after each event
//	    events_count: 1000   # 0 means no limit
//	    rate: 500            # events per second, 0 means unlimited
type Spam struct {
	module.Base

	events  []any
	sleep   time.Duration
	total   int
	count   int
	limiter *rate.Limiter
}

// Type implements module.Module.
func (s *Spam) Type() module.Type { return module.TypeInput }

// Schema implements module.SchemaProvider.
func (s *Spam) Schema() config.Schema {
	return config.Schema{
		"event":        {Kind: config.KindAny},
		"sleep":        {Kind: config.KindDuration},
		"events_count": {Kind: config.KindInt},
		"rate":         {Kind: config.KindNumber},
	}
}

// Configure implements module.Module.
func (s *Spam) Configure(env module.Env, cfg config.Config) error {
	if err := s.Base.Configure(env, cfg); err != nil {
		return err
	}

	raw := cfg.Any("event", "")
	list, ok := raw.([]any)
	if !ok {
		list = []any{raw}
	}
	for i, item := range list {
		switch item.(type) {
		case string, map[string]any:
		default:
			return fmt.Errorf("event %d: expected string or map, got %T", i, item)
		}
	}
	if len(list) == 0 {
		return fmt.Errorf("event: at least one event is required")
	}
	s.events = list

	s.sleep = cfg.Duration("sleep", 0)
	s.total = cfg.Int("events_count", 0)
	if s.total < 0 {
		return fmt.Errorf("events_count: must be >= 0, got %d", s.total)
	}
	s.count = s.total

	if r := cfg.Float("rate", 0); r > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(r), max(1, int(r)))
	}
	return nil
}

// InitAfterFork splits events_count across workers. Worker 0 also takes
// the remainder.
func (s *Spam) InitAfterFork(_ context.Context, env module.Env) error {
	if s.total == 0 || env.Workers <= 1 {
		return nil
	}
	s.count = s.total / env.Workers
	if env.Worker == 0 {
		s.count += s.total % env.Workers
	}
	return nil
}

// Start emits events until the count is reached or ctx is cancelled.
func (s *Spam) Start(ctx context.Context, emit module.Emitter) error {
	if s.total > 0 && s.count == 0 {
		return nil
	}

	sent := 0
	for {
		for _, item := range s.events {
			if ctx.Err() != nil {
				return nil
			}
			if s.limiter != nil {
				if err := s.limiter.Wait(ctx); err != nil {
					return nil
				}
			}

			if err := emit(ctx, s.build(item)); err != nil {
				if lmerrors.IsShutdown(err) {
					return nil
				}
				s.Logger.Warn("emit failed", slog.String("error", err.Error()))
			}

			if s.sleep > 0 {
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(s.sleep):
				}
			}

			if s.total > 0 {
				sent++
				if sent >= s.count {
					return nil
				}
			}
		}
	}
}

func (s *Spam) build(item any) *event.Event {
	opts := []event.Option{
		event.WithSource(s.Env.UnitID),
		event.WithWorker(s.Env.Worker),
	}
	if m, ok := item.(map[string]any); ok {
		return event.New(m, opts...)
	}
	return event.FromData(item, opts...)
}
