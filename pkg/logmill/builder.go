package logmill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/randalmurphal/logmill/pkg/logmill/ack"
	"github.com/randalmurphal/logmill/pkg/logmill/buffer"
	"github.com/randalmurphal/logmill/pkg/logmill/channel"
	"github.com/randalmurphal/logmill/pkg/logmill/config"
	"github.com/randalmurphal/logmill/pkg/logmill/module"
	"github.com/randalmurphal/logmill/pkg/logmill/observability"
	"github.com/randalmurphal/logmill/pkg/logmill/process"
	"github.com/randalmurphal/logmill/pkg/logmill/registry"
	"github.com/randalmurphal/logmill/pkg/logmill/store"
)

// Build turns a parsed document into a wired, configured pipeline.
// Nothing runs until Pipeline.Run.
//
// Build steps (in order):
//  1. Resolve every declared type in catalog
//  2. Assign unit ids
//  3. Resolve receivers, filling in defaults
//  4. Validate fields, filters and receivers
//  5. Reject receiver cycles
//  6. Instantiate every instance on every worker, then configure them
//  7. Place channels and wire nodes
//
// Structural problems from steps 1 to 4 are collected and returned joined.
// A failed build releases everything it configured.
//
// Example:
//
//	doc, err := config.LoadDocument("pipeline.yaml")
//	if err != nil {
//	    return err
//	}
//	p, err := logmill.Build(doc, modules.Builtin())
//	if err != nil {
//	    return err
//	}
//	return p.Run(ctx)
func Build(doc *config.Document, catalog *registry.Registry[string, module.Factory], opts ...Option) (*Pipeline, error) {
	if doc == nil {
		return nil, ErrNilDocument
	}
	cfg := buildConfig{logger: slog.Default(), name: doc.Path}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.name == "" {
		cfg.name = "logmill"
	}

	global := doc.Global
	if err := global.Validate(); err != nil {
		return nil, err
	}

	b := &builder{
		doc:     doc,
		catalog: catalog,
		global:  global,
		logger:  cfg.logger,
		byID:    make(map[string]*Unit),
	}
	if err := b.declare(); err != nil {
		return nil, err
	}
	if err := b.link(); err != nil {
		return nil, err
	}
	if err := detectCycles(b.units); err != nil {
		return nil, err
	}

	b.proc = process.New(
		process.WithLogger(cfg.logger),
		process.WithMetrics(metricsFor(cfg, global)),
		process.WithSpans(spansFor(cfg, global)),
		process.WithWorkers(global.Workers),
	)

	acks, err := trackerFor(cfg, global, cfg.logger)
	if err != nil {
		b.proc.Close()
		return nil, fmt.Errorf("event buffer: %w", err)
	}
	b.acks = acks

	b.instantiate()
	if err := b.configure(); err != nil {
		b.release()
		return nil, err
	}
	b.place()

	return newPipeline(cfg.name, b), nil
}

func metricsFor(cfg buildConfig, g config.Global) observability.MetricsRecorder {
	switch {
	case cfg.metrics != nil:
		return cfg.metrics
	case g.Metrics:
		return observability.NewMetricsRecorder()
	default:
		return observability.NoopMetrics{}
	}
}

func spansFor(cfg buildConfig, g config.Global) observability.SpanManager {
	switch {
	case cfg.spans != nil:
		return cfg.spans
	case g.Tracing:
		return observability.NewSpanManager()
	default:
		return observability.NoopSpanManager{}
	}
}

func trackerFor(cfg buildConfig, g config.Global, logger *slog.Logger) (*ack.Tracker, error) {
	kv := cfg.ackStore
	if kv == nil {
		if g.EventBuffer.Backend == "" {
			return nil, nil
		}
		var err error
		kv, err = store.Open(g.EventBuffer.Backend, g.EventBuffer.Path)
		if err != nil {
			return nil, err
		}
	}
	return ack.New(kv, g.EventBuffer.KeyPrefix, logger), nil
}

type builder struct {
	doc     *config.Document
	catalog *registry.Registry[string, module.Factory]
	global  config.Global
	logger  *slog.Logger
	proc    *process.Context
	acks    *ack.Tracker

	units    []*Unit
	byID     map[string]*Unit
	channels []*channel.Channel
	drivers  []*driver
}

// declare resolves types and assigns ids.
func (b *builder) declare() error {
	var errs []error

	// Explicit ids are claimed first so generated ones never collide.
	taken := map[string]bool{config.GlobalKey: true}
	for _, decl := range b.doc.Declarations {
		id := decl.Fields.String("id", "")
		if id == "" {
			continue
		}
		if taken[id] {
			errs = append(errs, &ConfigError{Unit: id, Field: "id", Err: ErrDuplicateID})
			continue
		}
		taken[id] = true
	}

	counts := make(map[string]int)
	for _, decl := range b.doc.Declarations {
		factory, ok := b.catalog.Get(decl.Type)
		if !ok {
			errs = append(errs, &ConfigError{Unit: decl.Type, Err: fmt.Errorf("%w %q (line %d)", ErrUnknownModule, decl.Type, decl.Line)})
			continue
		}

		id := decl.Fields.String("id", "")
		if id == "" {
			id = decl.Type
			for taken[id] {
				counts[decl.Type]++
				id = fmt.Sprintf("%s_%d", decl.Type, counts[decl.Type])
			}
			taken[id] = true
		}
		if _, dup := b.byID[id]; dup {
			continue
		}

		proto := factory()
		u := &Unit{
			ID:       id,
			TypeName: decl.Type,
			Index:    decl.Index,
			Line:     decl.Line,
			Kind:     proto.Type(),
			Forked:   proto.CanRunForked(),
			Config:   decl.Fields,
			PoolSize: max(1, decl.Fields.Int("pool_size", 1)),
			factory:  factory,
			proto:    proto,
		}
		b.units = append(b.units, u)
		b.byID[id] = u
	}
	return errors.Join(errs...)
}

// link validates fields and resolves receivers.
func (b *builder) link() error {
	var errs []error
	for i, u := range b.units {
		if err := validateFields(u); err != nil {
			errs = append(errs, &ConfigError{Unit: u.ID, Err: err})
		}

		if src := u.Config.String("filter", ""); src != "" {
			f, err := compileFilter(src)
			if err != nil {
				errs = append(errs, &ConfigError{Unit: u.ID, Field: "filter", Err: err})
			}
			u.filter = f
		}
		actions, err := module.CompileActions(u.Config)
		if err != nil {
			cerr := &ConfigError{Unit: u.ID, Err: err}
			var aerr *module.ActionError
			if errors.As(err, &aerr) {
				cerr.Field, cerr.Err = aerr.Field, aerr.Err
			}
			errs = append(errs, cerr)
		}
		u.actions = actions

		specs, err := b.receivers(u, i)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		u.Receivers = specs
	}
	return errors.Join(errs...)
}

func validateFields(u *Unit) error {
	sp, ok := u.proto.(module.SchemaProvider)
	if !ok {
		return module.CommonSchema.Validate(u.Config, u.Config.Keys()...)
	}
	merged := mergeSchemas(sp.Schema(), module.CommonSchema)
	return merged.Validate(u.Config)
}

func mergeSchemas(a, b config.Schema) config.Schema {
	out := make(config.Schema, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

func (b *builder) receivers(u *Unit, pos int) ([]ReceiverSpec, error) {
	raw, declared := u.Config.Raw()["receivers"]

	if u.Kind == module.TypeOutput {
		if declared && raw != nil {
			b.logger.Warn("ignoring receivers of output unit", slog.String("unit_id", u.ID))
		}
		return nil, nil
	}

	if !declared || raw == nil {
		if u.Kind == module.TypeStandAlone {
			return nil, nil
		}
		// Default to the next declared unit.
		if pos+1 >= len(b.units) {
			return nil, nil
		}
		next := b.units[pos+1]
		if !receives(next.Kind) {
			return nil, &ConfigError{Unit: u.ID, Field: "receivers", Err: fmt.Errorf("%w %q: default receiver is a %s unit", ErrInvalidReceiver, next.ID, next.Kind)}
		}
		return []ReceiverSpec{{ID: next.ID}}, nil
	}

	entries, ok := raw.([]any)
	if !ok {
		entries = []any{raw}
	}

	var (
		specs []ReceiverSpec
		errs  []error
	)
	for _, entry := range entries {
		spec, err := parseReceiver(entry)
		if err != nil {
			errs = append(errs, &ConfigError{Unit: u.ID, Field: "receivers", Err: err})
			continue
		}
		target, ok := b.byID[spec.ID]
		switch {
		case !ok:
			errs = append(errs, &ConfigError{Unit: u.ID, Field: "receivers", Err: fmt.Errorf("%w %q", ErrUnknownReceiver, spec.ID)})
		case !receives(target.Kind):
			errs = append(errs, &ConfigError{Unit: u.ID, Field: "receivers", Err: fmt.Errorf("%w %q: %s units cannot receive events", ErrInvalidReceiver, spec.ID, target.Kind)})
		default:
			specs = append(specs, spec)
		}
	}
	return specs, errors.Join(errs...)
}

// parseReceiver accepts "Name" or {Name: {filter: cond}}.
func parseReceiver(entry any) (ReceiverSpec, error) {
	switch v := entry.(type) {
	case string:
		return ReceiverSpec{ID: v}, nil
	case map[string]any:
		if len(v) != 1 {
			return ReceiverSpec{}, fmt.Errorf("receiver entry must have exactly one key, got %d", len(v))
		}
		for id, body := range v {
			spec := ReceiverSpec{ID: id}
			if body == nil {
				return spec, nil
			}
			opts, ok := body.(map[string]any)
			if !ok {
				return spec, fmt.Errorf("receiver %s: expected map, got %T", id, body)
			}
			if src, _ := opts["filter"].(string); src != "" {
				f, err := compileFilter(src)
				if err != nil {
					return spec, fmt.Errorf("receiver %s: %w", id, err)
				}
				spec.Filter = f
			}
			return spec, nil
		}
	}
	return ReceiverSpec{}, fmt.Errorf("receiver entry must be a name or map, got %T", entry)
}

// detectCycles runs a three-color DFS over the receiver edges.
func detectCycles(units []*Unit) error {
	const (
		white = iota
		grey
		black
	)
	byID := make(map[string]*Unit, len(units))
	for _, u := range units {
		byID[u.ID] = u
	}
	color := make(map[string]int, len(units))

	var stack []string
	var visit func(u *Unit) error
	visit = func(u *Unit) error {
		color[u.ID] = grey
		stack = append(stack, u.ID)
		for _, r := range u.Receivers {
			switch color[r.ID] {
			case grey:
				start := slices.Index(stack, r.ID)
				path := append(slices.Clone(stack[start:]), r.ID)
				return &CycleError{Path: path}
			case white:
				if next, ok := byID[r.ID]; ok {
					if err := visit(next); err != nil {
						return err
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[u.ID] = black
		return nil
	}

	for _, u := range units {
		if color[u.ID] == white {
			if err := visit(u); err != nil {
				return err
			}
		}
	}
	return nil
}

// instantiate creates every instance before any is configured. Worker 0
// runs every unit; further workers only run forked units.
func (b *builder) instantiate() {
	workers := b.proc.Workers
	for w := range workers {
		for _, u := range b.units {
			if w > 0 && !u.Forked {
				continue
			}
			for i := range u.PoolSize {
				mod := u.proto
				if w > 0 || i > 0 {
					mod = u.factory()
				}
				u.Instances = append(u.Instances, &Instance{
					Worker: w,
					Index:  i,
					Module: mod,
					Env: module.Env{
						Proc:     b.proc,
						Logger:   b.unitLogger(u, w),
						UnitID:   u.ID,
						Worker:   w,
						Workers:  workers,
						Instance: i,
						Lookup:   b.lookup(w),
					},
				})
			}
		}
	}
}

func (b *builder) unitLogger(u *Unit, worker int) *slog.Logger {
	logger := observability.EnrichLogger(b.proc.Logger, u.ID, worker)
	if lvl := u.Config.String("log_level", ""); lvl != "" {
		if level, err := observability.ParseLevel(lvl); err == nil {
			logger = observability.WithLevel(logger, level)
		}
	}
	return logger
}

// lookup prefers an instance on the caller's worker and falls back to
// worker 0, where every unit runs.
func (b *builder) lookup(worker int) func(string) (module.Module, bool) {
	return func(id string) (module.Module, bool) {
		u, ok := b.byID[id]
		if !ok {
			return nil, false
		}
		if in := u.instance(worker); in != nil {
			return in.Module, true
		}
		if in := u.instance(0); in != nil {
			return in.Module, true
		}
		return nil, false
	}
}

func (b *builder) configure() error {
	var errs []error
	for _, u := range b.units {
		fields := u.Config.Without(module.CommonFields...)
		for _, in := range u.Instances {
			if err := in.Module.Configure(in.Env, fields); err != nil {
				errs = append(errs, &ConfigError{Unit: u.ID, Err: err})
				break
			}
		}
	}
	return errors.Join(errs...)
}

// release undoes a build that failed after instantiation.
func (b *builder) release() {
	ctx := context.Background()
	for i := len(b.units) - 1; i >= 0; i-- {
		for _, in := range b.units[i].Instances {
			_ = in.Module.ShutDown(ctx)
		}
	}
	if b.acks != nil {
		_ = b.acks.Close()
	}
	b.proc.Close()
}

// place wraps instances in nodes, creates the channels and wires every
// edge.
func (b *builder) place() {
	var acks module.AckHooks
	if b.acks != nil {
		acks = b.acks
	}

	for _, u := range b.units {
		for _, in := range u.Instances {
			in.Node = module.NewNode(in.Module, module.NodeConfig{
				ID:      u.ID,
				Worker:  in.Worker,
				Filter:  u.filter,
				Actions: u.actions,
				Logger:  in.Env.Logger,
				Proc:    b.proc,
				Acks:    acks,
			})
		}
	}

	crossing := b.crossWorkerTargets()
	for _, u := range b.units {
		switch {
		case crossing[u.ID]:
			u.serial = b.serialChannel(u)
			for _, in := range u.Instances {
				b.drivers = append(b.drivers, &driver{src: u.serial, node: in.Node})
			}
		case u.PoolSize > 1 && receives(u.Kind):
			u.pooled = make(map[int]*channel.Channel)
			for _, in := range u.Instances {
				ch, ok := u.pooled[in.Worker]
				if !ok {
					ch = b.newChannel(u.ID, channel.NewMemoryQueue(b.global.QueueSize))
					u.pooled[in.Worker] = ch
				}
				b.drivers = append(b.drivers, &driver{src: ch, node: in.Node})
			}
		}
	}

	for _, u := range b.units {
		for _, in := range u.Instances {
			for _, spec := range u.Receivers {
				target := b.byID[spec.ID].inbox(in.Worker)
				if target == nil {
					continue
				}
				in.Node.AddReceiver(target, spec.Filter)
			}
		}
	}
}

// crossWorkerTargets returns the units fed over an edge whose ends run on
// different sets of workers.
func (b *builder) crossWorkerTargets() map[string]bool {
	out := make(map[string]bool)
	if b.proc.Workers < 2 {
		return out
	}
	for _, u := range b.units {
		for _, spec := range u.Receivers {
			if b.byID[spec.ID].Forked != u.Forked {
				out[spec.ID] = true
			}
		}
	}
	return out
}

func (b *builder) serialChannel(u *Unit) *channel.Channel {
	q, err := channel.NewPipeQueue(
		channel.WithCompression(b.global.QueueCompression == "s2"),
		channel.WithSerialLogger(b.logger),
	)
	if err != nil {
		b.logger.Error("creating pipe queue failed, using memory queue",
			slog.String("unit_id", u.ID),
			slog.String("error", err.Error()),
		)
		return b.newChannel(u.ID, channel.NewMemoryQueue(b.global.QueueSize))
	}
	return b.newChannel(u.ID, q)
}

func (b *builder) newChannel(id string, q channel.Queue) *channel.Channel {
	metrics := b.proc.Metrics
	ch := channel.New(id, q, b.logger,
		buffer.WithFlushSize(b.global.QueueBufferSize),
		buffer.WithMaxSize(b.global.QueueBufferSize),
		buffer.WithInterval(b.global.QueueFlushInterval),
		buffer.WithTimers(b.proc.Timers),
		buffer.WithFlushObserver(func(size int, _ time.Duration, err error) {
			if err == nil {
				metrics.RecordFlush(context.Background(), id, size)
			}
		}),
	)
	b.channels = append(b.channels, ch)
	return ch
}
