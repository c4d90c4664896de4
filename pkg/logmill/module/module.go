package module

import (
	"context"
	"log/slog"

	"github.com/randalmurphal/logmill/pkg/logmill/config"
	"github.com/randalmurphal/logmill/pkg/logmill/event"
	"github.com/randalmurphal/logmill/pkg/logmill/process"
)

// Type classifies a unit by its position in a pipeline.
type Type string

// Unit types.
const (
	TypeInput      Type = "input"
	TypeParser     Type = "parser"
	TypeModifier   Type = "modifier"
	TypeOutput     Type = "output"
	TypeStandAlone Type = "stand_alone"
)

// Module is the contract every processing unit implements.
//
// Configure is called once per instance before anything runs.
// HandleEvent returns the events to forward: none to drop the input, the
// input itself to pass it on, or any number of new events.
type Module interface {
	Configure(env Env, cfg config.Config) error
	HandleEvent(ctx context.Context, evt *event.Event) ([]*event.Event, error)
	Type() Type
	CanRunForked() bool
	ShutDown(ctx context.Context) error
}

// Starter is implemented by units that run their own loop, such as inputs.
// Start blocks until the unit is done or ctx is cancelled. Events are
// handed to the pipeline through emit.
type Starter interface {
	Start(ctx context.Context, emit Emitter) error
}

// ForkInitializer is implemented by units that need per-worker setup.
// InitAfterFork runs once per instance after the graph is wired and before
// any Start.
type ForkInitializer interface {
	InitAfterFork(ctx context.Context, env Env) error
}

// SchemaProvider is implemented by units that declare their fields.
// Undeclared fields are rejected at configuration time.
type SchemaProvider interface {
	Schema() config.Schema
}

// Emitter forwards an event produced by a Starter.
type Emitter func(ctx context.Context, evt *event.Event) error

// Factory creates an unconfigured unit instance.
type Factory func() Module

// Receiver accepts events from an upstream unit. *Node delivers by
// direct call; a buffered channel delivers by queueing.
type Receiver interface {
	ID() string
	Receive(ctx context.Context, evt *event.Event) error
}

// Env is what a unit instance knows about its surroundings.
type Env struct {
	// Proc is the process-wide context.
	Proc *process.Context

	// Logger is scoped to the unit and honors its log_level.
	Logger *slog.Logger

	// UnitID is the unique id of the unit in the pipeline.
	UnitID string

	// Worker is the index of the worker running this instance.
	Worker int

	// Workers is the total worker count.
	Workers int

	// Instance is the index of this instance within its pool.
	Instance int

	// Lookup finds another unit's instance by id, preferring one on the
	// same worker.
	Lookup func(unitID string) (Module, bool)
}

// CommonFields are accepted by every unit and handled by the pipeline.
var CommonFields = []string{
	"id", "filter", "add_fields", "delete_fields", "event_type",
	"log_level", "receivers", "pool_size",
}

// CommonSchema describes CommonFields.
var CommonSchema = config.Schema{
	"id":            {Kind: config.KindString},
	"filter":        {Kind: config.KindString},
	"add_fields":    {Kind: config.KindMap},
	"delete_fields": {Kind: config.KindStringOrList},
	"event_type":    {Kind: config.KindString},
	"log_level":     {Kind: config.KindString, OneOf: []string{"debug", "info", "warn", "warning", "error", "critical"}},
	"receivers":     {Kind: config.KindList},
	"pool_size":     {Kind: config.KindInt},
}

// Base supplies defaults for optional Module methods. Embed it and call
// Base.Configure from the unit's own Configure.
type Base struct {
	Env    Env
	Logger *slog.Logger
}

// Configure records env.
func (b *Base) Configure(env Env, _ config.Config) error {
	b.Env = env
	b.Logger = env.Logger
	if b.Logger == nil {
		b.Logger = slog.Default()
	}
	return nil
}

// HandleEvent passes evt through unchanged.
func (b *Base) HandleEvent(_ context.Context, evt *event.Event) ([]*event.Event, error) {
	return []*event.Event{evt}, nil
}

// CanRunForked reports true.
func (b *Base) CanRunForked() bool { return true }

// ShutDown does nothing.
func (b *Base) ShutDown(context.Context) error { return nil }
