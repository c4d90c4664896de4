package module

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	lmerrors "github.com/randalmurphal/logmill/pkg/logmill/errors"
	"github.com/randalmurphal/logmill/pkg/logmill/event"
	"github.com/randalmurphal/logmill/pkg/logmill/expr"
	"github.com/randalmurphal/logmill/pkg/logmill/observability"
	"github.com/randalmurphal/logmill/pkg/logmill/process"
)

// AckHooks is notified when events are derived from or retire another
// event. A Node calls Branch for every new event it emits and Commit for
// every event that leaves the pipeline.
type AckHooks interface {
	Branch(ctx context.Context, parent, child *event.Event)
	Commit(ctx context.Context, evt *event.Event)
}

type noAcks struct{}

func (noAcks) Branch(context.Context, *event.Event, *event.Event) {}
func (noAcks) Commit(context.Context, *event.Event)                {}

// PanicError wraps a panic recovered from a unit's HandleEvent.
type PanicError struct {
	UnitID string
	Value  any
	Stack  string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("unit %s panicked: %v", e.UnitID, e.Value)
}

// NodeConfig configures a Node.
type NodeConfig struct {
	// ID is the unit id.
	ID string

	// Worker is the worker the instance belongs to.
	Worker int

	// Filter is the optional input filter.
	Filter *expr.Filter

	// Actions are the optional common actions.
	Actions *Actions

	// Logger is the unit logger. Nil uses Proc.Logger.
	Logger *slog.Logger

	// Proc supplies counters and metrics. Required.
	Proc *process.Context

	// Acks is notified of derived and retired events. Nil disables it.
	Acks AckHooks
}

type route struct {
	recv   Receiver
	filter *expr.Filter
}

// Node wraps a unit instance with routing: input filter, error
// isolation, common actions, receiver filters, and fan-out.
//
// Every strategy is fixed at construction; nothing is swapped at runtime.
type Node struct {
	id      string
	worker  int
	mod     Module
	filter  *expr.Filter
	actions *Actions
	routes  []route
	logger  *slog.Logger
	proc    *process.Context
	acks    AckHooks
}

// NewNode wraps mod. Receivers are added with AddReceiver before the
// pipeline starts.
func NewNode(mod Module, cfg NodeConfig) *Node {
	logger := cfg.Logger
	if logger == nil {
		logger = cfg.Proc.Logger
	}
	acks := cfg.Acks
	if acks == nil {
		acks = noAcks{}
	}
	return &Node{
		id:      cfg.ID,
		worker:  cfg.Worker,
		mod:     mod,
		filter:  cfg.Filter,
		actions: cfg.Actions,
		logger:  logger,
		proc:    cfg.Proc,
		acks:    acks,
	}
}

// AddReceiver appends a next hop. A nil filter always matches.
func (n *Node) AddReceiver(r Receiver, filter *expr.Filter) {
	n.routes = append(n.routes, route{recv: r, filter: filter})
}

// ID returns the unit id.
func (n *Node) ID() string { return n.id }

// Worker returns the worker index.
func (n *Node) Worker() int { return n.worker }

// Module returns the wrapped unit.
func (n *Node) Module() Module { return n.mod }

// Receivers returns the next hops in declaration order.
func (n *Node) Receivers() []Receiver {
	out := make([]Receiver, len(n.routes))
	for i, r := range n.routes {
		out[i] = r.recv
	}
	return out
}

// Receive handles one event from upstream.
//
// If the input filter rejects evt it is forwarded untouched. Otherwise the
// unit's results get the common actions applied and are routed. A failing
// or panicking handler forwards evt untransformed.
func (n *Node) Receive(ctx context.Context, evt *event.Event) error {
	n.proc.Counters.Add(n.id, 1)

	if n.filter != nil && !n.match(ctx, n.filter, evt) {
		return n.dispatch(ctx, evt)
	}

	outs, err := n.handle(ctx, evt)
	if err != nil {
		n.proc.Counters.Add(n.id+".errors", 1)
		observability.LogEventError(n.logger, n.id, evt.ID(), err)
		return n.dispatch(ctx, evt)
	}

	kept := false
	for _, out := range outs {
		if out == evt {
			kept = true
		} else if out != nil {
			n.acks.Branch(ctx, evt, out)
		}
	}
	if !kept {
		n.acks.Commit(ctx, evt)
	}

	var errs []error
	for _, out := range outs {
		if out == nil {
			continue
		}
		if err := n.Emit(ctx, out); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Emit applies the common actions to evt and routes it. Starters use it
// through their Emitter.
func (n *Node) Emit(ctx context.Context, evt *event.Event) error {
	n.actions.Apply(evt, n.id, n.logger)
	return n.dispatch(ctx, evt)
}

func (n *Node) handle(ctx context.Context, evt *event.Event) (outs []*event.Event, err error) {
	done := observability.TimedOperation()
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{UnitID: n.id, Value: r, Stack: string(debug.Stack())}
			outs = nil
		}
		n.proc.Metrics.RecordEvent(ctx, n.id, done(), err)
	}()
	return n.mod.HandleEvent(ctx, evt)
}

func (n *Node) match(ctx context.Context, f *expr.Filter, evt *event.Event) bool {
	ok, err := f.Match(evt)
	if err != nil {
		observability.LogFilterError(n.logger, n.id, f.String(), err)
		n.proc.Metrics.RecordFilterError(ctx, n.id)
		return false
	}
	return ok
}

// dispatch sends evt to every matching receiver. All receivers but the
// first get a clone; clones are taken before anything is sent so that no
// receiver can observe another's mutations.
func (n *Node) dispatch(ctx context.Context, evt *event.Event) error {
	var matched []Receiver
	for _, r := range n.routes {
		if r.filter == nil || n.match(ctx, r.filter, evt) {
			matched = append(matched, r.recv)
		}
	}
	if len(matched) == 0 {
		n.acks.Commit(ctx, evt)
		return nil
	}

	events := make([]*event.Event, len(matched))
	events[0] = evt
	for i := 1; i < len(matched); i++ {
		events[i] = evt.Clone()
		n.acks.Branch(ctx, evt, events[i])
	}

	var errs []error
	for i, recv := range matched {
		n.proc.Metrics.RecordRouted(ctx, n.id, recv.ID())
		if err := recv.Receive(ctx, events[i]); err != nil {
			if lmerrors.IsShutdown(err) {
				n.logger.Debug("receiver closed",
					slog.String("unit_id", n.id),
					slog.String("receiver", recv.ID()),
				)
				continue
			}
			errs = append(errs, fmt.Errorf("send to %s: %w", recv.ID(), err))
		}
	}
	return errors.Join(errs...)
}
