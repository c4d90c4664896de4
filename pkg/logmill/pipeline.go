package logmill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/randalmurphal/logmill/pkg/logmill/ack"
	"github.com/randalmurphal/logmill/pkg/logmill/channel"
	"github.com/randalmurphal/logmill/pkg/logmill/config"
	"github.com/randalmurphal/logmill/pkg/logmill/event"
	"github.com/randalmurphal/logmill/pkg/logmill/module"
	"github.com/randalmurphal/logmill/pkg/logmill/observability"
	"github.com/randalmurphal/logmill/pkg/logmill/process"
)

// Pipeline is a built graph of units. Create one with Build, start it with
// Run and stop it with Shutdown or by cancelling Run's context.
type Pipeline struct {
	name     string
	global   config.Global
	proc     *process.Context
	acks     *ack.Tracker
	logger   *slog.Logger
	units    []*Unit
	byID     map[string]*Unit
	channels []*channel.Channel
	drivers  []*driver

	mu           sync.Mutex
	startMu      sync.Mutex
	state        State
	cancelInputs context.CancelFunc
	cancelRest   context.CancelFunc

	inputs     sync.WaitGroup
	rest       sync.WaitGroup
	inputsDone chan struct{}

	stopping     chan struct{}
	shutdownOnce sync.Once
	shutdownErr  error
}

func newPipeline(name string, b *builder) *Pipeline {
	return &Pipeline{
		name:     name,
		global:   b.global,
		proc:     b.proc,
		acks:     b.acks,
		logger:   b.logger,
		units:    b.units,
		byID:     b.byID,
		channels: b.channels,
		drivers:  b.drivers,
		state:    StateConfiguring,
		stopping: make(chan struct{}),
	}
}

// driver feeds one instance from its channel and remembers the size of
// the batch it is working on.
type driver struct {
	src      *channel.Channel
	node     *module.Node
	inflight atomic.Int64
}

// Get implements module.Source.
func (d *driver) Get(ctx context.Context) ([]*event.Event, error) {
	d.inflight.Store(0)
	batch, err := d.src.Get(ctx)
	d.inflight.Store(int64(len(batch)))
	return batch, err
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Pipeline) setState(to State) {
	p.mu.Lock()
	from := p.state
	p.state = to
	p.mu.Unlock()
	if from != to {
		observability.LogStateChange(p.logger, string(from), string(to))
	}
}

// Process returns the process-wide context shared by all units.
func (p *Pipeline) Process() *process.Context { return p.proc }

// Units returns the units in declaration order.
func (p *Pipeline) Units() []*Unit { return p.units }

// Unit returns the unit with the given id.
func (p *Pipeline) Unit(id string) (*Unit, bool) {
	u, ok := p.byID[id]
	return u, ok
}

// Instances returns every instance of a unit, ordered by worker.
func (p *Pipeline) Instances(id string) []module.Module {
	u, ok := p.byID[id]
	if !ok {
		return nil
	}
	out := make([]module.Module, len(u.Instances))
	for i, in := range u.Instances {
		out[i] = in.Module
	}
	return out
}

// Pending returns the number of events sitting in channels or held by a
// driven unit.
func (p *Pipeline) Pending() int {
	n := 0
	for _, ch := range p.channels {
		n += ch.Len()
	}
	for _, d := range p.drivers {
		n += int(d.inflight.Load())
	}
	return n
}

// Run starts every unit and blocks until the pipeline stops: when ctx is
// cancelled, when Process().RequestShutdown is called, when Shutdown is
// called, or when every input has finished. Run then shuts the pipeline
// down and returns the shutdown result.
//
// Startup order:
//  1. InitAfterFork on every instance
//  2. Channel flush intervals
//  3. Driven loops
//  4. Requeue of unacknowledged events
//  5. Starters, inputs included
func (p *Pipeline) Run(ctx context.Context) (runErr error) {
	p.mu.Lock()
	if p.state != StateConfiguring {
		p.mu.Unlock()
		return ErrAlreadyStarted
	}
	ctx, span := p.proc.Spans.StartPipelineSpan(ctx, p.name, p.proc.Workers)
	base := context.WithoutCancel(ctx)
	inputCtx, cancelInputs := context.WithCancel(base)
	restCtx, cancelRest := context.WithCancel(base)
	p.cancelInputs, p.cancelRest = cancelInputs, cancelRest
	p.mu.Unlock()

	defer func() {
		p.proc.Spans.EndSpanWithError(span, runErr)
	}()

	p.startMu.Lock()
	err := p.start(inputCtx, restCtx)
	p.startMu.Unlock()
	if err != nil {
		return errors.Join(err, p.Shutdown(base))
	}

	select {
	case <-ctx.Done():
		p.logger.Info("context done, stopping pipeline", slog.String("cause", context.Cause(ctx).Error()))
	case <-p.proc.ShutdownRequested():
	case <-p.inputsDone:
		p.logger.Info("all inputs finished")
	case <-p.stopping:
	}
	return p.Shutdown(base)
}

func (p *Pipeline) start(inputCtx, restCtx context.Context) error {
	select {
	case <-p.stopping:
		return nil
	default:
	}

	var errs []error
	for _, u := range p.units {
		for _, in := range u.Instances {
			fi, ok := in.Module.(module.ForkInitializer)
			if !ok {
				continue
			}
			if err := fi.InitAfterFork(restCtx, in.Env); err != nil {
				errs = append(errs, &ConfigError{Unit: u.ID, Err: fmt.Errorf("init: %w", err)})
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	p.setState(StateRunning)

	for _, ch := range p.channels {
		ch.StartInterval()
	}
	for _, d := range p.drivers {
		p.rest.Add(1)
		go func() {
			defer p.rest.Done()
			defer d.inflight.Store(0)
			if err := module.Drive(restCtx, d, d.node); err != nil {
				p.logger.Error("driven loop stopped",
					slog.String("unit_id", d.node.ID()),
					slog.Int("worker", d.node.Worker()),
					slog.String("error", err.Error()),
				)
			}
		}()
	}

	if p.acks != nil {
		n, err := p.acks.Requeue(restCtx, p.requeue)
		if err != nil {
			p.logger.Warn("requeue incomplete", slog.String("error", err.Error()))
		}
		if n > 0 {
			p.logger.Info("requeued unacknowledged events", slog.Int("events", n))
		}
	}

	inputs := 0
	for _, u := range p.units {
		for _, in := range u.Instances {
			s, ok := in.Module.(module.Starter)
			if !ok {
				continue
			}
			if u.Kind == module.TypeInput {
				inputs++
				p.runStarter(inputCtx, &p.inputs, u, in, s)
			} else {
				p.runStarter(restCtx, &p.rest, u, in, s)
			}
		}
	}
	if inputs > 0 {
		p.inputsDone = make(chan struct{})
		go func() {
			p.inputs.Wait()
			close(p.inputsDone)
		}()
	}
	return nil
}

func (p *Pipeline) runStarter(ctx context.Context, wg *sync.WaitGroup, u *Unit, in *Instance, s module.Starter) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		ctx, span := p.proc.Spans.StartUnitSpan(ctx, u.ID, in.Worker)
		observability.LogUnitStart(in.Env.Logger, u.ID, in.Worker)

		err := func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = &module.PanicError{UnitID: u.ID, Value: r, Stack: string(debug.Stack())}
				}
			}()
			return s.Start(ctx, p.emitter(u, in.Node))
		}()
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			err = nil
		}

		observability.LogUnitStop(in.Env.Logger, u.ID, in.Worker, err)
		p.proc.Spans.EndSpanWithError(span, err)
	}()
}

// emitter hands events from a starter to its node. With an ack tracker
// every emitted event becomes a tracked root.
func (p *Pipeline) emitter(u *Unit, n *module.Node) module.Emitter {
	return func(ctx context.Context, evt *event.Event) error {
		p.proc.Counters.Add(u.ID, 1)
		if p.acks != nil {
			if err := p.acks.Track(ctx, evt); err != nil {
				p.logger.Warn("event not persisted",
					slog.String("unit_id", u.ID),
					slog.String("event_id", evt.ID()),
					slog.String("error", err.Error()),
				)
			}
		}
		return n.Emit(ctx, evt)
	}
}

// requeue replays a persisted event through the unit that created it.
func (p *Pipeline) requeue(ctx context.Context, evt *event.Event) error {
	u, ok := p.byID[evt.Source()]
	if !ok {
		return fmt.Errorf("source unit %q not in pipeline", evt.Source())
	}
	in := u.instance(0)
	if in == nil {
		return fmt.Errorf("source unit %q has no instance", u.ID)
	}
	return p.emitter(u, in.Node)(ctx, evt)
}

// Shutdown stops the pipeline:
//  1. Inputs are cancelled and shut down
//  2. Channels are flushed and drained for up to drain.rounds rounds
//  3. Remaining units are cancelled, channels closed, and units shut down
//     in reverse declaration order
//  4. Timers are stopped and the ack tracker is closed
//
// Shutdown is safe to call more than once and concurrently with Run; every
// call returns the result of the first.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.shutdownOnce.Do(func() {
		close(p.stopping)
		p.shutdownErr = p.shutdown(ctx)
	})
	return p.shutdownErr
}

func (p *Pipeline) shutdown(ctx context.Context) error {
	p.startMu.Lock()
	defer p.startMu.Unlock()
	p.setState(StateDraining)

	p.mu.Lock()
	cancelInputs, cancelRest := p.cancelInputs, p.cancelRest
	p.mu.Unlock()

	var errs []error
	if cancelInputs != nil {
		cancelInputs()
	}
	p.inputs.Wait()
	for _, u := range p.units {
		if u.Kind == module.TypeInput {
			errs = append(errs, p.shutDownUnit(ctx, u)...)
		}
	}

	p.drain(ctx)

	if cancelRest != nil {
		cancelRest()
	}
	for _, ch := range p.channels {
		if err := ch.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close channel %s: %w", ch.ID(), err))
		}
	}
	p.rest.Wait()

	for i := len(p.units) - 1; i >= 0; i-- {
		if u := p.units[i]; u.Kind != module.TypeInput {
			errs = append(errs, p.shutDownUnit(ctx, u)...)
		}
	}

	p.proc.Close()
	if p.acks != nil {
		if pending := p.acks.Pending(); pending > 0 {
			p.logger.Warn("unacknowledged events kept for next start", slog.Int("events", pending))
		}
		if err := p.acks.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close event buffer: %w", err))
		}
	}

	p.setState(StateStopped)
	return errors.Join(errs...)
}

func (p *Pipeline) shutDownUnit(ctx context.Context, u *Unit) []error {
	var errs []error
	for _, in := range u.Instances {
		if err := in.Module.ShutDown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shut down %s (worker %d): %w", u.ID, in.Worker, err))
		}
	}
	return errs
}

// drain flushes channels until they are empty or the configured rounds
// are used up. Round n waits drain.step*n. It returns what is left.
func (p *Pipeline) drain(ctx context.Context) int {
	step := p.global.Drain.Step
rounds:
	for round := 1; round <= p.global.Drain.Rounds; round++ {
		p.flush(ctx)
		pending := p.Pending()
		if pending == 0 {
			return 0
		}
		observability.LogDrain(p.logger, round, pending)

		timer := time.NewTimer(step * time.Duration(round))
		select {
		case <-ctx.Done():
			timer.Stop()
			break rounds
		case <-timer.C:
		}
	}

	p.flush(ctx)
	pending := p.Pending()
	if pending > 0 {
		observability.LogDrainResidual(p.logger, pending)
		p.proc.Metrics.RecordDrainResidual(ctx, pending)
	}
	return pending
}

func (p *Pipeline) flush(ctx context.Context) {
	for _, ch := range p.channels {
		if err := ch.Flush(ctx); err != nil {
			p.logger.Debug("flush failed",
				slog.String("channel", ch.ID()),
				slog.String("error", err.Error()),
			)
		}
	}
}
