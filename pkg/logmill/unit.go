package logmill

import (
	"github.com/randalmurphal/logmill/pkg/logmill/channel"
	"github.com/randalmurphal/logmill/pkg/logmill/config"
	"github.com/randalmurphal/logmill/pkg/logmill/expr"
	"github.com/randalmurphal/logmill/pkg/logmill/module"
)

// State is a pipeline lifecycle state.
type State string

// Pipeline states, in the order a pipeline passes through them.
const (
	StateConfiguring State = "configuring"
	StateRunning     State = "running"
	StateDraining    State = "draining"
	StateStopped     State = "stopped"
)

// Unit is one declared processing unit and its instances.
type Unit struct {
	// ID is unique within the pipeline.
	ID string
	// TypeName is the declared type, the catalog key.
	TypeName string
	// Index is the declaration position.
	Index int
	// Line is the source line of the declaration, if known.
	Line int
	// Kind is the unit's position in a pipeline.
	Kind module.Type
	// Forked reports whether instances run on every worker.
	Forked bool
	// Config is the declared field dictionary.
	Config config.Config
	// PoolSize is the number of instances per worker.
	PoolSize int
	// Receivers are the next hops in declaration order.
	Receivers []ReceiverSpec
	// Instances are ordered by worker, then pool index.
	Instances []*Instance

	factory module.Factory
	proto   module.Module
	filter  *expr.Filter
	actions *module.Actions

	// serial is set when the unit is fed across workers.
	serial *channel.Channel
	// pooled holds one in-process channel per worker for pooled units.
	pooled map[int]*channel.Channel
}

// ReceiverSpec is one entry of a unit's receivers list.
type ReceiverSpec struct {
	ID     string
	Filter *expr.Filter
}

// Instance is one running copy of a unit.
type Instance struct {
	Worker int
	Index  int
	Module module.Module
	Node   *module.Node
	Env    module.Env
}

// receives reports whether units of this kind may appear in receivers.
func receives(kind module.Type) bool {
	return kind != module.TypeInput && kind != module.TypeStandAlone
}

// instance returns the unit's first instance on worker, if any.
func (u *Unit) instance(worker int) *Instance {
	for _, in := range u.Instances {
		if in.Worker == worker {
			return in
		}
	}
	return nil
}

// inbox returns what a sender on worker delivers to.
func (u *Unit) inbox(worker int) module.Receiver {
	if u.serial != nil {
		return u.serial
	}
	if ch, ok := u.pooled[worker]; ok {
		return ch
	}
	if in := u.instance(worker); in != nil {
		return in.Node
	}
	return nil
}
