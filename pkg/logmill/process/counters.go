package process

import (
	"sync/atomic"

	"github.com/randalmurphal/logmill/pkg/logmill/registry"
)

// Counters holds per-unit event counts shared by all workers.
type Counters struct {
	reg *registry.Registry[string, *atomic.Int64]
}

// NewCounters creates an empty counter set.
func NewCounters() *Counters {
	return &Counters{reg: registry.New[string, *atomic.Int64]()}
}

func (c *Counters) counter(name string) *atomic.Int64 {
	return c.reg.GetOrCreate(name, func() *atomic.Int64 { return new(atomic.Int64) })
}

// Add increments the named counter by n.
func (c *Counters) Add(name string, n int64) {
	c.counter(name).Add(n)
}

// Get returns the current value of the named counter.
func (c *Counters) Get(name string) int64 {
	v, ok := c.reg.Get(name)
	if !ok {
		return 0
	}
	return v.Load()
}

// Swap resets the named counter and returns its previous value.
func (c *Counters) Swap(name string) int64 {
	return c.counter(name).Swap(0)
}

// Snapshot returns all counters by name.
func (c *Counters) Snapshot() map[string]int64 {
	out := make(map[string]int64, c.reg.Len())
	c.reg.Range(func(name string, v *atomic.Int64) bool {
		out[name] = v.Load()
		return true
	})
	return out
}

// Names returns the counter names in sorted order.
func (c *Counters) Names() []string {
	return c.reg.Keys()
}
