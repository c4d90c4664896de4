package modules

import (
	"errors"

	"github.com/randalmurphal/logmill/pkg/logmill/module"
	"github.com/randalmurphal/logmill/pkg/logmill/registry"
)

// Catalog maps unit type names to factories.
type Catalog = registry.Registry[string, module.Factory]

// Register adds the built-in units to catalog.
func Register(catalog *Catalog) error {
	return errors.Join(
		catalog.Register("Spam", func() module.Module { return &Spam{} }),
		catalog.Register("Noop", func() module.Module { return &Noop{} }),
		catalog.Register("DropEvent", func() module.Module { return &DropEvent{} }),
		catalog.Register("Collector", func() module.Module { return &Collector{} }),
		catalog.Register("StdOut", func() module.Module { return &StdOut{} }),
		catalog.Register("ModifyFields", func() module.Module { return &ModifyFields{} }),
		catalog.Register("Throttle", func() module.Module { return &Throttle{} }),
		catalog.Register("KeyValueStore", func() module.Module { return &KeyValueStore{} }),
		catalog.Register("SimpleStats", func() module.Module { return &SimpleStats{} }),
	)
}

// Builtin returns a new catalog holding the built-in units.
func Builtin() *Catalog {
	c := registry.New[string, module.Factory]()
	if err := Register(c); err != nil {
		panic(err)
	}
	return c
}
