// Package registry provides a generic thread-safe registry for values
// indexed by an ordered key.
//
// logmill uses it for the unit type catalog, where duplicate
// registrations are programming errors:
//
//	catalog := registry.New[string, module.Factory]()
//	if err := catalog.Register("Noop", NewNoop); err != nil {
//	    return err
//	}
//
// and for lazily created per-unit counters:
//
//	c := counters.GetOrCreate("StdOut", func() *atomic.Int64 {
//	    return new(atomic.Int64)
//	})
//	c.Add(1)
//
// Keys and Range always visit entries in ascending key order.
package registry
