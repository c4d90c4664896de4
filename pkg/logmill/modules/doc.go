// Package modules holds the built-in processing units.
//
// Inputs:
//   - Spam: emits configured events, for load tests and demos
//
// Modifiers:
//   - Noop: forwards events unchanged
//   - DropEvent: discards events
//   - ModifyFields: inserts, deletes, renames, and converts fields
//   - Throttle: passes events only while their key's count is in range
//
// Outputs:
//   - StdOut: prints events as JSON or through a format template
//   - Collector: keeps events in memory
//
// Stand-alone:
//   - KeyValueStore: shares a store with other units
//   - SimpleStats: logs throughput and process resource usage
//
// Register adds them all to a catalog:
//
//	catalog := registry.New[string, module.Factory]()
//	if err := modules.Register(catalog); err != nil {
//	    return err
//	}
package modules
