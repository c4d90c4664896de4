/*
Package module defines the contract between the pipeline and its
processing units, and the Node that routes events between them.

# Units

A unit implements Module. Optional capabilities are discovered with type
assertions:

  - Starter: the unit runs its own loop and emits events (inputs)
  - ForkInitializer: per-worker setup after wiring
  - SchemaProvider: declared fields, validated before Configure

Embed Base for pass-through defaults:

	type Upper struct {
	    module.Base
	}

	func (u *Upper) Type() module.Type { return module.TypeModifier }

	func (u *Upper) HandleEvent(_ context.Context, evt *event.Event) ([]*event.Event, error) {
	    s, _ := evt.GetString("data")
	    return []*event.Event{evt}, evt.Set("data", strings.ToUpper(s))
	}

# Routing

Each unit instance is wrapped in a Node. For every event a Node:

 1. evaluates the input filter; a miss forwards the event untouched
 2. calls HandleEvent, isolating errors and panics
 3. applies the common actions (add_fields, delete_fields, event_type)
 4. evaluates each receiver's filter and fans out, cloning for all but
    the first matching receiver

Receivers are either other Nodes (direct call on the same worker) or
buffered channels, in which case the receiving Node runs under Drive.
*/
package module
