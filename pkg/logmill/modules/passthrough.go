package modules

import (
	"context"

	"github.com/randalmurphal/logmill/pkg/logmill/event"
	"github.com/randalmurphal/logmill/pkg/logmill/module"
)

// Noop forwards every event unchanged. Combined with the common actions
// it is handy for routing and field edits.
type Noop struct {
	module.Base
}

// Type implements module.Module.
func (*Noop) Type() module.Type { return module.TypeModifier }

// DropEvent discards every event it receives.
type DropEvent struct {
	module.Base
}

// Type implements module.Module.
func (*DropEvent) Type() module.Type { return module.TypeModifier }

// HandleEvent drops evt.
func (*DropEvent) HandleEvent(context.Context, *event.Event) ([]*event.Event, error) {
	return nil, nil
}
