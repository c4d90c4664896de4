package module

import (
	"context"
	"log/slog"

	lmerrors "github.com/randalmurphal/logmill/pkg/logmill/errors"
	"github.com/randalmurphal/logmill/pkg/logmill/event"
)

// Source yields batches for a driven unit. *channel.Channel satisfies it.
type Source interface {
	Get(ctx context.Context) ([]*event.Event, error)
}

// Drive feeds batches from src into n until ctx is cancelled or src is
// closed. Both end the loop without error.
func Drive(ctx context.Context, src Source, n *Node) error {
	for {
		batch, err := src.Get(ctx)
		if err != nil {
			if lmerrors.IsShutdown(err) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		for _, evt := range batch {
			if err := n.Receive(ctx, evt); err != nil && !lmerrors.IsShutdown(err) {
				n.logger.Warn("event delivery failed",
					slog.String("unit_id", n.id),
					slog.String("event_id", evt.ID()),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
