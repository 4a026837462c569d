package events

import (
	"context"

	"go.uber.org/zap"
)

// Hook runs after a transaction commits. Its error never reaches the client.
type Hook func(ctx context.Context, e Event) error

// PublishHook forwards events to p.
func PublishHook(p Publisher) Hook {
	return func(ctx context.Context, e Event) error {
		return p.Publish(ctx, e)
	}
}

type Hooks []Hook

// Run calls every hook in order, logging failures.
func (hs Hooks) Run(ctx context.Context, logger *zap.Logger, e Event) {
	for _, h := range hs {
		if err := h(ctx, e); err != nil {
			logger.Error("post-commit hook failed",
				zap.String("event_type", string(e.Type)),
				zap.String("event_id", e.EventID),
				zap.Int64("order_id", e.OrderID),
				zap.Error(err))
		}
	}
}
