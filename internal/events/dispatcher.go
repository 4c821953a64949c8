package events

import (
	"context"

	"go.uber.org/zap"
)

// Publisher stores events for later delivery. *Outbox satisfies it.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// WithEvent runs work and, only if it succeeds, publishes the event built
// from its result. A build returning an empty event type suppresses
// emission, for work that completed without producing a new fact. A
// publish failure never fails the operation; it is logged and the result
// is returned as-is.
func WithEvent[T any](ctx context.Context, log *zap.Logger, pub Publisher, work func(ctx context.Context) (T, error), build func(result T) Event) (T, error) {
	result, err := work(ctx)
	if err != nil {
		return result, err
	}
	if pub == nil {
		return result, nil
	}
	event := build(result)
	if event.Type == "" {
		return result, nil
	}
	if publishErr := pub.Publish(ctx, event); publishErr != nil && log != nil {
		log.Warn("event publish failed",
			zap.String("event_type", string(event.Type)),
			zap.Int64("org_id", int64(event.OrgID)),
			zap.Error(publishErr),
		)
	}
	return result, nil
}

// WithEvents is WithEvent for operations that emit one event per produced
// row. Each publish failure is logged independently.
func WithEvents[T any](ctx context.Context, log *zap.Logger, pub Publisher, work func(ctx context.Context) (T, error), build func(result T) []Event) (T, error) {
	result, err := work(ctx)
	if err != nil {
		return result, err
	}
	if pub == nil {
		return result, nil
	}
	for _, event := range build(result) {
		if publishErr := pub.Publish(ctx, event); publishErr != nil && log != nil {
			log.Warn("event publish failed",
				zap.String("event_type", string(event.Type)),
				zap.Int64("org_id", int64(event.OrgID)),
				zap.Error(publishErr),
			)
		}
	}
	return result, nil
}
