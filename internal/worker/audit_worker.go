package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/coop-member-import/internal/domain"
	"github.com/spec-kit/coop-member-import/internal/events"
)

// ActivityStore persists audit entries.
type ActivityStore interface {
	Create(ctx context.Context, activity *domain.Activity) error
}

// StartAuditWorker subscribes the activity store, and the optional mirror, to
// every audit event.
func StartAuditWorker(dispatcher events.Dispatcher, store ActivityStore, mirror events.EventHandler, logger *zap.Logger) {
	if dispatcher == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if store != nil {
		dispatcher.SubscribeAll(persistActivity(store, logger))
	}
	if mirror != nil {
		dispatcher.SubscribeAll(mirror)
	}
}

func persistActivity(store ActivityStore, logger *zap.Logger) events.EventHandler {
	return func(ctx context.Context, event events.Event) error {
		activity := event.Activity()
		if err := store.Create(ctx, &activity); err != nil {
			logger.Warn("activity not persisted",
				zap.String("event_id", event.ID),
				zap.String("action", string(event.Type)),
				zap.Error(err))
			return err
		}
		return nil
	}
}
