package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/coop-member-import/internal/domain"
	"github.com/spec-kit/coop-member-import/internal/events"
)

// auditor publishes audit events. Publishing never fails the caller.
type auditor struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

func newAuditor(dispatcher events.Dispatcher, logger *zap.Logger) auditor {
	return auditor{dispatcher: dispatcher, logger: logger}
}

func (a auditor) record(ctx context.Context, actorID string, action domain.ActivityAction, description string, metadata map[string]any) {
	if a.dispatcher == nil {
		return
	}
	err := a.dispatcher.Publish(ctx, events.Event{
		Type:        action,
		ActorID:     actorID,
		Description: description,
		Metadata:    metadata,
	})
	if err != nil {
		a.logger.Warn("audit event not recorded",
			zap.String("action", string(action)),
			zap.String("actor_id", actorID),
			zap.Error(err))
	}
}

func orNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

func orNow(now func() time.Time) func() time.Time {
	if now == nil {
		return time.Now
	}
	return now
}

// sleepWithContext waits for d or until ctx is done.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
