package events

import (
	"time"

	"github.com/spec-kit/coop-member-import/internal/domain"
)

// EventType enumerates supported event identifiers. Values mirror audit action tags.
type EventType = domain.ActivityAction

// Event is an audit event emitted by services.
type Event struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	ActorID     string         `json:"actor_id"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// Activity converts the event to its persisted form.
func (e Event) Activity() domain.Activity {
	return domain.Activity{
		ID:          e.ID,
		ActorID:     e.ActorID,
		Action:      e.Type,
		Description: e.Description,
		Metadata:    e.Metadata,
		CreatedAt:   e.Timestamp,
	}
}
