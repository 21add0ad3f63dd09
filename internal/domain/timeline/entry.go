package timeline

import (
	"time"

	"github.com/google/uuid"
	"github.com/library-circulation/internal/domain/event"
)

// Entry is one event projected into the per-record history read model
type Entry struct {
	EventID       string         `json:"event_id" bson:"event_id"`
	Type          string         `json:"type" bson:"type"`
	AggregateType string         `json:"aggregate_type" bson:"aggregate_type"`
	AggregateID   string         `json:"aggregate_id" bson:"aggregate_id"`
	ActorID       string         `json:"actor_id,omitempty" bson:"actor_id,omitempty"`
	ActorRole     string         `json:"actor_role,omitempty" bson:"actor_role,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty" bson:"correlation_id,omitempty"`
	OccurredAt    time.Time      `json:"occurred_at" bson:"occurred_at"`
	RecordedAt    time.Time      `json:"recorded_at" bson:"recorded_at"`
	Data          map[string]any `json:"data,omitempty" bson:"data,omitempty"`
}

// FromEvent projects evt, stamping the time it was recorded
func FromEvent(evt *event.Event, recordedAt time.Time) *Entry {
	entry := &Entry{
		EventID:       evt.ID.String(),
		Type:          string(evt.Type),
		AggregateType: string(evt.AggregateType),
		AggregateID:   evt.AggregateID.String(),
		ActorRole:     string(evt.ActorRole),
		CorrelationID: evt.CorrelationID,
		OccurredAt:    evt.OccurredAt,
		RecordedAt:    recordedAt,
		Data:          evt.Data,
	}
	if evt.ActorID != uuid.Nil {
		entry.ActorID = evt.ActorID.String()
	}
	return entry
}
