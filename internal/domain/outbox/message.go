package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/library-circulation/internal/domain/event"
	"github.com/library-circulation/internal/domain/shared"
)

// Message carries one domain event from the transition's transaction to the publisher
type Message struct {
	ID            int64               `json:"id"`
	EventID       uuid.UUID           `json:"event_id"`
	AggregateID   uuid.UUID           `json:"aggregate_id"`
	EventType     event.Type          `json:"event_type"`
	Payload       json.RawMessage     `json:"payload"`
	Status        shared.OutboxStatus `json:"status"`
	Attempts      int                 `json:"attempts"`
	CreatedAt     time.Time           `json:"created_at"`
	LastAttemptAt *time.Time          `json:"last_attempt_at,omitempty"`
}

func NewMessage(evt *event.Event) (*Message, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}

	return &Message{
		EventID:     evt.ID,
		AggregateID: evt.AggregateID,
		EventType:   evt.Type,
		Payload:     payload,
		Status:      shared.OutboxStatusPending,
		CreatedAt:   evt.OccurredAt,
	}, nil
}

func (m *Message) IncrementAttempts(now time.Time) {
	m.Attempts++
	m.LastAttemptAt = &now
}

func (m *Message) MarkAsProcessed(now time.Time) {
	m.Status = shared.OutboxStatusProcessed
	m.LastAttemptAt = &now
}

func (m *Message) MarkAsFailed(now time.Time) {
	m.Status = shared.OutboxStatusFailedToPublish
	m.LastAttemptAt = &now
}

// GetEvent decodes the event from the payload
func (m *Message) GetEvent() (*event.Event, error) {
	var evt event.Event
	if err := json.Unmarshal(m.Payload, &evt); err != nil {
		return nil, err
	}
	return &evt, nil
}
