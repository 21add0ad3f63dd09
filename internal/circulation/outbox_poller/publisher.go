package outbox_poller

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/library-circulation/internal/domain/outbox"
	"github.com/library-circulation/internal/domain/shared"
	"github.com/library-circulation/internal/platform/messaging/producers"
)

// EventPublisher moves one outbox message onto the events topic
type EventPublisher interface {
	PublishEvent(ctx context.Context, message *outbox.Message) error
}

// KafkaEventPublisher implements EventPublisher
type KafkaEventPublisher struct {
	outboxRepo outbox.Repository
	producer   producers.MessagePublisher
	logger     *slog.Logger
}

func NewKafkaEventPublisher(
	outboxRepo outbox.Repository,
	producer producers.MessagePublisher,
	logger *slog.Logger,
) EventPublisher {
	return &KafkaEventPublisher{
		outboxRepo: outboxRepo,
		producer:   producer,
		logger:     logger,
	}
}

// PublishEvent sends the stored payload unchanged, keyed by aggregate id, and
// marks the message processed. A payload that no longer decodes can never be
// published and is parked as FAILED_TO_PUBLISH straight away.
func (p *KafkaEventPublisher) PublishEvent(ctx context.Context, message *outbox.Message) error {
	evt, err := message.GetEvent()
	if err != nil {
		p.logger.Error("Failed to decode event from outbox payload",
			"outbox_id", message.ID, "event_id", message.EventID.String(), "error", err,
		)
		if updateErr := p.outboxRepo.UpdateStatus(ctx, message.ID, shared.OutboxStatusFailedToPublish); updateErr != nil {
			p.logger.Error("Also failed to park undecodable outbox message", "outbox_id", message.ID, "update_error", updateErr)
		}
		return fmt.Errorf("decode payload for outbox %d failed: %w", message.ID, err)
	}

	logger := p.logger.With("event_id", evt.ID.String(), "event_type", string(evt.Type))
	if evt.CorrelationID != "" {
		logger = logger.With("correlation_id", evt.CorrelationID)
	}

	headers := map[string]string{
		"event-type":     string(evt.Type),
		"aggregate-type": string(evt.AggregateType),
		"correlation-id": evt.CorrelationID,
	}
	if err := p.producer.Publish(ctx, evt.AggregateID.String(), message.Payload, headers); err != nil {
		logger.Error("Failed to publish event to Kafka", "outbox_id", message.ID, "error", err)
		return fmt.Errorf("failed to publish event %s: %w", evt.ID, err)
	}

	if err := p.outboxRepo.UpdateStatus(ctx, message.ID, shared.OutboxStatusProcessed); err != nil {
		// The event will be published again on the next tick; the projector
		// drops the duplicate by event id.
		logger.Error("Failed to mark outbox message as PROCESSED", "outbox_id", message.ID, "error", err)
		return fmt.Errorf("event %s published, but failed to mark outbox %d as PROCESSED: %w", evt.ID, message.ID, err)
	}

	logger.Debug("Outbox message published and marked as PROCESSED", "outbox_id", message.ID)
	return nil
}
