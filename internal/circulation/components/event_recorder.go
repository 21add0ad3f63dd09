package components

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/library-circulation/internal/circulation/service"
	"github.com/library-circulation/internal/domain/event"
	"github.com/library-circulation/internal/domain/outbox"
	"github.com/library-circulation/internal/logger"
)

type EventRecorderImpl struct {
	outboxRepo outbox.Repository
	logger     *slog.Logger
}

func NewEventRecorder(outboxRepo outbox.Repository, logger *slog.Logger) service.EventRecorder {
	return &EventRecorderImpl{
		outboxRepo: outboxRepo,
		logger:     logger,
	}
}

// Record writes one outbox message per event inside tx. Events inherit the
// correlation id of the request that caused them.
func (r *EventRecorderImpl) Record(ctx context.Context, tx pgx.Tx, events ...*event.Event) error {
	logger := logger.FromContext(ctx, r.logger)
	outboxRepoTx := r.outboxRepo.WithTx(tx)
	correlationID := event.CorrelationIDFromContext(ctx)

	for _, evt := range events {
		if evt.CorrelationID == "" {
			evt.CorrelationID = correlationID
		}

		message, err := outbox.NewMessage(evt)
		if err != nil {
			logger.Error("Failed to create outbox message (marshal payload)",
				"event_id", evt.ID.String(),
				"event_type", string(evt.Type),
				"error", err,
			)
			return fmt.Errorf("failed to create outbox message payload for event %s: %w", evt.ID, err)
		}

		if err := outboxRepoTx.Create(ctx, message); err != nil {
			logger.Error("Failed to create outbox message",
				"event_id", evt.ID.String(),
				"aggregate_id", evt.AggregateID.String(),
				"error", err,
			)
			return fmt.Errorf("failed to create outbox message for event %s: %w", evt.ID, err)
		}
		logger.Debug("Outbox message created",
			"event_id", evt.ID.String(),
			"event_type", string(evt.Type),
			"outbox_id", message.ID,
		)
	}
	return nil
}
