// Package consumer projects circulation events from Kafka into the timeline
// read model.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/library-circulation/internal/domain/event"
	"github.com/library-circulation/internal/domain/shared"
	"github.com/library-circulation/internal/domain/timeline"
	"github.com/library-circulation/internal/platform/messaging/producers"
)

// TimelineProjector appends every consumed event to the timeline store
type TimelineProjector struct {
	timelineRepo timeline.Repository
	dlq          producers.DeadLetterPublisher
	clock        shared.Clock
	logger       *slog.Logger
}

func NewTimelineProjector(
	logger *slog.Logger,
	timelineRepo timeline.Repository,
	dlq producers.DeadLetterPublisher,
	clock shared.Clock,
) *TimelineProjector {
	return &TimelineProjector{
		timelineRepo: timelineRepo,
		dlq:          dlq,
		clock:        clock,
		logger:       logger,
	}
}

// HandleMessage is a consumers.MessageHandler. Messages that can never be
// projected go to the DLQ and are acknowledged; store failures are returned
// so the consumer retries them.
func (p *TimelineProjector) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	var evt event.Event
	if err := json.Unmarshal(value, &evt); err != nil {
		return p.deadLetter(ctx, key, value, fmt.Sprintf("undecodable event: %s", err))
	}
	if reason := invalidReason(&evt); reason != "" {
		return p.deadLetter(ctx, key, value, reason)
	}

	logger := p.logger.With("event_id", evt.ID.String(), "event_type", string(evt.Type))
	if evt.CorrelationID != "" {
		logger = logger.With("correlation_id", evt.CorrelationID)
	}

	if err := p.timelineRepo.Append(ctx, timeline.FromEvent(&evt, p.clock.Now())); err != nil {
		logger.Error("Failed to append event to timeline", "aggregate_id", evt.AggregateID.String(), "error", err)
		return fmt.Errorf("projecting event %s failed: %w", evt.ID, err)
	}

	logger.Debug("Projected event into timeline", "aggregate_id", evt.AggregateID.String())
	return nil
}

func invalidReason(evt *event.Event) string {
	switch {
	case evt.ID == uuid.Nil:
		return "event has no id"
	case evt.Type == "":
		return "event has no type"
	case evt.AggregateID == uuid.Nil:
		return "event has no aggregate id"
	case evt.OccurredAt.IsZero():
		return "event has no occurrence time"
	}
	if _, ok := event.ParseAggregateType(string(evt.AggregateType)); !ok {
		return fmt.Sprintf("unknown aggregate type %q", evt.AggregateType)
	}
	return ""
}

func (p *TimelineProjector) deadLetter(ctx context.Context, key, value []byte, reason string) error {
	p.logger.Error("Dropping unprojectable event", "message_key", string(key), "reason", reason)
	if p.dlq == nil {
		return nil
	}
	if err := p.dlq.PublishToDLQ(ctx, string(key), value, reason); err != nil {
		p.logger.Error("Failed to publish unprojectable event to DLQ", "message_key", string(key), "error", err)
		return fmt.Errorf("dead letter for key %s failed: %w", string(key), err)
	}
	return nil
}
