// Package mongo holds the MongoDB read models fed by the event projector.
package mongo

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/library-circulation/internal/domain/event"
	"github.com/library-circulation/internal/domain/timeline"
)

var _ timeline.Repository = (*TimelineRepository)(nil)

// TimelineRepository implements the timeline.Repository interface for MongoDB
type TimelineRepository struct {
	collection *mongo.Collection
	logger     *slog.Logger
}

// NewTimelineRepository creates a timeline repository over collection
func NewTimelineRepository(logger *slog.Logger, collection *mongo.Collection) *TimelineRepository {
	return &TimelineRepository{
		collection: collection,
		logger:     logger,
	}
}

// EnsureIndexes creates the unique event index that makes Append idempotent
// and the index serving per-record history reads.
func (r *TimelineRepository) EnsureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "event_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("event_id_unique"),
		},
		{
			Keys: bson.D{
				{Key: "aggregate_type", Value: 1},
				{Key: "aggregate_id", Value: 1},
				{Key: "occurred_at", Value: 1},
			},
			Options: options.Index().SetName("aggregate_history"),
		},
	}

	if _, err := r.collection.Indexes().CreateMany(ctx, models); err != nil {
		r.logger.Error("Failed to create timeline indexes", "error", err)
		return fmt.Errorf("failed to create timeline indexes: %w", err)
	}
	return nil
}

// Append stores the entry. Redelivered events hit the unique event_id index
// and are ignored.
func (r *TimelineRepository) Append(ctx context.Context, entry *timeline.Entry) error {
	_, err := r.collection.InsertOne(ctx, entry)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			r.logger.Debug("Timeline entry already recorded", "event_id", entry.EventID)
			return nil
		}
		r.logger.Error("Failed to append timeline entry",
			"event_id", entry.EventID,
			"aggregate_id", entry.AggregateID,
			"error", err)
		return fmt.Errorf("failed to append timeline entry: %w", err)
	}
	return nil
}

// ListByAggregate returns a page of the record's history, oldest first
func (r *TimelineRepository) ListByAggregate(ctx context.Context, aggType event.AggregateType, id uuid.UUID, limit, offset int) ([]*timeline.Entry, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "occurred_at", Value: 1}, {Key: "event_id", Value: 1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, aggregateFilter(aggType, id), opts)
	if err != nil {
		r.logger.Error("Failed to list timeline entries",
			"aggregate_type", string(aggType),
			"aggregate_id", id.String(),
			"error", err)
		return nil, fmt.Errorf("failed to list timeline entries: %w", err)
	}
	defer cursor.Close(ctx)

	entries := make([]*timeline.Entry, 0)
	if err := cursor.All(ctx, &entries); err != nil {
		r.logger.Error("Failed to decode timeline entries",
			"aggregate_id", id.String(),
			"error", err)
		return nil, fmt.Errorf("failed to decode timeline entries: %w", err)
	}
	return entries, nil
}

func (r *TimelineRepository) CountByAggregate(ctx context.Context, aggType event.AggregateType, id uuid.UUID) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, aggregateFilter(aggType, id))
	if err != nil {
		r.logger.Error("Failed to count timeline entries",
			"aggregate_id", id.String(),
			"error", err)
		return 0, fmt.Errorf("failed to count timeline entries: %w", err)
	}
	return count, nil
}

func aggregateFilter(aggType event.AggregateType, id uuid.UUID) bson.M {
	return bson.M{
		"aggregate_type": string(aggType),
		"aggregate_id":   id.String(),
	}
}
