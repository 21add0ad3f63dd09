package persistence

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/library-circulation/internal/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// DefaultTimelineCollection is used when no collection name is configured
const DefaultTimelineCollection = "circulation_timeline"

// MongoDB owns the client backing the circulation timeline
type MongoDB struct {
	logger             *slog.Logger
	client             *mongo.Client
	database           *mongo.Database
	timelineCollection string
}

func NewMongoDB(ctx context.Context, logger *slog.Logger, cfg *config.MongoDBConfig) (*MongoDB, error) {
	clientOptions := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetMinPoolSize(cfg.MinPoolSize).
		SetMaxConnIdleTime(cfg.MaxConnIdleTime).
		SetTimeout(cfg.Timeout)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	timelineCollection := cfg.TimelineCollection
	if timelineCollection == "" {
		timelineCollection = DefaultTimelineCollection
	}
	logger.Info("Connected to MongoDB", "database", cfg.Database, "timeline_collection", timelineCollection)

	return &MongoDB{
		logger:             logger,
		client:             client,
		database:           client.Database(cfg.Database),
		timelineCollection: timelineCollection,
	}, nil
}

func (m *MongoDB) Database() *mongo.Database {
	return m.database
}

// Timeline returns the collection holding projected circulation events
func (m *MongoDB) Timeline() *mongo.Collection {
	name := m.timelineCollection
	if name == "" {
		name = DefaultTimelineCollection
	}
	return m.database.Collection(name)
}

func (m *MongoDB) Close(ctx context.Context) error {
	if err := m.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from MongoDB: %w", err)
	}
	m.logger.Info("Closed MongoDB connection")
	return nil
}
