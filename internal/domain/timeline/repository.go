package timeline

import (
	"context"

	"github.com/google/uuid"
	"github.com/library-circulation/internal/domain/event"
)

// Repository manages timeline entry persistence with pagination support
type Repository interface {
	// Append stores entry; appending an already recorded event is a no-op
	Append(ctx context.Context, entry *Entry) error
	ListByAggregate(ctx context.Context, aggType event.AggregateType, id uuid.UUID, limit, offset int) ([]*Entry, error)
	CountByAggregate(ctx context.Context, aggType event.AggregateType, id uuid.UUID) (int64, error)
}
