package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/library-circulation/internal/domain/shared"
)

// Repository reads catalog records; only the withdrawal marker is written here
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Copy, error)

	// LockForUpdate acquires a row lock on the copy inside the caller's transaction
	LockForUpdate(ctx context.Context, id uuid.UUID) (*Copy, error)
	ListByTitle(ctx context.Context, titleID uuid.UUID) ([]*Copy, error)
	GetTitle(ctx context.Context, id uuid.UUID) (*Title, error)

	// LockTitle serializes queue operations for one title
	LockTitle(ctx context.Context, id uuid.UUID) (*Title, error)
	MarkWithdrawn(ctx context.Context, id uuid.UUID, at time.Time) error
	WithTx(tx pgx.Tx) Repository
}

// ErrCopyNotFound indicates missing copy
type ErrCopyNotFound struct {
	ID uuid.UUID
}

func (e ErrCopyNotFound) Error() string {
	return "copy not found: " + e.ID.String()
}

func (e ErrCopyNotFound) Unwrap() error {
	return shared.ErrNotFound
}

// ErrTitleNotFound indicates missing title
type ErrTitleNotFound struct {
	ID uuid.UUID
}

func (e ErrTitleNotFound) Error() string {
	return "title not found: " + e.ID.String()
}

func (e ErrTitleNotFound) Unwrap() error {
	return shared.ErrNotFound
}
