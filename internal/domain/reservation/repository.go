package reservation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/library-circulation/internal/domain/shared"
)

// Repository defines reservation persistence operations
type Repository interface {
	Create(ctx context.Context, r *Reservation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Reservation, error)

	// LockForUpdate acquires a row lock inside the caller's transaction
	LockForUpdate(ctx context.Context, id uuid.UUID) (*Reservation, error)

	// Update persists r if its version is unchanged and bumps r.Version
	Update(ctx context.Context, r *Reservation) error

	ListQueuedByTitle(ctx context.Context, titleID uuid.UUID) ([]*Reservation, error)

	// GetHoldByCopy returns the confirmed reservation holding the copy, or nil, nil
	GetHoldByCopy(ctx context.Context, copyID uuid.UUID) (*Reservation, error)

	// GetActiveForBorrower returns the borrower's queued/confirmed reservation for the title, or nil, nil
	GetActiveForBorrower(ctx context.Context, borrowerID, titleID uuid.UUID) (*Reservation, error)

	ListLapsedHoldIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	WithTx(tx pgx.Tx) Repository
}

// ErrReservationNotFound indicates missing reservation
type ErrReservationNotFound struct {
	ID uuid.UUID
}

func (e ErrReservationNotFound) Error() string {
	return "reservation not found: " + e.ID.String()
}

func (e ErrReservationNotFound) Unwrap() error {
	return shared.ErrNotFound
}

// ErrConcurrentModification indicates optimistic lock failure
type ErrConcurrentModification struct {
	ID uuid.UUID
}

func (e ErrConcurrentModification) Error() string {
	return "concurrent modification detected for reservation: " + e.ID.String()
}

func (e ErrConcurrentModification) Unwrap() error {
	return shared.ErrStaleState
}
