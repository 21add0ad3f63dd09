package pickup

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository manages pickup code persistence
type Repository interface {
	Create(ctx context.Context, code *Code) error
	// GetActiveByLoan returns nil, nil when the loan has no unconsumed, unexpired code
	GetActiveByLoan(ctx context.Context, loanID uuid.UUID) (*Code, error)
	// ExistsActive reports whether the value is held by any active code
	ExistsActive(ctx context.Context, value string) (bool, error)
	Update(ctx context.Context, code *Code) error
	// ListExpiredLoanIDs returns loans whose active code is past its window
	ListExpiredLoanIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	WithTx(tx pgx.Tx) Repository
}

// ErrCodeNotFound indicates a missing pickup code row
type ErrCodeNotFound struct {
	ID uuid.UUID
}

func (e ErrCodeNotFound) Error() string {
	return "pickup code not found: " + e.ID.String()
}

// ErrCodeCollision reports that the generated value is already held by an active code
var ErrCodeCollision = errors.New("pickup code value already in use")
