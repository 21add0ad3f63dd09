package fine

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/library-circulation/internal/domain/shared"
)

// Repository manages fine persistence; (loan, reason) is unique
type Repository interface {
	Create(ctx context.Context, f *Fine) error
	GetByID(ctx context.Context, id uuid.UUID) (*Fine, error)
	// GetByLoanAndReason returns nil, nil when the loan has no fine for the reason
	GetByLoanAndReason(ctx context.Context, loanID uuid.UUID, reason Reason) (*Fine, error)
	ListByLoan(ctx context.Context, loanID uuid.UUID) ([]*Fine, error)
	LockForUpdate(ctx context.Context, id uuid.UUID) (*Fine, error)
	Update(ctx context.Context, f *Fine) error
	WithTx(tx pgx.Tx) Repository
}

// ErrFineNotFound indicates missing fine
type ErrFineNotFound struct {
	ID uuid.UUID
}

func (e ErrFineNotFound) Error() string {
	return "fine not found: " + e.ID.String()
}

func (e ErrFineNotFound) Unwrap() error {
	return shared.ErrNotFound
}
