package loan

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/library-circulation/internal/domain/shared"
)

// Repository defines loan persistence operations
type Repository interface {
	// Create stores a new loan; a second open loan on the same copy fails with shared.ErrUnavailable
	Create(ctx context.Context, l *Loan) error
	GetByID(ctx context.Context, id uuid.UUID) (*Loan, error)

	// LockForUpdate acquires a row lock inside the caller's transaction
	LockForUpdate(ctx context.Context, id uuid.UUID) (*Loan, error)

	// Update persists l if its version is unchanged and bumps l.Version
	Update(ctx context.Context, l *Loan) error

	// GetOpenByCopy returns the copy's open loan, or nil, nil
	GetOpenByCopy(ctx context.Context, copyID uuid.UUID) (*Loan, error)
	CountOpenByBorrower(ctx context.Context, borrowerID uuid.UUID) (int, error)
	HasOpenForTitle(ctx context.Context, borrowerID, titleID uuid.UUID) (bool, error)

	// ListOverdueCandidateIDs returns active loans whose due date passed
	ListOverdueCandidateIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)

	// ListStaleOverdueIDs returns overdue loans whose unpaid overdue fine is
	// missing or counts fewer days than have passed at now, least recently
	// computed first
	ListStaleOverdueIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	WithTx(tx pgx.Tx) Repository
}

// ExtensionRepository defines extension request persistence operations
type ExtensionRepository interface {
	Create(ctx context.Context, r *ExtensionRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*ExtensionRequest, error)
	LockForUpdate(ctx context.Context, id uuid.UUID) (*ExtensionRequest, error)
	// GetPendingByLoan returns the loan's pending request, or nil, nil
	GetPendingByLoan(ctx context.Context, loanID uuid.UUID) (*ExtensionRequest, error)
	Update(ctx context.Context, r *ExtensionRequest) error
	WithTx(tx pgx.Tx) ExtensionRepository
}

// ErrLoanNotFound indicates missing loan
type ErrLoanNotFound struct {
	ID uuid.UUID
}

func (e ErrLoanNotFound) Error() string {
	return "loan not found: " + e.ID.String()
}

func (e ErrLoanNotFound) Unwrap() error {
	return shared.ErrNotFound
}

// ErrExtensionNotFound indicates missing extension request
type ErrExtensionNotFound struct {
	ID uuid.UUID
}

func (e ErrExtensionNotFound) Error() string {
	return "extension request not found: " + e.ID.String()
}

func (e ErrExtensionNotFound) Unwrap() error {
	return shared.ErrNotFound
}

// ErrConcurrentModification indicates optimistic lock failure
type ErrConcurrentModification struct {
	ID uuid.UUID
}

func (e ErrConcurrentModification) Error() string {
	return "concurrent modification detected for loan: " + e.ID.String()
}

func (e ErrConcurrentModification) Unwrap() error {
	return shared.ErrStaleState
}
