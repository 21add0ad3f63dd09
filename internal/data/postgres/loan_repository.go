// Package postgres provides PostgreSQL implementations of the circulation
// repositories. Every repository can be rebound to a transaction with WithTx
// so a transition and its side effects commit together.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/library-circulation/internal/domain/loan"
	"github.com/library-circulation/internal/domain/shared"
	"github.com/library-circulation/internal/platform/persistence"
)

const loanColumns = `id, copy_id, title_id, borrower_id, reservation_id, status, requested_at, approved_at,
		due_at, picked_up_at, returned_at, closed_at, extension_used, damaged, rejection_reason, version`

// openLoanConstraint is the partial unique index allowing one open loan per copy
const openLoanConstraint = "loans_one_open_per_copy"

// LoanRepository implements the loan.Repository interface for PostgreSQL
type LoanRepository struct {
	querier persistence.Querier // Can be *pgxpool.Pool or pgx.Tx
	logger  *slog.Logger
}

func NewLoanRepository(logger *slog.Logger, db *persistence.PostgresDB) loan.Repository {
	return &LoanRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

func (r *LoanRepository) WithTx(tx pgx.Tx) loan.Repository {
	return &LoanRepository{
		querier: tx,
		logger:  r.logger,
	}
}

func scanLoan(row pgx.Row) (*loan.Loan, error) {
	var l loan.Loan
	err := row.Scan(
		&l.ID,
		&l.CopyID,
		&l.TitleID,
		&l.BorrowerID,
		&l.ReservationID,
		&l.Status,
		&l.RequestedAt,
		&l.ApprovedAt,
		&l.DueAt,
		&l.PickedUpAt,
		&l.ReturnedAt,
		&l.ClosedAt,
		&l.ExtensionUsed,
		&l.Damaged,
		&l.RejectionReason,
		&l.Version,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// Create inserts a pending loan. The open-loan index turns a lost claim race
// into shared.ErrUnavailable.
func (r *LoanRepository) Create(ctx context.Context, l *loan.Loan) error {
	query := `
		INSERT INTO loans (` + loanColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err := r.querier.Exec(ctx, query,
		l.ID,
		l.CopyID,
		l.TitleID,
		l.BorrowerID,
		l.ReservationID,
		l.Status,
		l.RequestedAt,
		l.ApprovedAt,
		l.DueAt,
		l.PickedUpAt,
		l.ReturnedAt,
		l.ClosedAt,
		l.ExtensionUsed,
		l.Damaged,
		l.RejectionReason,
		l.Version,
	)
	if err != nil {
		if persistence.IsUniqueViolation(err, openLoanConstraint) {
			return fmt.Errorf("copy %s already has an open loan: %w", l.CopyID, shared.ErrUnavailable)
		}
		r.logger.Error("Failed to create loan", "copy_id", l.CopyID.String(), "error", err)
		return fmt.Errorf("failed to create loan: %w", err)
	}

	return nil
}

func (r *LoanRepository) GetByID(ctx context.Context, id uuid.UUID) (*loan.Loan, error) {
	query := `
		SELECT ` + loanColumns + `
		FROM loans
		WHERE id = $1
	`

	l, err := scanLoan(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, loan.ErrLoanNotFound{ID: id}
		}
		r.logger.Error("Failed to get loan", "loan_id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	return l, nil
}

// LockForUpdate obtains a row lock on the loan and returns its current state
func (r *LoanRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*loan.Loan, error) {
	query := `
		SELECT ` + loanColumns + `
		FROM loans
		WHERE id = $1
		FOR UPDATE
	`

	l, err := scanLoan(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, loan.ErrLoanNotFound{ID: id}
		}
		r.logger.Error("Failed to lock loan for update", "loan_id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to lock loan for update: %w", err)
	}
	return l, nil
}

// Update writes the loan if nobody changed it since it was read and bumps its version
func (r *LoanRepository) Update(ctx context.Context, l *loan.Loan) error {
	query := `
		UPDATE loans
		SET status = $1, approved_at = $2, due_at = $3, picked_up_at = $4, returned_at = $5,
			closed_at = $6, extension_used = $7, damaged = $8, rejection_reason = $9,
			version = version + 1
		WHERE id = $10 AND version = $11
	`

	result, err := r.querier.Exec(ctx, query,
		l.Status,
		l.ApprovedAt,
		l.DueAt,
		l.PickedUpAt,
		l.ReturnedAt,
		l.ClosedAt,
		l.ExtensionUsed,
		l.Damaged,
		l.RejectionReason,
		l.ID,
		l.Version,
	)
	if err != nil {
		r.logger.Error("Failed to update loan", "loan_id", l.ID.String(), "error", err)
		return fmt.Errorf("failed to update loan: %w", err)
	}

	if result.RowsAffected() == 0 {
		return loan.ErrConcurrentModification{ID: l.ID}
	}

	l.Version++
	return nil
}

func (r *LoanRepository) GetOpenByCopy(ctx context.Context, copyID uuid.UUID) (*loan.Loan, error) {
	query := `
		SELECT ` + loanColumns + `
		FROM loans
		WHERE copy_id = $1 AND status IN ('pending', 'approved', 'active', 'overdue')
	`

	l, err := scanLoan(r.querier.QueryRow(ctx, query, copyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get open loan for copy", "copy_id", copyID.String(), "error", err)
		return nil, fmt.Errorf("failed to get open loan for copy: %w", err)
	}
	return l, nil
}

func (r *LoanRepository) CountOpenByBorrower(ctx context.Context, borrowerID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM loans
		WHERE borrower_id = $1 AND status IN ('pending', 'approved', 'active', 'overdue')
	`

	var count int
	if err := r.querier.QueryRow(ctx, query, borrowerID).Scan(&count); err != nil {
		r.logger.Error("Failed to count open loans", "borrower_id", borrowerID.String(), "error", err)
		return 0, fmt.Errorf("failed to count open loans: %w", err)
	}
	return count, nil
}

func (r *LoanRepository) HasOpenForTitle(ctx context.Context, borrowerID, titleID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM loans
			WHERE borrower_id = $1 AND title_id = $2 AND status IN ('pending', 'approved', 'active', 'overdue')
		)
	`

	var exists bool
	if err := r.querier.QueryRow(ctx, query, borrowerID, titleID).Scan(&exists); err != nil {
		r.logger.Error("Failed to check open loans for title",
			"borrower_id", borrowerID.String(),
			"title_id", titleID.String(),
			"error", err,
		)
		return false, fmt.Errorf("failed to check open loans for title: %w", err)
	}
	return exists, nil
}

func (r *LoanRepository) ListOverdueCandidateIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	query := `
		SELECT id
		FROM loans
		WHERE status = 'active' AND due_at < $1
		ORDER BY due_at ASC
		LIMIT $2
	`

	ids, err := collectIDs(ctx, r.querier, query, now, limit)
	if err != nil {
		r.logger.Error("Failed to list overdue candidates", "error", err)
		return nil, fmt.Errorf("failed to list overdue candidates: %w", err)
	}
	return ids, nil
}

func (r *LoanRepository) ListStaleOverdueIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	query := `
		SELECT l.id
		FROM loans l
		LEFT JOIN fines f ON f.loan_id = l.id AND f.reason = 'overdue'
		WHERE l.status = 'overdue'
		  AND (f.id IS NULL OR (NOT f.paid
		       AND f.days_overdue < floor(extract(epoch FROM ($1::timestamptz - l.due_at)) / 86400)))
		ORDER BY f.computed_at ASC NULLS FIRST, l.due_at ASC
		LIMIT $2
	`

	ids, err := collectIDs(ctx, r.querier, query, now, limit)
	if err != nil {
		r.logger.Error("Failed to list stale overdue loans", "error", err)
		return nil, fmt.Errorf("failed to list stale overdue loans: %w", err)
	}
	return ids, nil
}

// collectIDs runs a single-column id query
func collectIDs(ctx context.Context, q persistence.Querier, query string, args ...interface{}) ([]uuid.UUID, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
