package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/library-circulation/internal/domain/fine"
	"github.com/library-circulation/internal/domain/shared"
	"github.com/library-circulation/internal/platform/persistence"
)

const fineColumns = `id, loan_id, reason, amount_cents, days_overdue, computed_at, paid, paid_at`

// FineRepository implements the fine.Repository interface for PostgreSQL
type FineRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

func NewFineRepository(logger *slog.Logger, db *persistence.PostgresDB) fine.Repository {
	return &FineRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

func (r *FineRepository) WithTx(tx pgx.Tx) fine.Repository {
	return &FineRepository{
		querier: tx,
		logger:  r.logger,
	}
}

func scanFine(row pgx.Row) (*fine.Fine, error) {
	var f fine.Fine
	err := row.Scan(
		&f.ID,
		&f.LoanID,
		&f.Reason,
		&f.AmountCents,
		&f.DaysOverdue,
		&f.ComputedAt,
		&f.Paid,
		&f.PaidAt,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// Create inserts a fine; fines_loan_reason_key keeps one fine per loan and reason
func (r *FineRepository) Create(ctx context.Context, f *fine.Fine) error {
	query := `
		INSERT INTO fines (` + fineColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.querier.Exec(ctx, query,
		f.ID,
		f.LoanID,
		f.Reason,
		f.AmountCents,
		f.DaysOverdue,
		f.ComputedAt,
		f.Paid,
		f.PaidAt,
	)
	if err != nil {
		if persistence.IsUniqueViolation(err, "fines_loan_reason_key") {
			return fmt.Errorf("loan %s already has a %s fine: %w", f.LoanID, f.Reason, shared.ErrStaleState)
		}
		r.logger.Error("Failed to create fine", "loan_id", f.LoanID.String(), "error", err)
		return fmt.Errorf("failed to create fine: %w", err)
	}
	return nil
}

func (r *FineRepository) GetByID(ctx context.Context, id uuid.UUID) (*fine.Fine, error) {
	query := `
		SELECT ` + fineColumns + `
		FROM fines
		WHERE id = $1
	`

	f, err := scanFine(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fine.ErrFineNotFound{ID: id}
		}
		r.logger.Error("Failed to get fine", "fine_id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get fine: %w", err)
	}
	return f, nil
}

func (r *FineRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*fine.Fine, error) {
	query := `
		SELECT ` + fineColumns + `
		FROM fines
		WHERE id = $1
		FOR UPDATE
	`

	f, err := scanFine(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fine.ErrFineNotFound{ID: id}
		}
		r.logger.Error("Failed to lock fine for update", "fine_id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to lock fine for update: %w", err)
	}
	return f, nil
}

func (r *FineRepository) GetByLoanAndReason(ctx context.Context, loanID uuid.UUID, reason fine.Reason) (*fine.Fine, error) {
	query := `
		SELECT ` + fineColumns + `
		FROM fines
		WHERE loan_id = $1 AND reason = $2
	`

	f, err := scanFine(r.querier.QueryRow(ctx, query, loanID, reason))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get fine by loan", "loan_id", loanID.String(), "reason", string(reason), "error", err)
		return nil, fmt.Errorf("failed to get fine by loan: %w", err)
	}
	return f, nil
}

func (r *FineRepository) ListByLoan(ctx context.Context, loanID uuid.UUID) ([]*fine.Fine, error) {
	query := `
		SELECT ` + fineColumns + `
		FROM fines
		WHERE loan_id = $1
		ORDER BY computed_at ASC
	`

	rows, err := r.querier.Query(ctx, query, loanID)
	if err != nil {
		r.logger.Error("Failed to list fines", "loan_id", loanID.String(), "error", err)
		return nil, fmt.Errorf("failed to list fines: %w", err)
	}
	defer rows.Close()

	var fines []*fine.Fine
	for rows.Next() {
		f, err := scanFine(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fine: %w", err)
		}
		fines = append(fines, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over fines: %w", err)
	}
	return fines, nil
}

// Update rewrites an unpaid fine; paid fines are never touched
func (r *FineRepository) Update(ctx context.Context, f *fine.Fine) error {
	query := `
		UPDATE fines
		SET amount_cents = $1, days_overdue = $2, computed_at = $3, paid = $4, paid_at = $5
		WHERE id = $6 AND paid = FALSE
	`

	result, err := r.querier.Exec(ctx, query,
		f.AmountCents,
		f.DaysOverdue,
		f.ComputedAt,
		f.Paid,
		f.PaidAt,
		f.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update fine", "fine_id", f.ID.String(), "error", err)
		return fmt.Errorf("failed to update fine: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("fine %s is paid or missing: %w", f.ID, shared.ErrStaleState)
	}
	return nil
}
