package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/library-circulation/internal/domain/loan"
	"github.com/library-circulation/internal/domain/shared"
	"github.com/library-circulation/internal/platform/persistence"
)

const extensionColumns = `id, loan_id, status, requested_at, decided_by, decided_at, rejection_reason`

// ExtensionRepository implements the loan.ExtensionRepository interface for PostgreSQL
type ExtensionRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

func NewExtensionRepository(logger *slog.Logger, db *persistence.PostgresDB) loan.ExtensionRepository {
	return &ExtensionRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

func (r *ExtensionRepository) WithTx(tx pgx.Tx) loan.ExtensionRepository {
	return &ExtensionRepository{
		querier: tx,
		logger:  r.logger,
	}
}

func scanExtension(row pgx.Row) (*loan.ExtensionRequest, error) {
	var e loan.ExtensionRequest
	err := row.Scan(
		&e.ID,
		&e.LoanID,
		&e.Status,
		&e.RequestedAt,
		&e.DecidedBy,
		&e.DecidedAt,
		&e.RejectionReason,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Create inserts a pending request; a second pending request for the loan is rejected by the index
func (r *ExtensionRepository) Create(ctx context.Context, req *loan.ExtensionRequest) error {
	query := `
		INSERT INTO extension_requests (` + extensionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.querier.Exec(ctx, query,
		req.ID,
		req.LoanID,
		req.Status,
		req.RequestedAt,
		req.DecidedBy,
		req.DecidedAt,
		req.RejectionReason,
	)
	if err != nil {
		if persistence.IsUniqueViolation(err) {
			return fmt.Errorf("loan %s: %w", req.LoanID, shared.ErrExtensionAlreadyRequested)
		}
		r.logger.Error("Failed to create extension request", "loan_id", req.LoanID.String(), "error", err)
		return fmt.Errorf("failed to create extension request: %w", err)
	}
	return nil
}

func (r *ExtensionRepository) GetByID(ctx context.Context, id uuid.UUID) (*loan.ExtensionRequest, error) {
	return r.getOne(ctx, "get extension request", `
		SELECT `+extensionColumns+`
		FROM extension_requests
		WHERE id = $1
	`, id)
}

func (r *ExtensionRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*loan.ExtensionRequest, error) {
	return r.getOne(ctx, "lock extension request", `
		SELECT `+extensionColumns+`
		FROM extension_requests
		WHERE id = $1
		FOR UPDATE
	`, id)
}

func (r *ExtensionRepository) getOne(ctx context.Context, op, query string, id uuid.UUID) (*loan.ExtensionRequest, error) {
	req, err := scanExtension(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, loan.ErrExtensionNotFound{ID: id}
		}
		r.logger.Error("Failed to "+op, "extension_id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	return req, nil
}

func (r *ExtensionRepository) GetPendingByLoan(ctx context.Context, loanID uuid.UUID) (*loan.ExtensionRequest, error) {
	query := `
		SELECT ` + extensionColumns + `
		FROM extension_requests
		WHERE loan_id = $1 AND status = 'pending'
	`

	req, err := scanExtension(r.querier.QueryRow(ctx, query, loanID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get pending extension request", "loan_id", loanID.String(), "error", err)
		return nil, fmt.Errorf("failed to get pending extension request: %w", err)
	}
	return req, nil
}

// Update records the decision; only pending rows can change
func (r *ExtensionRepository) Update(ctx context.Context, req *loan.ExtensionRequest) error {
	query := `
		UPDATE extension_requests
		SET status = $1, decided_by = $2, decided_at = $3, rejection_reason = $4
		WHERE id = $5 AND status = 'pending'
	`

	result, err := r.querier.Exec(ctx, query,
		req.Status,
		req.DecidedBy,
		req.DecidedAt,
		req.RejectionReason,
		req.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update extension request", "extension_id", req.ID.String(), "error", err)
		return fmt.Errorf("failed to update extension request: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("extension request %s already decided: %w", req.ID, shared.ErrStaleState)
	}
	return nil
}
