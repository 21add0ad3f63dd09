package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/library-circulation/internal/domain/pickup"
	"github.com/library-circulation/internal/platform/persistence"
)

const pickupColumns = `id, loan_id, code, issued_at, expires_at, consumed_at, expired_at`

// PickupCodeRepository implements the pickup.Repository interface for PostgreSQL
type PickupCodeRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

func NewPickupCodeRepository(logger *slog.Logger, db *persistence.PostgresDB) pickup.Repository {
	return &PickupCodeRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

func (r *PickupCodeRepository) WithTx(tx pgx.Tx) pickup.Repository {
	return &PickupCodeRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create stores a freshly issued code. A value clash with another active code
// is reported as pickup.ErrCodeCollision so the caller can draw again.
func (r *PickupCodeRepository) Create(ctx context.Context, c *pickup.Code) error {
	query := `
		INSERT INTO pickup_codes (` + pickupColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.querier.Exec(ctx, query,
		c.ID,
		c.LoanID,
		c.Code,
		c.IssuedAt,
		c.ExpiresAt,
		c.ConsumedAt,
		c.ExpiredAt,
	)
	if err != nil {
		if persistence.IsUniqueViolation(err, "pickup_codes_active_code") {
			return pickup.ErrCodeCollision
		}
		r.logger.Error("Failed to create pickup code", "loan_id", c.LoanID.String(), "error", err)
		return fmt.Errorf("failed to create pickup code: %w", err)
	}
	return nil
}

func (r *PickupCodeRepository) GetActiveByLoan(ctx context.Context, loanID uuid.UUID) (*pickup.Code, error) {
	query := `
		SELECT ` + pickupColumns + `
		FROM pickup_codes
		WHERE loan_id = $1 AND consumed_at IS NULL AND expired_at IS NULL
		FOR UPDATE
	`

	var c pickup.Code
	err := r.querier.QueryRow(ctx, query, loanID).Scan(
		&c.ID,
		&c.LoanID,
		&c.Code,
		&c.IssuedAt,
		&c.ExpiresAt,
		&c.ConsumedAt,
		&c.ExpiredAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get active pickup code", "loan_id", loanID.String(), "error", err)
		return nil, fmt.Errorf("failed to get active pickup code: %w", err)
	}
	return &c, nil
}

func (r *PickupCodeRepository) ExistsActive(ctx context.Context, value string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM pickup_codes
			WHERE code = $1 AND consumed_at IS NULL AND expired_at IS NULL
		)
	`

	var exists bool
	if err := r.querier.QueryRow(ctx, query, value).Scan(&exists); err != nil {
		r.logger.Error("Failed to check pickup code", "error", err)
		return false, fmt.Errorf("failed to check pickup code: %w", err)
	}
	return exists, nil
}

// Update records consumption or expiry of the code
func (r *PickupCodeRepository) Update(ctx context.Context, c *pickup.Code) error {
	query := `
		UPDATE pickup_codes
		SET consumed_at = $1, expired_at = $2
		WHERE id = $3
	`

	result, err := r.querier.Exec(ctx, query, c.ConsumedAt, c.ExpiredAt, c.ID)
	if err != nil {
		r.logger.Error("Failed to update pickup code", "code_id", c.ID.String(), "error", err)
		return fmt.Errorf("failed to update pickup code: %w", err)
	}
	if result.RowsAffected() == 0 {
		return pickup.ErrCodeNotFound{ID: c.ID}
	}
	return nil
}

func (r *PickupCodeRepository) ListExpiredLoanIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	query := `
		SELECT loan_id
		FROM pickup_codes
		WHERE consumed_at IS NULL AND expired_at IS NULL AND expires_at < $1
		ORDER BY expires_at ASC
		LIMIT $2
	`

	ids, err := collectIDs(ctx, r.querier, query, now, limit)
	if err != nil {
		r.logger.Error("Failed to list expired pickup codes", "error", err)
		return nil, fmt.Errorf("failed to list expired pickup codes: %w", err)
	}
	return ids, nil
}
