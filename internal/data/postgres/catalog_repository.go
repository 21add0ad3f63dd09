package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/library-circulation/internal/domain/catalog"
	"github.com/library-circulation/internal/platform/persistence"
)

const copyColumns = `id, title_id, branch_id, barcode, price_cents, withdrawn_at, created_at`

// CatalogRepository reads titles and copies written by catalog intake
type CatalogRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

func NewCatalogRepository(logger *slog.Logger, db *persistence.PostgresDB) catalog.Repository {
	return &CatalogRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

func (r *CatalogRepository) WithTx(tx pgx.Tx) catalog.Repository {
	return &CatalogRepository{
		querier: tx,
		logger:  r.logger,
	}
}

func scanCopy(row pgx.Row) (*catalog.Copy, error) {
	var c catalog.Copy
	err := row.Scan(
		&c.ID,
		&c.TitleID,
		&c.BranchID,
		&c.Barcode,
		&c.PriceCents,
		&c.WithdrawnAt,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CatalogRepository) GetByID(ctx context.Context, id uuid.UUID) (*catalog.Copy, error) {
	query := `
		SELECT ` + copyColumns + `
		FROM copies
		WHERE id = $1
	`
	return r.getCopy(ctx, "get copy", query, id)
}

// LockForUpdate serializes claims on one copy
func (r *CatalogRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*catalog.Copy, error) {
	query := `
		SELECT ` + copyColumns + `
		FROM copies
		WHERE id = $1
		FOR UPDATE
	`
	return r.getCopy(ctx, "lock copy for update", query, id)
}

func (r *CatalogRepository) getCopy(ctx context.Context, op, query string, id uuid.UUID) (*catalog.Copy, error) {
	c, err := scanCopy(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrCopyNotFound{ID: id}
		}
		r.logger.Error("Failed to "+op, "copy_id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	return c, nil
}

// ListByTitle returns the title's copies in intake order
func (r *CatalogRepository) ListByTitle(ctx context.Context, titleID uuid.UUID) ([]*catalog.Copy, error) {
	query := `
		SELECT ` + copyColumns + `
		FROM copies
		WHERE title_id = $1
		ORDER BY created_at, id
	`

	rows, err := r.querier.Query(ctx, query, titleID)
	if err != nil {
		r.logger.Error("Failed to list copies", "title_id", titleID.String(), "error", err)
		return nil, fmt.Errorf("failed to list copies: %w", err)
	}
	defer rows.Close()

	var copies []*catalog.Copy
	for rows.Next() {
		c, err := scanCopy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan copy: %w", err)
		}
		copies = append(copies, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over copies: %w", err)
	}
	return copies, nil
}

func (r *CatalogRepository) GetTitle(ctx context.Context, id uuid.UUID) (*catalog.Title, error) {
	query := `
		SELECT id, name, loan_period_days
		FROM titles
		WHERE id = $1
	`
	return r.getTitle(ctx, "get title", query, id)
}

// LockTitle takes the title row lock that orders every queue operation of the title
func (r *CatalogRepository) LockTitle(ctx context.Context, id uuid.UUID) (*catalog.Title, error) {
	query := `
		SELECT id, name, loan_period_days
		FROM titles
		WHERE id = $1
		FOR UPDATE
	`
	return r.getTitle(ctx, "lock title", query, id)
}

func (r *CatalogRepository) getTitle(ctx context.Context, op, query string, id uuid.UUID) (*catalog.Title, error) {
	var t catalog.Title
	err := r.querier.QueryRow(ctx, query, id).Scan(&t.ID, &t.Name, &t.LoanPeriodDays)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrTitleNotFound{ID: id}
		}
		r.logger.Error("Failed to "+op, "title_id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	return &t, nil
}

func (r *CatalogRepository) MarkWithdrawn(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE copies
		SET withdrawn_at = $1
		WHERE id = $2 AND withdrawn_at IS NULL
	`

	result, err := r.querier.Exec(ctx, query, at, id)
	if err != nil {
		r.logger.Error("Failed to withdraw copy", "copy_id", id.String(), "error", err)
		return fmt.Errorf("failed to withdraw copy: %w", err)
	}
	if result.RowsAffected() == 0 {
		return catalog.ErrCopyNotFound{ID: id}
	}
	return nil
}
