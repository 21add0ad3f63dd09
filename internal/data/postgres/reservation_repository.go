package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/library-circulation/internal/domain/reservation"
	"github.com/library-circulation/internal/domain/shared"
	"github.com/library-circulation/internal/platform/persistence"
)

const reservationColumns = `id, title_id, borrower_id, class, status, queued_at, confirmed_at, hold_expires_at,
		held_copy_id, closed_at, rejection_reason, version`

// ReservationRepository implements the reservation.Repository interface for PostgreSQL
type ReservationRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

func NewReservationRepository(logger *slog.Logger, db *persistence.PostgresDB) reservation.Repository {
	return &ReservationRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

func (r *ReservationRepository) WithTx(tx pgx.Tx) reservation.Repository {
	return &ReservationRepository{
		querier: tx,
		logger:  r.logger,
	}
}

func scanReservation(row pgx.Row) (*reservation.Reservation, error) {
	var res reservation.Reservation
	err := row.Scan(
		&res.ID,
		&res.TitleID,
		&res.BorrowerID,
		&res.Class,
		&res.Status,
		&res.QueuedAt,
		&res.ConfirmedAt,
		&res.HoldExpiresAt,
		&res.HeldCopyID,
		&res.ClosedAt,
		&res.RejectionReason,
		&res.Version,
	)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Create inserts a queued reservation; a second active one for the same
// borrower and title violates reservations_one_active_per_borrower
func (r *ReservationRepository) Create(ctx context.Context, res *reservation.Reservation) error {
	query := `
		INSERT INTO reservations (` + reservationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.querier.Exec(ctx, query,
		res.ID,
		res.TitleID,
		res.BorrowerID,
		res.Class,
		res.Status,
		res.QueuedAt,
		res.ConfirmedAt,
		res.HoldExpiresAt,
		res.HeldCopyID,
		res.ClosedAt,
		res.RejectionReason,
		res.Version,
	)
	if err != nil {
		if persistence.IsUniqueViolation(err, "reservations_one_active_per_borrower") {
			return fmt.Errorf("borrower %s, title %s: %w", res.BorrowerID, res.TitleID, shared.ErrDuplicateReservation)
		}
		r.logger.Error("Failed to create reservation", "title_id", res.TitleID.String(), "error", err)
		return fmt.Errorf("failed to create reservation: %w", err)
	}
	return nil
}

func (r *ReservationRepository) GetByID(ctx context.Context, id uuid.UUID) (*reservation.Reservation, error) {
	query := `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE id = $1
	`

	res, err := scanReservation(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, reservation.ErrReservationNotFound{ID: id}
		}
		r.logger.Error("Failed to get reservation", "reservation_id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	return res, nil
}

func (r *ReservationRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*reservation.Reservation, error) {
	query := `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE id = $1
		FOR UPDATE
	`

	res, err := scanReservation(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, reservation.ErrReservationNotFound{ID: id}
		}
		r.logger.Error("Failed to lock reservation for update", "reservation_id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to lock reservation for update: %w", err)
	}
	return res, nil
}

// Update writes the reservation if its version is unchanged and bumps it
func (r *ReservationRepository) Update(ctx context.Context, res *reservation.Reservation) error {
	query := `
		UPDATE reservations
		SET status = $1, confirmed_at = $2, hold_expires_at = $3, held_copy_id = $4, closed_at = $5,
			rejection_reason = $6, version = version + 1
		WHERE id = $7 AND version = $8
	`

	result, err := r.querier.Exec(ctx, query,
		res.Status,
		res.ConfirmedAt,
		res.HoldExpiresAt,
		res.HeldCopyID,
		res.ClosedAt,
		res.RejectionReason,
		res.ID,
		res.Version,
	)
	if err != nil {
		r.logger.Error("Failed to update reservation", "reservation_id", res.ID.String(), "error", err)
		return fmt.Errorf("failed to update reservation: %w", err)
	}
	if result.RowsAffected() == 0 {
		return reservation.ErrConcurrentModification{ID: res.ID}
	}

	res.Version++
	return nil
}

// ListQueuedByTitle returns the title's waiting list in queue order
func (r *ReservationRepository) ListQueuedByTitle(ctx context.Context, titleID uuid.UUID) ([]*reservation.Reservation, error) {
	query := `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE title_id = $1 AND status = 'queued'
		ORDER BY CASE class WHEN 'priority' THEN 0 ELSE 1 END, queued_at, id
	`

	rows, err := r.querier.Query(ctx, query, titleID)
	if err != nil {
		r.logger.Error("Failed to list queued reservations", "title_id", titleID.String(), "error", err)
		return nil, fmt.Errorf("failed to list queued reservations: %w", err)
	}
	defer rows.Close()

	var out []*reservation.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over reservations: %w", err)
	}
	return out, nil
}

func (r *ReservationRepository) GetHoldByCopy(ctx context.Context, copyID uuid.UUID) (*reservation.Reservation, error) {
	query := `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE held_copy_id = $1 AND status = 'confirmed'
	`
	return r.getOptional(ctx, "get hold for copy", query, copyID)
}

func (r *ReservationRepository) GetActiveForBorrower(ctx context.Context, borrowerID, titleID uuid.UUID) (*reservation.Reservation, error) {
	query := `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE borrower_id = $1 AND title_id = $2 AND status IN ('queued', 'confirmed')
	`
	return r.getOptional(ctx, "get active reservation for borrower", query, borrowerID, titleID)
}

func (r *ReservationRepository) getOptional(ctx context.Context, op, query string, args ...interface{}) (*reservation.Reservation, error) {
	res, err := scanReservation(r.querier.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to "+op, "error", err)
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	return res, nil
}

func (r *ReservationRepository) ListLapsedHoldIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	query := `
		SELECT id
		FROM reservations
		WHERE status = 'confirmed' AND hold_expires_at < $1
		ORDER BY hold_expires_at ASC
		LIMIT $2
	`

	ids, err := collectIDs(ctx, r.querier, query, now, limit)
	if err != nil {
		r.logger.Error("Failed to list lapsed holds", "error", err)
		return nil, fmt.Errorf("failed to list lapsed holds: %w", err)
	}
	return ids, nil
}
