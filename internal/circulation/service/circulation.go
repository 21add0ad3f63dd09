// Package service runs the circulation use cases. Each copy-affecting
// operation executes in one database transaction that takes the title, copy
// and record locks in that order, applies the transition, its side effects
// and the outbox events, and commits them together.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/library-circulation/internal/config"
	"github.com/library-circulation/internal/domain/access"
	"github.com/library-circulation/internal/domain/catalog"
	"github.com/library-circulation/internal/domain/event"
	"github.com/library-circulation/internal/domain/fine"
	"github.com/library-circulation/internal/domain/loan"
	"github.com/library-circulation/internal/domain/pickup"
	"github.com/library-circulation/internal/domain/reservation"
	"github.com/library-circulation/internal/domain/shared"
	"github.com/library-circulation/internal/domain/timeline"
	"github.com/library-circulation/internal/logger"
	"github.com/library-circulation/internal/platform/persistence"
)

// Repositories groups the stores the service reads and writes
type Repositories struct {
	Loans        loan.Repository
	Extensions   loan.ExtensionRepository
	Reservations reservation.Repository
	Fines        fine.Repository
	Catalog      catalog.Repository
	PickupCodes  pickup.Repository
}

func (r Repositories) withTx(tx pgx.Tx) Repositories {
	return Repositories{
		Loans:        r.Loans.WithTx(tx),
		Extensions:   r.Extensions.WithTx(tx),
		Reservations: r.Reservations.WithTx(tx),
		Fines:        r.Fines.WithTx(tx),
		Catalog:      r.Catalog.WithTx(tx),
		PickupCodes:  r.PickupCodes.WithTx(tx),
	}
}

// Components are the collaborators each transition delegates to
type Components struct {
	Ledger   AvailabilityLedger
	Desk     PickupDesk
	Assessor FineAssessor
	Recorder EventRecorder
}

// CirculationService implements Circulation and LifecycleService
type CirculationService struct {
	db       persistence.Transactor
	repos    Repositories
	timeline timeline.Repository
	ledger   AvailabilityLedger
	desk     PickupDesk
	assessor FineAssessor
	recorder EventRecorder
	clock    shared.Clock
	rules    config.CirculationConfig
	logger   *slog.Logger
}

var (
	_ Circulation      = (*CirculationService)(nil)
	_ LifecycleService = (*CirculationService)(nil)
)

func NewCirculationService(
	db persistence.Transactor,
	repos Repositories,
	timelineRepo timeline.Repository,
	components Components,
	clock shared.Clock,
	rules config.CirculationConfig,
	logger *slog.Logger,
) *CirculationService {
	return &CirculationService{
		db:       db,
		repos:    repos,
		timeline: timelineRepo,
		ledger:   components.Ledger,
		desk:     components.Desk,
		assessor: components.Assessor,
		recorder: components.Recorder,
		clock:    clock,
		rules:    rules,
		logger:   logger,
	}
}

// txScope is what a transition sees inside its transaction
type txScope struct {
	tx    pgx.Tx
	repos Repositories
}

// committedError carries an outcome the caller must see although the
// transaction that produced it commits
type committedError struct {
	err error
}

func (e *committedError) Error() string { return e.err.Error() }
func (e *committedError) Unwrap() error { return e.err }

// commitThen marks err to be returned after the transaction commits instead
// of rolling it back
func commitThen(err error) error {
	return &committedError{err: err}
}

// inTx runs fn in one transaction with repositories bound to it. An error
// wrapped by commitThen keeps the transaction's effects and is returned after
// the commit; any other error rolls back.
func (s *CirculationService) inTx(ctx context.Context, fn func(ts *txScope) error) error {
	var committed *committedError
	err := s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		committed = nil
		err := fn(&txScope{tx: tx, repos: s.repos.withTx(tx)})
		if errors.As(err, &committed) {
			return nil
		}
		return err
	})
	if err != nil {
		return err
	}
	if committed != nil {
		return committed.err
	}
	return nil
}

func (s *CirculationService) record(ctx context.Context, ts *txScope, events ...*event.Event) error {
	if len(events) == 0 {
		return nil
	}
	if err := s.recorder.Record(ctx, ts.tx, events...); err != nil {
		return fmt.Errorf("failed to record events: %w", err)
	}
	return nil
}

func (s *CirculationService) log(ctx context.Context) *slog.Logger {
	return logger.FromContext(ctx, s.logger)
}

// loanScope holds the rows locked for a transition that may free a copy
type loanScope struct {
	title *catalog.Title
	copy  *catalog.Copy
	loan  *loan.Loan
}

// lockLoan takes the title, copy and loan locks in that order and returns
// the loan as it is under the lock
func (s *CirculationService) lockLoan(ctx context.Context, ts *txScope, loanID uuid.UUID) (*loanScope, error) {
	l, err := ts.repos.Loans.GetByID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	title, err := ts.repos.Catalog.LockTitle(ctx, l.TitleID)
	if err != nil {
		return nil, err
	}
	c, err := ts.repos.Catalog.LockForUpdate(ctx, l.CopyID)
	if err != nil {
		return nil, err
	}
	l, err = ts.repos.Loans.LockForUpdate(ctx, loanID)
	if err != nil {
		return nil, err
	}
	return &loanScope{title: title, copy: c, loan: l}, nil
}

// reservationScope holds the rows locked for a reservation transition; copy is
// set when the reservation holds one
type reservationScope struct {
	copy        *catalog.Copy
	reservation *reservation.Reservation
}

// lockReservation takes the title lock, then the held copy if any, then the
// reservation. Holds only change under the title lock, so the copy read after
// taking it is stable.
func (s *CirculationService) lockReservation(ctx context.Context, ts *txScope, reservationID uuid.UUID) (*reservationScope, error) {
	res, err := ts.repos.Reservations.GetByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if _, err := ts.repos.Catalog.LockTitle(ctx, res.TitleID); err != nil {
		return nil, err
	}
	res, err = ts.repos.Reservations.GetByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}

	scope := &reservationScope{}
	if res.Status == reservation.StatusConfirmed && res.HeldCopyID != nil {
		if scope.copy, err = ts.repos.Catalog.LockForUpdate(ctx, *res.HeldCopyID); err != nil {
			return nil, err
		}
	}
	if scope.reservation, err = ts.repos.Reservations.LockForUpdate(ctx, reservationID); err != nil {
		return nil, err
	}
	return scope, nil
}

// release hands a freed copy to the queue and returns the events to record.
// Queue advancement is attributed to the system actor.
func (s *CirculationService) release(ctx context.Context, ts *txScope, c *catalog.Copy) ([]*event.Event, error) {
	confirmed, err := s.ledger.Release(ctx, ts.tx, c, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to release copy %s: %w", c.ID, err)
	}
	if confirmed == nil {
		return nil, nil
	}
	return []*event.Event{reservationConfirmed(confirmed, access.System)}, nil
}

func reservationConfirmed(res *reservation.Reservation, actor access.Actor) *event.Event {
	data := map[string]any{
		"title_id":    res.TitleID.String(),
		"borrower_id": res.BorrowerID.String(),
	}
	if res.HeldCopyID != nil {
		data["copy_id"] = res.HeldCopyID.String()
	}
	if res.HoldExpiresAt != nil {
		data["hold_expires_at"] = *res.HoldExpiresAt
	}
	return event.New(event.ReservationConfirmed, event.AggregateReservation, res.ID, actor, *res.ConfirmedAt, data)
}

func fineAssessed(f *fine.Fine, actor access.Actor) *event.Event {
	return event.New(event.FineAssessed, event.AggregateFine, f.ID, actor, f.ComputedAt, map[string]any{
		"loan_id":      f.LoanID.String(),
		"reason":       string(f.Reason),
		"amount":       f.Amount(),
		"days_overdue": f.DaysOverdue,
	})
}
