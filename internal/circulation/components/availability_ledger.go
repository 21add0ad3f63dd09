package components

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/library-circulation/internal/circulation/service"
	"github.com/library-circulation/internal/domain/catalog"
	"github.com/library-circulation/internal/domain/loan"
	"github.com/library-circulation/internal/domain/reservation"
	"github.com/library-circulation/internal/domain/shared"
	"github.com/library-circulation/internal/logger"
)

// AvailabilityLedgerImpl decides who gets a copy. A copy is claimable only
// when it has no open loan and no confirmed hold; a free copy goes to the
// head of its title's queue before any walk-in request.
type AvailabilityLedgerImpl struct {
	loanRepo        loan.Repository
	reservationRepo reservation.Repository
	catalogRepo     catalog.Repository
	holdWindow      time.Duration
	logger          *slog.Logger
}

func NewAvailabilityLedger(
	loanRepo loan.Repository,
	reservationRepo reservation.Repository,
	catalogRepo catalog.Repository,
	holdWindow time.Duration,
	logger *slog.Logger,
) service.AvailabilityLedger {
	return &AvailabilityLedgerImpl{
		loanRepo:        loanRepo,
		reservationRepo: reservationRepo,
		catalogRepo:     catalogRepo,
		holdWindow:      holdWindow,
		logger:          logger,
	}
}

func unavailable(c *catalog.Copy, why string) error {
	return fmt.Errorf("copy %s %s: %w", c.ID, why, shared.ErrUnavailable)
}

// TryClaim creates a pending loan for the borrower or reports why it cannot.
// When the borrower is not first in line for a free copy, the copy is
// confirmed to the queue head and returned as Diverted. A borrower holding
// another copy of the title takes this one against the hold, and the held
// copy goes back to the queue.
func (m *AvailabilityLedgerImpl) TryClaim(ctx context.Context, tx pgx.Tx, c *catalog.Copy, borrowerID uuid.UUID, now time.Time) (*service.ClaimOutcome, error) {
	loanRepoTx := m.loanRepo.WithTx(tx)
	reservationRepoTx := m.reservationRepo.WithTx(tx)

	if c.Withdrawn() {
		return nil, unavailable(c, "is withdrawn")
	}
	open, err := loanRepoTx.GetOpenByCopy(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	if open != nil {
		return nil, unavailable(c, "is on loan")
	}

	hold, err := reservationRepoTx.GetHoldByCopy(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	if hold != nil {
		if hold.BorrowerID != borrowerID {
			return nil, unavailable(c, "is held for another borrower")
		}
		return m.fulfill(ctx, loanRepoTx, reservationRepoTx, c, hold, now)
	}

	own, err := reservationRepoTx.GetActiveForBorrower(ctx, borrowerID, c.TitleID)
	if err != nil {
		return nil, err
	}
	if own != nil && own.Status == reservation.StatusConfirmed && own.HeldCopyID != nil && *own.HeldCopyID != c.ID {
		return m.transferHold(ctx, tx, c, own, now)
	}

	queued, err := reservationRepoTx.ListQueuedByTitle(ctx, c.TitleID)
	if err != nil {
		return nil, err
	}
	if head := reservation.NewQueue(c.TitleID, queued).NextEligible(); head != nil {
		if err := head.Confirm(c.ID, now, m.holdWindow); err != nil {
			return nil, err
		}
		if head.BorrowerID != borrowerID {
			if err := reservationRepoTx.Update(ctx, head); err != nil {
				return nil, err
			}
			return &service.ClaimOutcome{Diverted: head}, nil
		}
		return m.fulfill(ctx, loanRepoTx, reservationRepoTx, c, head, now)
	}

	l := loan.NewLoan(c.ID, c.TitleID, borrowerID, now)
	if err := loanRepoTx.Create(ctx, l); err != nil {
		return nil, err
	}
	return &service.ClaimOutcome{Loan: l}, nil
}

// fulfill converts the borrower's confirmed reservation into a pending loan
func (m *AvailabilityLedgerImpl) fulfill(
	ctx context.Context,
	loanRepoTx loan.Repository,
	reservationRepoTx reservation.Repository,
	c *catalog.Copy,
	res *reservation.Reservation,
	now time.Time,
) (*service.ClaimOutcome, error) {
	if err := res.Fulfill(now); err != nil {
		return nil, err
	}
	if err := reservationRepoTx.Update(ctx, res); err != nil {
		return nil, err
	}

	l := loan.NewLoan(c.ID, c.TitleID, res.BorrowerID, now)
	l.ReservationID = &res.ID
	if err := loanRepoTx.Create(ctx, l); err != nil {
		return nil, err
	}
	logger.FromContext(ctx, m.logger).Info("Reservation fulfilled",
		"reservation_id", res.ID.String(),
		"loan_id", l.ID.String(),
	)
	return &service.ClaimOutcome{Loan: l, Fulfilled: res}, nil
}

// transferHold fulfils the borrower's hold on another copy of the title with
// c instead and offers the copy it was holding to the queue
func (m *AvailabilityLedgerImpl) transferHold(ctx context.Context, tx pgx.Tx, c *catalog.Copy, res *reservation.Reservation, now time.Time) (*service.ClaimOutcome, error) {
	heldID := *res.HeldCopyID
	outcome, err := m.fulfill(ctx, m.loanRepo.WithTx(tx), m.reservationRepo.WithTx(tx), c, res, now)
	if err != nil {
		return nil, err
	}

	held, err := m.catalogRepo.WithTx(tx).LockForUpdate(ctx, heldID)
	if err != nil {
		return nil, err
	}
	if outcome.Released, err = m.Release(ctx, tx, held, now); err != nil {
		return nil, err
	}
	logger.FromContext(ctx, m.logger).Info("Hold moved to claimed copy",
		"reservation_id", res.ID.String(),
		"claimed_copy_id", c.ID.String(),
		"released_copy_id", heldID.String(),
	)
	return outcome, nil
}

// Release confirms a copy that just became free to the next reservation in line
func (m *AvailabilityLedgerImpl) Release(ctx context.Context, tx pgx.Tx, c *catalog.Copy, now time.Time) (*reservation.Reservation, error) {
	reservationRepoTx := m.reservationRepo.WithTx(tx)

	free, err := m.isFree(ctx, tx, c)
	if err != nil || !free {
		return nil, err
	}

	queued, err := reservationRepoTx.ListQueuedByTitle(ctx, c.TitleID)
	if err != nil {
		return nil, err
	}
	head := reservation.NewQueue(c.TitleID, queued).NextEligible()
	if head == nil {
		return nil, nil
	}
	if err := head.Confirm(c.ID, now, m.holdWindow); err != nil {
		return nil, err
	}
	if err := reservationRepoTx.Update(ctx, head); err != nil {
		return nil, err
	}

	logger.FromContext(ctx, m.logger).Info("Released copy confirmed to reservation",
		"copy_id", c.ID.String(),
		"reservation_id", head.ID.String(),
		"hold_expires_at", head.HoldExpiresAt,
	)
	return head, nil
}

// AllocateFreeCopies walks the title's copies and confirms each free one to
// the next queued reservation until either runs out
func (m *AvailabilityLedgerImpl) AllocateFreeCopies(ctx context.Context, tx pgx.Tx, titleID uuid.UUID, now time.Time) ([]*reservation.Reservation, error) {
	reservationRepoTx := m.reservationRepo.WithTx(tx)
	catalogRepoTx := m.catalogRepo.WithTx(tx)

	queued, err := reservationRepoTx.ListQueuedByTitle(ctx, titleID)
	if err != nil {
		return nil, err
	}
	queue := reservation.NewQueue(titleID, queued)
	if queue.Len() == 0 {
		return nil, nil
	}

	copies, err := catalogRepoTx.ListByTitle(ctx, titleID)
	if err != nil {
		return nil, err
	}

	var confirmed []*reservation.Reservation
	for _, listed := range copies {
		head := queue.NextEligible()
		if head == nil {
			break
		}
		if listed.Withdrawn() {
			continue
		}
		c, err := catalogRepoTx.LockForUpdate(ctx, listed.ID)
		if err != nil {
			return nil, err
		}
		free, err := m.isFree(ctx, tx, c)
		if err != nil {
			return nil, err
		}
		if !free {
			continue
		}

		if err := head.Confirm(c.ID, now, m.holdWindow); err != nil {
			return nil, err
		}
		if err := reservationRepoTx.Update(ctx, head); err != nil {
			return nil, err
		}
		queue.Remove(head.ID)
		confirmed = append(confirmed, head)
	}

	if len(confirmed) > 0 {
		logger.FromContext(ctx, m.logger).Info("Allocated free copies to queue",
			"title_id", titleID.String(),
			"confirmed", len(confirmed),
		)
	}
	return confirmed, nil
}

func (m *AvailabilityLedgerImpl) isFree(ctx context.Context, tx pgx.Tx, c *catalog.Copy) (bool, error) {
	if c.Withdrawn() {
		return false, nil
	}
	open, err := m.loanRepo.WithTx(tx).GetOpenByCopy(ctx, c.ID)
	if err != nil || open != nil {
		return false, err
	}
	hold, err := m.reservationRepo.WithTx(tx).GetHoldByCopy(ctx, c.ID)
	if err != nil {
		return false, err
	}
	return hold == nil, nil
}

// Availability derives the copy's state outside any transaction
func (m *AvailabilityLedgerImpl) Availability(ctx context.Context, c *catalog.Copy) (catalog.Availability, *loan.Loan, error) {
	open, err := m.loanRepo.GetOpenByCopy(ctx, c.ID)
	if err != nil {
		return "", nil, err
	}
	hold, err := m.reservationRepo.GetHoldByCopy(ctx, c.ID)
	if err != nil {
		return "", nil, err
	}
	return catalog.DeriveAvailability(c, open, hold != nil), open, nil
}
