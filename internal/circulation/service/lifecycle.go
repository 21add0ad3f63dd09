package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/library-circulation/internal/domain/access"
	"github.com/library-circulation/internal/domain/event"
	"github.com/library-circulation/internal/domain/loan"
)

// FlagOverdue moves an active loan past its due date to overdue and assesses
// the fine accrued so far
func (s *CirculationService) FlagOverdue(ctx context.Context, loanID uuid.UUID) (bool, error) {
	now := s.clock.Now()
	var changed bool

	err := s.inTx(ctx, func(ts *txScope) error {
		l, err := ts.repos.Loans.LockForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		if changed, err = l.MarkOverdue(now); err != nil || !changed {
			return err
		}
		if err := ts.repos.Loans.Update(ctx, l); err != nil {
			return err
		}

		events := []*event.Event{loanEvent(event.LoanOverdue, l, access.System, now, map[string]any{
			"due_at":       *l.DueAt,
			"days_overdue": l.DaysOverdue(now),
		})}
		f, assessed, err := s.assessor.AssessOverdue(ctx, ts.tx, l, now)
		if err != nil {
			return err
		}
		if assessed {
			events = append(events, fineAssessed(f, access.System))
		}
		return s.record(ctx, ts, events...)
	})
	if err != nil {
		return false, err
	}

	if changed {
		s.log(ctx).Info("Loan flagged overdue", "loan_id", loanID.String())
	}
	return changed, nil
}

// RefreshOverdueFine recomputes the unpaid overdue fine of a loan still out
func (s *CirculationService) RefreshOverdueFine(ctx context.Context, loanID uuid.UUID) (bool, error) {
	now := s.clock.Now()
	var changed bool

	err := s.inTx(ctx, func(ts *txScope) error {
		l, err := ts.repos.Loans.LockForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		if l.Status != loan.StatusOverdue {
			return nil
		}

		f, assessed, err := s.assessor.AssessOverdue(ctx, ts.tx, l, now)
		if err != nil || !assessed {
			return err
		}
		changed = true
		return s.record(ctx, ts, fineAssessed(f, access.System))
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

// ExpirePickup cancels an approved loan whose pickup window closed and hands
// the copy to the queue
func (s *CirculationService) ExpirePickup(ctx context.Context, loanID uuid.UUID) (bool, error) {
	now := s.clock.Now()
	var changed bool

	err := s.inTx(ctx, func(ts *txScope) error {
		scope, err := s.lockLoan(ctx, ts, loanID)
		if err != nil {
			return err
		}
		l := scope.loan
		if l.Status != loan.StatusApproved {
			return nil
		}
		expired, err := s.desk.Expire(ctx, ts.tx, l.ID, now)
		if err != nil || !expired {
			return err
		}

		if err := l.Cancel(now); err != nil {
			return err
		}
		if err := ts.repos.Loans.Update(ctx, l); err != nil {
			return err
		}
		released, err := s.release(ctx, ts, scope.copy)
		if err != nil {
			return err
		}
		changed = true
		events := append([]*event.Event{loanEvent(event.LoanCancelled, l, access.System, now, map[string]any{"reason": "pickup_expired"})}, released...)
		return s.record(ctx, ts, events...)
	})
	if err != nil {
		return false, err
	}

	if changed {
		s.log(ctx).Info("Pickup window expired, loan cancelled", "loan_id", loanID.String())
	}
	return changed, nil
}

// ExpireHold closes a confirmed reservation whose hold window lapsed and
// passes the copy on
func (s *CirculationService) ExpireHold(ctx context.Context, reservationID uuid.UUID) (bool, error) {
	now := s.clock.Now()
	var changed bool

	err := s.inTx(ctx, func(ts *txScope) error {
		scope, err := s.lockReservation(ctx, ts, reservationID)
		if err != nil {
			return err
		}
		res := scope.reservation
		if !res.HoldLapsed(now) {
			return nil
		}
		if err := res.Expire(now); err != nil {
			return err
		}
		if err := ts.repos.Reservations.Update(ctx, res); err != nil {
			return err
		}

		events := []*event.Event{reservationEvent(event.ReservationExpired, res, access.System, now, nil)}
		if scope.copy != nil {
			released, err := s.release(ctx, ts, scope.copy)
			if err != nil {
				return err
			}
			events = append(events, released...)
		}
		changed = true
		return s.record(ctx, ts, events...)
	})
	if err != nil {
		return false, err
	}

	if changed {
		s.log(ctx).Info("Reservation hold expired", "reservation_id", reservationID.String())
	}
	return changed, nil
}

func (s *CirculationService) ListOverdueCandidates(ctx context.Context, limit int) ([]uuid.UUID, error) {
	return s.repos.Loans.ListOverdueCandidateIDs(ctx, s.clock.Now(), limit)
}

func (s *CirculationService) ListOverdueLoans(ctx context.Context, limit int) ([]uuid.UUID, error) {
	return s.repos.Loans.ListStaleOverdueIDs(ctx, s.clock.Now(), limit)
}

func (s *CirculationService) ListExpiredPickups(ctx context.Context, limit int) ([]uuid.UUID, error) {
	return s.repos.PickupCodes.ListExpiredLoanIDs(ctx, s.clock.Now(), limit)
}

func (s *CirculationService) ListLapsedHolds(ctx context.Context, limit int) ([]uuid.UUID, error) {
	return s.repos.Reservations.ListLapsedHoldIDs(ctx, s.clock.Now(), limit)
}

