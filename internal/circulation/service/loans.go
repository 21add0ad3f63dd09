package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/library-circulation/internal/domain/access"
	"github.com/library-circulation/internal/domain/event"
	"github.com/library-circulation/internal/domain/loan"
	"github.com/library-circulation/internal/domain/pickup"
	"github.com/library-circulation/internal/domain/shared"
)

func loanEvent(t event.Type, l *loan.Loan, actor access.Actor, now time.Time, extra map[string]any) *event.Event {
	data := map[string]any{
		"copy_id":     l.CopyID.String(),
		"title_id":    l.TitleID.String(),
		"borrower_id": l.BorrowerID.String(),
		"status":      string(l.Status),
	}
	for k, v := range extra {
		data[k] = v
	}
	return event.New(t, event.AggregateLoan, l.ID, actor, now, data)
}

func (s *CirculationService) checkBorrowingLimits(ctx context.Context, ts *txScope, borrowerID, titleID uuid.UUID) error {
	open, err := ts.repos.Loans.CountOpenByBorrower(ctx, borrowerID)
	if err != nil {
		return err
	}
	if open >= s.rules.MaxOpenLoans {
		return fmt.Errorf("borrower %s has %d open loans: %w", borrowerID, open, shared.ErrBorrowLimitReached)
	}

	borrowing, err := ts.repos.Loans.HasOpenForTitle(ctx, borrowerID, titleID)
	if err != nil {
		return err
	}
	if borrowing {
		return fmt.Errorf("borrower %s, title %s: %w", borrowerID, titleID, shared.ErrAlreadyBorrowing)
	}
	return nil
}

func (s *CirculationService) RequestLoan(ctx context.Context, actor access.Actor, copyID, borrowerID uuid.UUID) (*LoanView, error) {
	if err := access.AuthorizeBorrower(actor, borrowerID); err != nil {
		return nil, err
	}

	logger := s.log(ctx)
	now := s.clock.Now()
	var created *loan.Loan

	err := s.inTx(ctx, func(ts *txScope) error {
		c, err := ts.repos.Catalog.GetByID(ctx, copyID)
		if err != nil {
			return err
		}
		if _, err := ts.repos.Catalog.LockTitle(ctx, c.TitleID); err != nil {
			return err
		}
		if c, err = ts.repos.Catalog.LockForUpdate(ctx, copyID); err != nil {
			return err
		}
		if err := s.checkBorrowingLimits(ctx, ts, borrowerID, c.TitleID); err != nil {
			return err
		}

		outcome, err := s.ledger.TryClaim(ctx, ts.tx, c, borrowerID, now)
		if err != nil {
			return err
		}
		if outcome.Diverted != nil {
			logger.Info("Copy diverted to reservation queue",
				"copy_id", copyID.String(),
				"reservation_id", outcome.Diverted.ID.String(),
			)
			if err := s.record(ctx, ts, reservationConfirmed(outcome.Diverted, access.System)); err != nil {
				return err
			}
			return commitThen(fmt.Errorf("copy %s went to the head of the reservation queue: %w", copyID, shared.ErrUnavailable))
		}

		created = outcome.Loan
		events := []*event.Event{loanEvent(event.LoanRequested, created, actor, now, nil)}
		if res := outcome.Fulfilled; res != nil {
			events = append(events, event.New(event.ReservationFulfilled, event.AggregateReservation, res.ID, actor, now,
				map[string]any{"loan_id": created.ID.String(), "copy_id": copyID.String()}))
		}
		if outcome.Released != nil {
			events = append(events, reservationConfirmed(outcome.Released, access.System))
		}
		return s.record(ctx, ts, events...)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Loan requested",
		"loan_id", created.ID.String(),
		"copy_id", copyID.String(),
		"borrower_id", borrowerID.String(),
	)
	return newLoanView(created, nil, nil, now), nil
}

func (s *CirculationService) ApproveLoan(ctx context.Context, actor access.Actor, loanID uuid.UUID) (*ApprovalView, error) {
	if err := access.Authorize(actor, access.CapApproveLoan); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var view *ApprovalView

	err := s.inTx(ctx, func(ts *txScope) error {
		l, err := ts.repos.Loans.LockForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		title, err := ts.repos.Catalog.GetTitle(ctx, l.TitleID)
		if err != nil {
			return err
		}
		if err := l.Approve(now, title.LoanPeriod(s.rules.LoanPeriodDays)); err != nil {
			return err
		}
		if err := ts.repos.Loans.Update(ctx, l); err != nil {
			return err
		}

		code, err := s.desk.Issue(ctx, ts.tx, l, now)
		if err != nil {
			return err
		}

		view = &ApprovalView{Loan: newLoanView(l, nil, nil, now), PickupCode: code}
		return s.record(ctx, ts, loanEvent(event.LoanApproved, l, actor, now, map[string]any{
			"due_at":            *l.DueAt,
			"pickup_expires_at": code.ExpiresAt,
		}))
	})
	if err != nil {
		return nil, err
	}

	s.log(ctx).Info("Loan approved", "loan_id", loanID.String(), "due_at", view.Loan.Loan.DueAt)
	return view, nil
}

func (s *CirculationService) RejectLoan(ctx context.Context, actor access.Actor, loanID uuid.UUID, reason string) (*LoanView, error) {
	if err := access.Authorize(actor, access.CapRejectLoan); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var rejected *loan.Loan

	err := s.inTx(ctx, func(ts *txScope) error {
		scope, err := s.lockLoan(ctx, ts, loanID)
		if err != nil {
			return err
		}
		l := scope.loan
		if err := l.Reject(reason, now); err != nil {
			return err
		}
		if err := ts.repos.Loans.Update(ctx, l); err != nil {
			return err
		}

		released, err := s.release(ctx, ts, scope.copy)
		if err != nil {
			return err
		}
		rejected = l
		events := append([]*event.Event{loanEvent(event.LoanRejected, l, actor, now, map[string]any{"reason": reason})}, released...)
		return s.record(ctx, ts, events...)
	})
	if err != nil {
		return nil, err
	}

	s.log(ctx).Info("Loan rejected", "loan_id", loanID.String())
	return newLoanView(rejected, nil, nil, now), nil
}

// CancelLoan withdraws a pending request. Staff may also cancel an approved
// loan whose borrower never showed up, which voids its pickup code. A
// borrower whose loan already moved past pending gets shared.ErrStaleState.
func (s *CirculationService) CancelLoan(ctx context.Context, actor access.Actor, loanID uuid.UUID) (*LoanView, error) {
	now := s.clock.Now()
	var cancelled *loan.Loan

	err := s.inTx(ctx, func(ts *txScope) error {
		scope, err := s.lockLoan(ctx, ts, loanID)
		if err != nil {
			return err
		}
		l := scope.loan
		if err := access.AuthorizeBorrower(actor, l.BorrowerID); err != nil {
			return err
		}

		reason := "withdrawn"
		staff := actor.Can(access.CapCancelApprovedLoan)
		switch {
		case l.Status == loan.StatusPending:
		case l.Status == loan.StatusApproved && staff:
			if _, err := s.desk.Void(ctx, ts.tx, l.ID, now); err != nil {
				return err
			}
			reason = "no_show"
		case !staff:
			return fmt.Errorf("loan %s is already %s: %w", l.ID, l.Status, shared.ErrStaleState)
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
		cancelled = l
		events := append([]*event.Event{loanEvent(event.LoanCancelled, l, actor, now, map[string]any{"reason": reason})}, released...)
		return s.record(ctx, ts, events...)
	})
	if err != nil {
		return nil, err
	}

	s.log(ctx).Info("Loan cancelled", "loan_id", loanID.String())
	return newLoanView(cancelled, nil, nil, now), nil
}

func (s *CirculationService) RedeemPickup(ctx context.Context, actor access.Actor, loanID uuid.UUID, code string) (*LoanView, error) {
	logger := s.log(ctx)
	now := s.clock.Now()
	var activated *loan.Loan

	err := s.inTx(ctx, func(ts *txScope) error {
		scope, err := s.lockLoan(ctx, ts, loanID)
		if err != nil {
			return err
		}
		l := scope.loan
		if err := access.AuthorizeBorrower(actor, l.BorrowerID); err != nil {
			return err
		}

		result, err := s.desk.Redeem(ctx, ts.tx, l, code, now)
		if err != nil {
			return err
		}

		switch result {
		case pickup.ResultSuccess:
			if err := l.Activate(now); err != nil {
				return err
			}
			if err := ts.repos.Loans.Update(ctx, l); err != nil {
				return err
			}
			activated = l
			return s.record(ctx, ts, loanEvent(event.LoanActivated, l, actor, now, map[string]any{"due_at": *l.DueAt}))

		case pickup.ResultExpired:
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
			events := append([]*event.Event{loanEvent(event.LoanCancelled, l, actor, now, map[string]any{"reason": "pickup_expired"})}, released...)
			if err := s.record(ctx, ts, events...); err != nil {
				return err
			}
			logger.Warn("Expired pickup code presented, loan cancelled", "loan_id", l.ID.String())
			return commitThen(fmt.Errorf("pickup code for loan %s: %w", l.ID, shared.ErrExpiredCode))

		default:
			return fmt.Errorf("pickup code for loan %s: %w", l.ID, shared.ErrInvalidCode)
		}
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Loan activated", "loan_id", loanID.String())
	return newLoanView(activated, nil, nil, now), nil
}

// ReturnLoan closes an active or overdue loan, assesses the overdue fine for
// whole days late and, when flagged, the damage fine, then offers the copy to
// the reservation queue.
func (s *CirculationService) ReturnLoan(ctx context.Context, actor access.Actor, loanID uuid.UUID, damaged bool) (*LoanView, error) {
	if damaged {
		if err := access.Authorize(actor, access.CapFlagDamage); err != nil {
			return nil, err
		}
	}

	now := s.clock.Now()
	var view *LoanView

	err := s.inTx(ctx, func(ts *txScope) error {
		scope, err := s.lockLoan(ctx, ts, loanID)
		if err != nil {
			return err
		}
		l := scope.loan
		if err := access.AuthorizeBorrower(actor, l.BorrowerID); err != nil {
			return err
		}

		if err := l.Return(now, damaged); err != nil {
			return err
		}
		if err := ts.repos.Loans.Update(ctx, l); err != nil {
			return err
		}
		events := []*event.Event{loanEvent(event.LoanReturned, l, actor, now, map[string]any{
			"days_overdue": l.DaysOverdue(now),
			"damaged":      damaged,
		})}

		overdue, changed, err := s.assessor.AssessOverdue(ctx, ts.tx, l, now)
		if err != nil {
			return err
		}
		if changed {
			events = append(events, fineAssessed(overdue, actor))
		}
		if damaged {
			damage, changed, err := s.assessor.AssessDamage(ctx, ts.tx, l, scope.copy.PriceCents, now)
			if err != nil {
				return err
			}
			if changed {
				events = append(events, fineAssessed(damage, actor))
			}
		}

		released, err := s.release(ctx, ts, scope.copy)
		if err != nil {
			return err
		}
		if err := s.record(ctx, ts, append(events, released...)...); err != nil {
			return err
		}

		fines, err := ts.repos.Fines.ListByLoan(ctx, l.ID)
		if err != nil {
			return err
		}
		view = newLoanView(l, fines, nil, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log(ctx).Info("Loan returned",
		"loan_id", loanID.String(),
		"days_overdue", view.DaysOverdue,
		"damaged", damaged,
	)
	return view, nil
}

func (s *CirculationService) RequestExtension(ctx context.Context, actor access.Actor, loanID uuid.UUID) (*loan.ExtensionRequest, error) {
	now := s.clock.Now()
	var req *loan.ExtensionRequest

	err := s.inTx(ctx, func(ts *txScope) error {
		l, err := ts.repos.Loans.LockForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		if err := access.AuthorizeBorrower(actor, l.BorrowerID); err != nil {
			return err
		}
		if err := l.CheckExtendable(); err != nil {
			return err
		}

		pending, err := ts.repos.Extensions.GetPendingByLoan(ctx, l.ID)
		if err != nil {
			return err
		}
		if pending != nil {
			return fmt.Errorf("loan %s: %w", l.ID, shared.ErrExtensionAlreadyRequested)
		}

		req = loan.NewExtensionRequest(l.ID, now)
		if err := ts.repos.Extensions.Create(ctx, req); err != nil {
			return err
		}
		return s.record(ctx, ts, loanEvent(event.LoanExtensionRequested, l, actor, now, map[string]any{
			"extension_id": req.ID.String(),
		}))
	})
	if err != nil {
		return nil, err
	}

	s.log(ctx).Info("Extension requested", "loan_id", loanID.String(), "extension_id", req.ID.String())
	return req, nil
}

// ApproveExtension grants the loan's single extension. It fails with
// shared.ErrExtensionAlreadyUsed when one was granted before and with
// shared.ErrIllegalTransition when the loan is no longer active.
func (s *CirculationService) ApproveExtension(ctx context.Context, actor access.Actor, extensionID uuid.UUID) (*LoanView, error) {
	if err := access.Authorize(actor, access.CapDecideExtension); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var extended *loan.Loan

	err := s.inTx(ctx, func(ts *txScope) error {
		req, err := ts.repos.Extensions.GetByID(ctx, extensionID)
		if err != nil {
			return err
		}
		l, err := ts.repos.Loans.LockForUpdate(ctx, req.LoanID)
		if err != nil {
			return err
		}
		if req, err = ts.repos.Extensions.LockForUpdate(ctx, extensionID); err != nil {
			return err
		}

		if err := req.Approve(actor.ID, now); err != nil {
			return err
		}
		if err := l.Extend(s.rules.ExtensionDays); err != nil {
			return err
		}
		if err := ts.repos.Loans.Update(ctx, l); err != nil {
			return err
		}
		if err := ts.repos.Extensions.Update(ctx, req); err != nil {
			return err
		}

		extended = l
		return s.record(ctx, ts, loanEvent(event.LoanExtended, l, actor, now, map[string]any{
			"extension_id": req.ID.String(),
			"due_at":       *l.DueAt,
		}))
	})
	if err != nil {
		return nil, err
	}

	s.log(ctx).Info("Extension approved", "loan_id", extended.ID.String(), "due_at", extended.DueAt)
	return newLoanView(extended, nil, nil, now), nil
}

func (s *CirculationService) RejectExtension(ctx context.Context, actor access.Actor, extensionID uuid.UUID, reason string) (*loan.ExtensionRequest, error) {
	if err := access.Authorize(actor, access.CapDecideExtension); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var req *loan.ExtensionRequest

	err := s.inTx(ctx, func(ts *txScope) error {
		var err error
		if req, err = ts.repos.Extensions.LockForUpdate(ctx, extensionID); err != nil {
			return err
		}
		if err := req.Reject(actor.ID, reason, now); err != nil {
			return err
		}
		if err := ts.repos.Extensions.Update(ctx, req); err != nil {
			return err
		}

		l, err := ts.repos.Loans.GetByID(ctx, req.LoanID)
		if err != nil {
			return err
		}
		return s.record(ctx, ts, loanEvent(event.LoanExtensionRejected, l, actor, now, map[string]any{
			"extension_id": req.ID.String(),
			"reason":       reason,
		}))
	})
	if err != nil {
		return nil, err
	}

	s.log(ctx).Info("Extension rejected", "extension_id", extensionID.String())
	return req, nil
}

func (s *CirculationService) GetLoan(ctx context.Context, actor access.Actor, loanID uuid.UUID) (*LoanView, error) {
	l, err := s.repos.Loans.GetByID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if err := access.AuthorizeBorrower(actor, l.BorrowerID); err != nil {
		return nil, err
	}

	fines, err := s.repos.Fines.ListByLoan(ctx, l.ID)
	if err != nil {
		return nil, err
	}
	pending, err := s.repos.Extensions.GetPendingByLoan(ctx, l.ID)
	if err != nil {
		return nil, err
	}
	return newLoanView(l, fines, pending, s.clock.Now()), nil
}
