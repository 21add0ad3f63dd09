package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/library-circulation/internal/domain/access"
	"github.com/library-circulation/internal/domain/event"
	"github.com/library-circulation/internal/domain/fine"
	"github.com/library-circulation/internal/domain/shared"
)

func (s *CirculationService) GetFine(ctx context.Context, actor access.Actor, fineID uuid.UUID) (*FineView, error) {
	f, err := s.repos.Fines.GetByID(ctx, fineID)
	if err != nil {
		return nil, err
	}
	l, err := s.repos.Loans.GetByID(ctx, f.LoanID)
	if err != nil {
		return nil, err
	}
	if err := access.AuthorizeBorrower(actor, l.BorrowerID); err != nil {
		return nil, err
	}
	return &FineView{Fine: f, BorrowerID: l.BorrowerID}, nil
}

// PayFine records a payment taken at the desk. A paid fine is final; paying
// it again is shared.ErrIllegalTransition. An overdue fine keeps accruing
// while its loan is out and can be paid only once the loan is closed.
func (s *CirculationService) PayFine(ctx context.Context, actor access.Actor, fineID uuid.UUID) (*FineView, error) {
	if err := access.Authorize(actor, access.CapRecordPayment); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var view *FineView

	err := s.inTx(ctx, func(ts *txScope) error {
		f, err := ts.repos.Fines.LockForUpdate(ctx, fineID)
		if err != nil {
			return err
		}
		l, err := ts.repos.Loans.GetByID(ctx, f.LoanID)
		if err != nil {
			return err
		}
		if f.Reason == fine.ReasonOverdue && l.Status.IsOpen() {
			return fmt.Errorf("overdue fine %s: loan %s is still %s: %w", f.ID, l.ID, l.Status, shared.ErrIllegalTransition)
		}
		if err := f.MarkPaid(now); err != nil {
			return err
		}
		if err := ts.repos.Fines.Update(ctx, f); err != nil {
			return err
		}

		view = &FineView{Fine: f, BorrowerID: l.BorrowerID}
		return s.record(ctx, ts, event.New(event.FinePaid, event.AggregateFine, f.ID, actor, now, map[string]any{
			"loan_id": f.LoanID.String(),
			"reason":  string(f.Reason),
			"amount":  fine.FormatAmount(f.AmountCents),
		}))
	})
	if err != nil {
		return nil, err
	}

	s.log(ctx).Info("Fine paid", "fine_id", fineID.String(), "amount", view.Fine.Amount())
	return view, nil
}
