package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/library-circulation/internal/domain/access"
	"github.com/library-circulation/internal/domain/catalog"
	"github.com/library-circulation/internal/domain/event"
	"github.com/library-circulation/internal/domain/shared"
)

// GetCopy reports a copy with its availability derived from open loans and holds
func (s *CirculationService) GetCopy(ctx context.Context, actor access.Actor, copyID uuid.UUID) (*CopyView, error) {
	c, err := s.repos.Catalog.GetByID(ctx, copyID)
	if err != nil {
		return nil, err
	}
	availability, open, err := s.ledger.Availability(ctx, c)
	if err != nil {
		return nil, err
	}

	view := &CopyView{Copy: c, Availability: availability}
	if open != nil {
		view.OpenLoanID = &open.ID
		view.DueAt = open.DueAt
	}
	return view, nil
}

// WithdrawCopy takes a copy out of circulation. A copy that is on loan or
// held for a reservation is refused with shared.ErrCopyInUse.
func (s *CirculationService) WithdrawCopy(ctx context.Context, actor access.Actor, copyID uuid.UUID) (*CopyView, error) {
	if err := access.Authorize(actor, access.CapWithdrawCopy); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var withdrawn *catalog.Copy

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
		if c.Withdrawn() {
			return fmt.Errorf("copy %s is already withdrawn: %w", c.ID, shared.ErrIllegalTransition)
		}

		open, err := ts.repos.Loans.GetOpenByCopy(ctx, c.ID)
		if err != nil {
			return err
		}
		hold, err := ts.repos.Reservations.GetHoldByCopy(ctx, c.ID)
		if err != nil {
			return err
		}
		if open != nil || hold != nil {
			return fmt.Errorf("copy %s: %w", c.ID, shared.ErrCopyInUse)
		}

		if err := ts.repos.Catalog.MarkWithdrawn(ctx, c.ID, now); err != nil {
			return err
		}
		c.WithdrawnAt = &now
		withdrawn = c
		return s.record(ctx, ts, event.New(event.CopyWithdrawn, event.AggregateCopy, c.ID, actor, now, map[string]any{
			"title_id": c.TitleID.String(),
			"barcode":  c.Barcode,
		}))
	})
	if err != nil {
		return nil, err
	}

	s.log(ctx).Info("Copy withdrawn", "copy_id", copyID.String())
	return &CopyView{Copy: withdrawn, Availability: catalog.AvailabilityWithdrawn}, nil
}
