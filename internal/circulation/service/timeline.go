package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/library-circulation/internal/domain/access"
	"github.com/library-circulation/internal/domain/event"
	"github.com/library-circulation/internal/domain/shared"
)

// authorizeRecord applies the read rule of the record the timeline belongs to
func (s *CirculationService) authorizeRecord(ctx context.Context, actor access.Actor, aggType event.AggregateType, id uuid.UUID) error {
	switch aggType {
	case event.AggregateLoan:
		l, err := s.repos.Loans.GetByID(ctx, id)
		if err != nil {
			return err
		}
		return access.AuthorizeBorrower(actor, l.BorrowerID)
	case event.AggregateReservation:
		res, err := s.repos.Reservations.GetByID(ctx, id)
		if err != nil {
			return err
		}
		return access.AuthorizeBorrower(actor, res.BorrowerID)
	case event.AggregateFine:
		_, err := s.GetFine(ctx, actor, id)
		return err
	case event.AggregateCopy:
		if _, err := s.repos.Catalog.GetByID(ctx, id); err != nil {
			return err
		}
		return access.Authorize(actor, access.CapActOnBehalf)
	}
	return fmt.Errorf("unknown record type %q: %w", aggType, shared.ErrInvalidInput)
}

func (s *CirculationService) GetTimeline(ctx context.Context, actor access.Actor, aggType event.AggregateType, id uuid.UUID, page, perPage int) (*TimelinePage, error) {
	if page < 1 || perPage < 1 {
		return nil, fmt.Errorf("page and per_page must be positive: %w", shared.ErrInvalidInput)
	}
	if err := s.authorizeRecord(ctx, actor, aggType, id); err != nil {
		return nil, err
	}

	entries, err := s.timeline.ListByAggregate(ctx, aggType, id, perPage, (page-1)*perPage)
	if err != nil {
		return nil, err
	}
	total, err := s.timeline.CountByAggregate(ctx, aggType, id)
	if err != nil {
		return nil, err
	}
	return &TimelinePage{Entries: entries, Total: total}, nil
}
