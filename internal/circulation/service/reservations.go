package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/library-circulation/internal/domain/access"
	"github.com/library-circulation/internal/domain/event"
	"github.com/library-circulation/internal/domain/reservation"
	"github.com/library-circulation/internal/domain/shared"
)

func reservationEvent(t event.Type, res *reservation.Reservation, actor access.Actor, now time.Time, extra map[string]any) *event.Event {
	data := map[string]any{
		"title_id":    res.TitleID.String(),
		"borrower_id": res.BorrowerID.String(),
		"class":       string(res.Class),
	}
	for k, v := range extra {
		data[k] = v
	}
	return event.New(t, event.AggregateReservation, res.ID, actor, now, data)
}

// queueView resolves the position of res within its title's current queue
func queueView(ctx context.Context, repo reservation.Repository, res *reservation.Reservation) (*ReservationView, error) {
	view := &ReservationView{Reservation: res}
	if res.Status != reservation.StatusQueued {
		return view, nil
	}
	queued, err := repo.ListQueuedByTitle(ctx, res.TitleID)
	if err != nil {
		return nil, err
	}
	view.Position = reservation.NewQueue(res.TitleID, queued).Position(res.ID)
	return view, nil
}

func containsReservation(list []*reservation.Reservation, id uuid.UUID) *reservation.Reservation {
	for _, r := range list {
		if r.ID == id {
			return r
		}
	}
	return nil
}

func (s *CirculationService) confirmedEvents(confirmed []*reservation.Reservation, actor access.Actor) []*event.Event {
	events := make([]*event.Event, 0, len(confirmed))
	for _, res := range confirmed {
		events = append(events, reservationConfirmed(res, actor))
	}
	return events
}

// PlaceReservation queues the borrower for a title. When a copy of the title
// is free the queue is advanced in the same transaction, so a reservation
// placed against an idle shelf comes back already confirmed.
func (s *CirculationService) PlaceReservation(ctx context.Context, actor access.Actor, titleID, borrowerID uuid.UUID, class reservation.Class) (*ReservationView, error) {
	if err := access.AuthorizeBorrower(actor, borrowerID); err != nil {
		return nil, err
	}
	if class == reservation.ClassPriority {
		if err := access.Authorize(actor, access.CapPriorityReserve); err != nil {
			return nil, err
		}
	}

	now := s.clock.Now()
	var view *ReservationView

	err := s.inTx(ctx, func(ts *txScope) error {
		if _, err := ts.repos.Catalog.LockTitle(ctx, titleID); err != nil {
			return err
		}

		existing, err := ts.repos.Reservations.GetActiveForBorrower(ctx, borrowerID, titleID)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("reservation %s is still %s: %w", existing.ID, existing.Status, shared.ErrDuplicateReservation)
		}
		borrowing, err := ts.repos.Loans.HasOpenForTitle(ctx, borrowerID, titleID)
		if err != nil {
			return err
		}
		if borrowing {
			return fmt.Errorf("borrower %s, title %s: %w", borrowerID, titleID, shared.ErrAlreadyBorrowing)
		}

		res := reservation.NewReservation(titleID, borrowerID, class, now)
		if err := ts.repos.Reservations.Create(ctx, res); err != nil {
			return err
		}
		events := []*event.Event{reservationEvent(event.ReservationQueued, res, actor, now, nil)}

		confirmed, err := s.ledger.AllocateFreeCopies(ctx, ts.tx, titleID, now)
		if err != nil {
			return err
		}
		events = append(events, s.confirmedEvents(confirmed, access.System)...)
		if err := s.record(ctx, ts, events...); err != nil {
			return err
		}

		if mine := containsReservation(confirmed, res.ID); mine != nil {
			res = mine
		}
		view, err = queueView(ctx, ts.repos.Reservations, res)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log(ctx).Info("Reservation placed",
		"reservation_id", view.Reservation.ID.String(),
		"title_id", titleID.String(),
		"class", string(class),
		"status", string(view.Reservation.Status),
	)
	return view, nil
}

// ConfirmReservation lets staff advance the queue head onto a free copy.
// Only the head may be confirmed; shared.ErrUnavailable means no copy of the
// title is free.
func (s *CirculationService) ConfirmReservation(ctx context.Context, actor access.Actor, reservationID uuid.UUID) (*ReservationView, error) {
	if err := access.Authorize(actor, access.CapConfirmReservation); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var view *ReservationView

	err := s.inTx(ctx, func(ts *txScope) error {
		scope, err := s.lockReservation(ctx, ts, reservationID)
		if err != nil {
			return err
		}
		res := scope.reservation
		if res.Status != reservation.StatusQueued {
			return reservation.TransitionError{ReservationID: res.ID, From: res.Status, To: reservation.StatusConfirmed}
		}

		queued, err := ts.repos.Reservations.ListQueuedByTitle(ctx, res.TitleID)
		if err != nil {
			return err
		}
		if head := reservation.NewQueue(res.TitleID, queued).NextEligible(); head == nil || head.ID != res.ID {
			return fmt.Errorf("reservation %s is not at the head of the queue: %w", res.ID, shared.ErrIllegalTransition)
		}

		confirmed, err := s.ledger.AllocateFreeCopies(ctx, ts.tx, res.TitleID, now)
		if err != nil {
			return err
		}
		mine := containsReservation(confirmed, res.ID)
		if mine == nil {
			return fmt.Errorf("no free copy of title %s: %w", res.TitleID, shared.ErrUnavailable)
		}

		events := make([]*event.Event, 0, len(confirmed))
		for _, c := range confirmed {
			by := access.System
			if c.ID == res.ID {
				by = actor
			}
			events = append(events, reservationConfirmed(c, by))
		}
		view = &ReservationView{Reservation: mine}
		return s.record(ctx, ts, events...)
	})
	if err != nil {
		return nil, err
	}

	s.log(ctx).Info("Reservation confirmed",
		"reservation_id", reservationID.String(),
		"copy_id", view.Reservation.HeldCopyID.String(),
	)
	return view, nil
}

func (s *CirculationService) RejectReservation(ctx context.Context, actor access.Actor, reservationID uuid.UUID, reason string) (*ReservationView, error) {
	if err := access.Authorize(actor, access.CapRejectReservation); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var rejected *reservation.Reservation

	err := s.inTx(ctx, func(ts *txScope) error {
		scope, err := s.lockReservation(ctx, ts, reservationID)
		if err != nil {
			return err
		}
		res := scope.reservation
		if err := res.Reject(reason, now); err != nil {
			return err
		}
		if err := ts.repos.Reservations.Update(ctx, res); err != nil {
			return err
		}

		events := []*event.Event{reservationEvent(event.ReservationRejected, res, actor, now, map[string]any{"reason": reason})}
		if scope.copy != nil {
			released, err := s.release(ctx, ts, scope.copy)
			if err != nil {
				return err
			}
			events = append(events, released...)
		}
		rejected = res
		return s.record(ctx, ts, events...)
	})
	if err != nil {
		return nil, err
	}

	s.log(ctx).Info("Reservation rejected", "reservation_id", reservationID.String())
	return &ReservationView{Reservation: rejected}, nil
}

// CancelReservation withdraws an active reservation. A confirmed hold frees
// its copy for the next borrower in line.
func (s *CirculationService) CancelReservation(ctx context.Context, actor access.Actor, reservationID uuid.UUID) (*ReservationView, error) {
	now := s.clock.Now()
	var cancelled *reservation.Reservation

	err := s.inTx(ctx, func(ts *txScope) error {
		scope, err := s.lockReservation(ctx, ts, reservationID)
		if err != nil {
			return err
		}
		res := scope.reservation
		if err := access.AuthorizeBorrower(actor, res.BorrowerID); err != nil {
			return err
		}
		if err := res.Cancel(now); err != nil {
			return err
		}
		if err := ts.repos.Reservations.Update(ctx, res); err != nil {
			return err
		}

		events := []*event.Event{reservationEvent(event.ReservationCancelled, res, actor, now, nil)}
		if scope.copy != nil {
			released, err := s.release(ctx, ts, scope.copy)
			if err != nil {
				return err
			}
			events = append(events, released...)
		}
		cancelled = res
		return s.record(ctx, ts, events...)
	})
	if err != nil {
		return nil, err
	}

	s.log(ctx).Info("Reservation cancelled", "reservation_id", reservationID.String())
	return &ReservationView{Reservation: cancelled}, nil
}

func (s *CirculationService) GetReservation(ctx context.Context, actor access.Actor, reservationID uuid.UUID) (*ReservationView, error) {
	res, err := s.repos.Reservations.GetByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if err := access.AuthorizeBorrower(actor, res.BorrowerID); err != nil {
		return nil, err
	}
	return queueView(ctx, s.repos.Reservations, res)
}

// ListQueue returns the title's queued reservations in service order
func (s *CirculationService) ListQueue(ctx context.Context, actor access.Actor, titleID uuid.UUID) ([]*ReservationView, error) {
	if err := access.Authorize(actor, access.CapViewQueue); err != nil {
		return nil, err
	}
	if _, err := s.repos.Catalog.GetTitle(ctx, titleID); err != nil {
		return nil, err
	}

	queued, err := s.repos.Reservations.ListQueuedByTitle(ctx, titleID)
	if err != nil {
		return nil, err
	}
	items := reservation.NewQueue(titleID, queued).Items()
	views := make([]*ReservationView, len(items))
	for i, res := range items {
		views[i] = &ReservationView{Reservation: res, Position: i + 1}
	}
	return views, nil
}
