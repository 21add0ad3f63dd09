package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/library-circulation/internal/domain/access"
	"github.com/library-circulation/internal/domain/catalog"
	"github.com/library-circulation/internal/domain/event"
	"github.com/library-circulation/internal/domain/fine"
	"github.com/library-circulation/internal/domain/loan"
	"github.com/library-circulation/internal/domain/pickup"
	"github.com/library-circulation/internal/domain/reservation"
)

// LoanService covers the loan lifecycle driven by borrowers and staff
type LoanService interface {
	// RequestLoan claims a specific copy for the borrower. Returns
	// shared.ErrUnavailable when the copy is held, on loan, or was handed to
	// the head of the title's reservation queue instead.
	RequestLoan(ctx context.Context, actor access.Actor, copyID, borrowerID uuid.UUID) (*LoanView, error)
	ApproveLoan(ctx context.Context, actor access.Actor, loanID uuid.UUID) (*ApprovalView, error)
	RejectLoan(ctx context.Context, actor access.Actor, loanID uuid.UUID, reason string) (*LoanView, error)
	CancelLoan(ctx context.Context, actor access.Actor, loanID uuid.UUID) (*LoanView, error)

	// RedeemPickup activates an approved loan. An expired code cancels the
	// loan and releases the copy before shared.ErrExpiredCode is returned.
	RedeemPickup(ctx context.Context, actor access.Actor, loanID uuid.UUID, code string) (*LoanView, error)
	ReturnLoan(ctx context.Context, actor access.Actor, loanID uuid.UUID, damaged bool) (*LoanView, error)

	RequestExtension(ctx context.Context, actor access.Actor, loanID uuid.UUID) (*loan.ExtensionRequest, error)
	ApproveExtension(ctx context.Context, actor access.Actor, extensionID uuid.UUID) (*LoanView, error)
	RejectExtension(ctx context.Context, actor access.Actor, extensionID uuid.UUID, reason string) (*loan.ExtensionRequest, error)

	GetLoan(ctx context.Context, actor access.Actor, loanID uuid.UUID) (*LoanView, error)
}

// ReservationService covers the per-title waiting lists
type ReservationService interface {
	PlaceReservation(ctx context.Context, actor access.Actor, titleID, borrowerID uuid.UUID, class reservation.Class) (*ReservationView, error)
	ConfirmReservation(ctx context.Context, actor access.Actor, reservationID uuid.UUID) (*ReservationView, error)
	RejectReservation(ctx context.Context, actor access.Actor, reservationID uuid.UUID, reason string) (*ReservationView, error)
	CancelReservation(ctx context.Context, actor access.Actor, reservationID uuid.UUID) (*ReservationView, error)
	GetReservation(ctx context.Context, actor access.Actor, reservationID uuid.UUID) (*ReservationView, error)
	ListQueue(ctx context.Context, actor access.Actor, titleID uuid.UUID) ([]*ReservationView, error)
}

type FineService interface {
	GetFine(ctx context.Context, actor access.Actor, fineID uuid.UUID) (*FineView, error)
	PayFine(ctx context.Context, actor access.Actor, fineID uuid.UUID) (*FineView, error)
}

type CopyService interface {
	GetCopy(ctx context.Context, actor access.Actor, copyID uuid.UUID) (*CopyView, error)
	WithdrawCopy(ctx context.Context, actor access.Actor, copyID uuid.UUID) (*CopyView, error)
}

type TimelineService interface {
	// GetTimeline returns a page of a record's history to any actor allowed to read the record
	GetTimeline(ctx context.Context, actor access.Actor, aggType event.AggregateType, id uuid.UUID, page, perPage int) (*TimelinePage, error)
}

// Circulation is everything the HTTP gateway needs
type Circulation interface {
	LoanService
	ReservationService
	FineService
	CopyService
	TimelineService
}

// LifecycleService applies the time-driven transitions, one record per call.
// Every method reports whether it changed anything; a record that no longer
// qualifies is a no-op, so passes can be repeated safely.
type LifecycleService interface {
	FlagOverdue(ctx context.Context, loanID uuid.UUID) (bool, error)
	RefreshOverdueFine(ctx context.Context, loanID uuid.UUID) (bool, error)
	ExpirePickup(ctx context.Context, loanID uuid.UUID) (bool, error)
	ExpireHold(ctx context.Context, reservationID uuid.UUID) (bool, error)

	ListOverdueCandidates(ctx context.Context, limit int) ([]uuid.UUID, error)
	ListOverdueLoans(ctx context.Context, limit int) ([]uuid.UUID, error)
	ListExpiredPickups(ctx context.Context, limit int) ([]uuid.UUID, error)
	ListLapsedHolds(ctx context.Context, limit int) ([]uuid.UUID, error)
}

// ClaimOutcome is the ledger's decision on a claim. Exactly one of Loan and
// Diverted is set.
type ClaimOutcome struct {
	Loan *loan.Loan

	// Fulfilled is the claimant's own reservation converted into Loan
	Fulfilled *reservation.Reservation

	// Released is the reservation confirmed to the copy Fulfilled was holding
	// when the claim was on a different copy
	Released *reservation.Reservation

	// Diverted is the queue head the free copy was confirmed to instead
	Diverted *reservation.Reservation
}

// AvailabilityLedger arbitrates every claim on a copy. Callers hold the
// title and copy locks inside tx.
type AvailabilityLedger interface {
	TryClaim(ctx context.Context, tx pgx.Tx, c *catalog.Copy, borrowerID uuid.UUID, now time.Time) (*ClaimOutcome, error)

	// Release offers a freed copy to the title's next eligible reservation and
	// returns the reservation it was confirmed to, or nil
	Release(ctx context.Context, tx pgx.Tx, c *catalog.Copy, now time.Time) (*reservation.Reservation, error)

	// AllocateFreeCopies pairs the title's free copies with queue heads in order
	AllocateFreeCopies(ctx context.Context, tx pgx.Tx, titleID uuid.UUID, now time.Time) ([]*reservation.Reservation, error)

	Availability(ctx context.Context, c *catalog.Copy) (catalog.Availability, *loan.Loan, error)
}

// PickupDesk issues and checks the one-time handoff codes
type PickupDesk interface {
	Issue(ctx context.Context, tx pgx.Tx, l *loan.Loan, now time.Time) (*pickup.Code, error)
	Redeem(ctx context.Context, tx pgx.Tx, l *loan.Loan, presented string, now time.Time) (pickup.Result, error)

	// Expire closes the loan's active code if its window has passed
	Expire(ctx context.Context, tx pgx.Tx, loanID uuid.UUID, now time.Time) (bool, error)

	// Void closes the loan's active code regardless of its window
	Void(ctx context.Context, tx pgx.Tx, loanID uuid.UUID, now time.Time) (bool, error)
}

// FineAssessor keeps exactly one fine per loan and reason. The bool reports
// whether a fine was created or its amount changed.
type FineAssessor interface {
	AssessOverdue(ctx context.Context, tx pgx.Tx, l *loan.Loan, now time.Time) (*fine.Fine, bool, error)
	AssessDamage(ctx context.Context, tx pgx.Tx, l *loan.Loan, priceCents int64, now time.Time) (*fine.Fine, bool, error)
}

// EventRecorder writes events to the outbox inside the transition's transaction
type EventRecorder interface {
	Record(ctx context.Context, tx pgx.Tx, events ...*event.Event) error
}
