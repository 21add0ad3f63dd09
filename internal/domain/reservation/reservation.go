package reservation

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/library-circulation/internal/domain/shared"
)

// Class orders reservations within a title's queue
type Class string

const (
	ClassPriority Class = "priority"
	ClassRegular  Class = "regular"
)

func ParseClass(s string) (Class, error) {
	switch Class(s) {
	case ClassPriority, ClassRegular:
		return Class(s), nil
	case "":
		return ClassRegular, nil
	}
	return "", fmt.Errorf("unknown reservation class %q: %w", s, shared.ErrInvalidInput)
}

func (c Class) rank() int {
	if c == ClassPriority {
		return 0
	}
	return 1
}

// Status defines reservation lifecycle states
type Status string

const (
	StatusQueued    Status = "queued"
	StatusConfirmed Status = "confirmed"
	StatusFulfilled Status = "fulfilled"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
	StatusRejected  Status = "rejected"
)

// Active reports whether the reservation still claims a queue position or a copy
func (s Status) Active() bool {
	return s == StatusQueued || s == StatusConfirmed
}

// Reservation is a standing claim on the next available copy of a title
type Reservation struct {
	ID              uuid.UUID  `json:"id"`
	TitleID         uuid.UUID  `json:"title_id"`
	BorrowerID      uuid.UUID  `json:"borrower_id"`
	Class           Class      `json:"class"`
	Status          Status     `json:"status"`
	QueuedAt        time.Time  `json:"queued_at"`
	ConfirmedAt     *time.Time `json:"confirmed_at,omitempty"`
	HoldExpiresAt   *time.Time `json:"hold_expires_at,omitempty"`
	HeldCopyID      *uuid.UUID `json:"held_copy_id,omitempty"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	Version         int        `json:"version"`
}

// NewReservation creates a queued reservation
func NewReservation(titleID, borrowerID uuid.UUID, class Class, now time.Time) *Reservation {
	return &Reservation{
		ID:         uuid.New(),
		TitleID:    titleID,
		BorrowerID: borrowerID,
		Class:      class,
		Status:     StatusQueued,
		QueuedAt:   now,
		Version:    1,
	}
}

// Less orders by class, then queued-at, then id
func Less(a, b *Reservation) bool {
	if a.Class.rank() != b.Class.rank() {
		return a.Class.rank() < b.Class.rank()
	}
	if !a.QueuedAt.Equal(b.QueuedAt) {
		return a.QueuedAt.Before(b.QueuedAt)
	}
	return a.ID.String() < b.ID.String()
}

// Confirm holds copyID for the borrower until now+holdWindow
func (r *Reservation) Confirm(copyID uuid.UUID, now time.Time, holdWindow time.Duration) error {
	if r.Status != StatusQueued {
		return r.illegal(StatusConfirmed)
	}
	expires := now.Add(holdWindow)
	r.Status = StatusConfirmed
	r.ConfirmedAt = &now
	r.HoldExpiresAt = &expires
	r.HeldCopyID = &copyID
	return nil
}

// Fulfill converts a confirmed hold into a loan
func (r *Reservation) Fulfill(now time.Time) error {
	if r.Status != StatusConfirmed {
		return r.illegal(StatusFulfilled)
	}
	r.close(StatusFulfilled, now)
	return nil
}

// HoldLapsed reports whether a confirmed hold is past its window
func (r *Reservation) HoldLapsed(now time.Time) bool {
	return r.Status == StatusConfirmed && r.HoldExpiresAt != nil && now.After(*r.HoldExpiresAt)
}

// Expire ends an unconverted hold
func (r *Reservation) Expire(now time.Time) error {
	if r.Status != StatusConfirmed {
		return r.illegal(StatusExpired)
	}
	r.close(StatusExpired, now)
	return nil
}

// Cancel withdraws the reservation on the borrower's request. Any status other
// than queued or confirmed means a concurrent transition won the race.
func (r *Reservation) Cancel(now time.Time) error {
	if !r.Status.Active() {
		return fmt.Errorf("reservation %s is %s: %w", r.ID, r.Status, shared.ErrStaleState)
	}
	r.close(StatusCancelled, now)
	return nil
}

// Reject closes the reservation on staff decision
func (r *Reservation) Reject(reason string, now time.Time) error {
	if !r.Status.Active() {
		return r.illegal(StatusRejected)
	}
	r.RejectionReason = reason
	r.close(StatusRejected, now)
	return nil
}

func (r *Reservation) close(status Status, now time.Time) {
	r.Status = status
	r.ClosedAt = &now
}

func (r *Reservation) illegal(to Status) error {
	return TransitionError{ReservationID: r.ID, From: r.Status, To: to}
}

// TransitionError reports a status change not allowed from the current status
type TransitionError struct {
	ReservationID uuid.UUID
	From          Status
	To            Status
}

func (e TransitionError) Error() string {
	return fmt.Sprintf("reservation %s cannot move from %s to %s", e.ReservationID, e.From, e.To)
}

func (e TransitionError) Unwrap() error {
	return shared.ErrIllegalTransition
}
