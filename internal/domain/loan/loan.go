package loan

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/library-circulation/internal/domain/shared"
)

// Status defines the loan lifecycle states
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusActive    Status = "active"
	StatusOverdue   Status = "overdue"
	StatusReturned  Status = "returned"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

// OpenStatuses hold the copy; at most one loan per copy may be in one of them
var OpenStatuses = []Status{StatusPending, StatusApproved, StatusActive, StatusOverdue}

// IsOpen reports whether the status still claims the copy
func (s Status) IsOpen() bool {
	for _, open := range OpenStatuses {
		if s == open {
			return true
		}
	}
	return false
}

// OnLoan reports whether the copy is physically with the borrower
func (s Status) OnLoan() bool {
	return s == StatusActive || s == StatusOverdue
}

var transitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusRejected, StatusCancelled},
	StatusApproved: {StatusActive, StatusCancelled},
	StatusActive:   {StatusOverdue, StatusReturned},
	StatusOverdue:  {StatusReturned},
}

// CanTransition reports whether from -> to is a legal loan transition
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Loan is one borrowing transaction of one copy by one borrower
type Loan struct {
	ID              uuid.UUID  `json:"id"`
	CopyID          uuid.UUID  `json:"copy_id"`
	TitleID         uuid.UUID  `json:"title_id"`
	BorrowerID      uuid.UUID  `json:"borrower_id"`
	ReservationID   *uuid.UUID `json:"reservation_id,omitempty"`
	Status          Status     `json:"status"`
	RequestedAt     time.Time  `json:"requested_at"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	DueAt           *time.Time `json:"due_at,omitempty"`
	PickedUpAt      *time.Time `json:"picked_up_at,omitempty"`
	ReturnedAt      *time.Time `json:"returned_at,omitempty"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`
	ExtensionUsed   bool       `json:"extension_used"`
	Damaged         bool       `json:"damaged"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	Version         int        `json:"version"` // For optimistic locking
}

// NewLoan creates a pending loan request for a specific copy
func NewLoan(copyID, titleID, borrowerID uuid.UUID, now time.Time) *Loan {
	return &Loan{
		ID:          uuid.New(),
		CopyID:      copyID,
		TitleID:     titleID,
		BorrowerID:  borrowerID,
		Status:      StatusPending,
		RequestedAt: now,
		Version:     1,
	}
}

func (l *Loan) moveTo(to Status) error {
	if !CanTransition(l.Status, to) {
		return TransitionError{LoanID: l.ID, From: l.Status, To: to}
	}
	l.Status = to
	return nil
}

// Approve starts the loan period; the copy is due periodDays after approval
func (l *Loan) Approve(now time.Time, periodDays int) error {
	if periodDays <= 0 {
		return fmt.Errorf("loan period must be positive, got %d: %w", periodDays, shared.ErrInvalidInput)
	}
	if err := l.moveTo(StatusApproved); err != nil {
		return err
	}
	due := now.AddDate(0, 0, periodDays)
	l.ApprovedAt = &now
	l.DueAt = &due
	return nil
}

// Reject closes a pending request
func (l *Loan) Reject(reason string, now time.Time) error {
	if err := l.moveTo(StatusRejected); err != nil {
		return err
	}
	l.RejectionReason = reason
	l.ClosedAt = &now
	return nil
}

// Cancel closes a pending request or an approved loan that was never picked up
func (l *Loan) Cancel(now time.Time) error {
	if err := l.moveTo(StatusCancelled); err != nil {
		return err
	}
	l.ClosedAt = &now
	return nil
}

// Activate records the pickup handoff
func (l *Loan) Activate(now time.Time) error {
	if err := l.moveTo(StatusActive); err != nil {
		return err
	}
	l.PickedUpAt = &now
	return nil
}

// MarkOverdue flags an active loan past its due date. It returns false
// without error when there is nothing to do, so repeated sweeps are no-ops.
func (l *Loan) MarkOverdue(now time.Time) (bool, error) {
	if l.Status == StatusOverdue {
		return false, nil
	}
	if l.Status != StatusActive || l.DueAt == nil || !now.After(*l.DueAt) {
		return false, nil
	}
	return true, l.moveTo(StatusOverdue)
}

// Return closes an active or overdue loan
func (l *Loan) Return(now time.Time, damaged bool) error {
	if err := l.moveTo(StatusReturned); err != nil {
		return err
	}
	l.ReturnedAt = &now
	l.ClosedAt = &now
	l.Damaged = damaged
	return nil
}

// CheckExtendable validates an extension without applying it
func (l *Loan) CheckExtendable() error {
	if l.ExtensionUsed {
		return fmt.Errorf("loan %s: %w", l.ID, shared.ErrExtensionAlreadyUsed)
	}
	if l.Status != StatusActive {
		return TransitionError{LoanID: l.ID, From: l.Status, To: StatusActive}
	}
	return nil
}

// Extend pushes the due date once per loan
func (l *Loan) Extend(days int) error {
	if days <= 0 {
		return fmt.Errorf("extension must be positive, got %d: %w", days, shared.ErrInvalidInput)
	}
	if err := l.CheckExtendable(); err != nil {
		return err
	}
	due := l.DueAt.AddDate(0, 0, days)
	l.DueAt = &due
	l.ExtensionUsed = true
	return nil
}

// DaysOverdue counts whole days past the due date at now
func (l *Loan) DaysOverdue(now time.Time) int {
	if l.DueAt == nil {
		return 0
	}
	end := now
	if l.ReturnedAt != nil {
		end = *l.ReturnedAt
	}
	if !end.After(*l.DueAt) {
		return 0
	}
	return int(end.Sub(*l.DueAt) / (24 * time.Hour))
}

// TransitionError reports a status change not allowed from the current status
type TransitionError struct {
	LoanID uuid.UUID
	From   Status
	To     Status
}

func (e TransitionError) Error() string {
	return fmt.Sprintf("loan %s cannot move from %s to %s", e.LoanID, e.From, e.To)
}

func (e TransitionError) Unwrap() error {
	return shared.ErrIllegalTransition
}
