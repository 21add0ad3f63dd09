package service

import (
	"time"

	"github.com/google/uuid"
	"github.com/library-circulation/internal/domain/catalog"
	"github.com/library-circulation/internal/domain/fine"
	"github.com/library-circulation/internal/domain/loan"
	"github.com/library-circulation/internal/domain/pickup"
	"github.com/library-circulation/internal/domain/reservation"
	"github.com/library-circulation/internal/domain/timeline"
)

// LoanView is a loan with the fields computed at read time
type LoanView struct {
	Loan             *loan.Loan
	DaysOverdue      int
	AccruedFineCents int64 // overdue fine the loan would carry if returned now
	Fines            []*fine.Fine
	PendingExtension *loan.ExtensionRequest
}

// OutstandingCents sums the loan's unpaid fines
func (v *LoanView) OutstandingCents() int64 {
	var total int64
	for _, f := range v.Fines {
		if !f.Paid {
			total += f.AmountCents
		}
	}
	return total
}

// ApprovalView carries the pickup code handed to the borrower on approval
type ApprovalView struct {
	Loan       *LoanView
	PickupCode *pickup.Code
}

// ReservationView adds the 1-based queue position of a queued reservation
type ReservationView struct {
	Reservation *reservation.Reservation
	Position    int
}

type FineView struct {
	Fine       *fine.Fine
	BorrowerID uuid.UUID
}

// CopyView is a copy with its derived availability
type CopyView struct {
	Copy         *catalog.Copy
	Availability catalog.Availability
	OpenLoanID   *uuid.UUID
	DueAt        *time.Time
}

type TimelinePage struct {
	Entries []*timeline.Entry
	Total   int64
}

func newLoanView(l *loan.Loan, fines []*fine.Fine, pending *loan.ExtensionRequest, now time.Time) *LoanView {
	v := &LoanView{
		Loan:             l,
		DaysOverdue:      l.DaysOverdue(now),
		Fines:            fines,
		PendingExtension: pending,
	}
	if l.Status == loan.StatusOverdue {
		v.AccruedFineCents = fine.AccruedOverdueFine(v.DaysOverdue)
	}
	return v
}
