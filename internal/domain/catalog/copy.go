package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/library-circulation/internal/domain/loan"
)

// Availability is the derived circulation state of a copy
type Availability string

const (
	AvailabilityAvailable Availability = "available"
	AvailabilityReserved  Availability = "reserved"
	AvailabilityBorrowed  Availability = "borrowed"
	AvailabilityOverdue   Availability = "overdue"
	AvailabilityWithdrawn Availability = "withdrawn"
)

// Title is the bibliographic record copies belong to
type Title struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	LoanPeriodDays int       `json:"loan_period_days"` // 0 means the configured default
}

// LoanPeriod returns the title's loan period, falling back to defaultDays
func (t *Title) LoanPeriod(defaultDays int) int {
	if t.LoanPeriodDays > 0 {
		return t.LoanPeriodDays
	}
	return defaultDays
}

// Copy is one physical item of a title
type Copy struct {
	ID          uuid.UUID  `json:"id"`
	TitleID     uuid.UUID  `json:"title_id"`
	BranchID    uuid.UUID  `json:"branch_id"`
	Barcode     string     `json:"barcode"`
	PriceCents  int64      `json:"price_cents"` // Stored in cents/minor units
	WithdrawnAt *time.Time `json:"withdrawn_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Withdrawn reports whether the copy left circulation
func (c *Copy) Withdrawn() bool {
	return c.WithdrawnAt != nil
}

// DeriveAvailability computes availability from the copy's open loan (nil if
// none) and whether a confirmed reservation holds it. Availability is never
// stored.
func DeriveAvailability(c *Copy, open *loan.Loan, held bool) Availability {
	switch {
	case c.Withdrawn():
		return AvailabilityWithdrawn
	case open != nil && open.Status == loan.StatusOverdue:
		return AvailabilityOverdue
	case open != nil && open.Status.IsOpen():
		return AvailabilityBorrowed
	case held:
		return AvailabilityReserved
	default:
		return AvailabilityAvailable
	}
}
