package fine

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/library-circulation/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Reason defines why a fine was assessed
type Reason string

const (
	ReasonOverdue Reason = "overdue"
	ReasonDamage  Reason = "damage"
)

// Overdue schedule in cents
const (
	firstTierRate  int64 = 200  // days 1-3
	secondTierRate int64 = 500  // days 4-7
	thirdTierRate  int64 = 1000 // day 8 onwards

	firstTierEndDay  = 3
	secondTierEndDay = 7

	// DamageSurcharge is added to the copy price for damaged returns
	DamageSurcharge int64 = 5000
)

const (
	firstTierCeiling  = firstTierEndDay * firstTierRate
	secondTierCeiling = firstTierCeiling + (secondTierEndDay-firstTierEndDay)*secondTierRate
)

// ComputeOverdueFine returns the overdue fine in cents for whole days late
func ComputeOverdueFine(daysLate int) (int64, error) {
	if daysLate < 0 {
		return 0, fmt.Errorf("days late must not be negative, got %d: %w", daysLate, shared.ErrInvalidInput)
	}
	return overdueCents(daysLate), nil
}

// AccruedOverdueFine is ComputeOverdueFine for a day count read off a loan;
// a loan not yet due accrues nothing.
func AccruedOverdueFine(daysLate int) int64 {
	return overdueCents(max(daysLate, 0))
}

func overdueCents(daysLate int) int64 {
	switch {
	case daysLate <= firstTierEndDay:
		return int64(daysLate) * firstTierRate
	case daysLate <= secondTierEndDay:
		return firstTierCeiling + int64(daysLate-firstTierEndDay)*secondTierRate
	default:
		return secondTierCeiling + int64(daysLate-secondTierEndDay)*thirdTierRate
	}
}

// ComputeDamageFine returns the copy price plus the flat processing surcharge
func ComputeDamageFine(priceCents int64) (int64, error) {
	if priceCents < 0 {
		return 0, fmt.Errorf("copy price must not be negative, got %d: %w", priceCents, shared.ErrInvalidInput)
	}
	return priceCents + DamageSurcharge, nil
}

// FormatAmount renders minor units as a two-decimal amount, e.g. 4600 -> "46.00"
func FormatAmount(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

// Fine is a monetary obligation attached to one loan
type Fine struct {
	ID          uuid.UUID  `json:"id"`
	LoanID      uuid.UUID  `json:"loan_id"`
	Reason      Reason     `json:"reason"`
	AmountCents int64      `json:"amount_cents"`
	DaysOverdue int        `json:"days_overdue"`
	ComputedAt  time.Time  `json:"computed_at"`
	Paid        bool       `json:"paid"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
}

// NewOverdueFine creates an unpaid overdue fine, nil when the loan is not late
func NewOverdueFine(loanID uuid.UUID, daysLate int, now time.Time) (*Fine, error) {
	amount, err := ComputeOverdueFine(daysLate)
	if err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, nil
	}
	return &Fine{
		ID:          uuid.New(),
		LoanID:      loanID,
		Reason:      ReasonOverdue,
		AmountCents: amount,
		DaysOverdue: daysLate,
		ComputedAt:  now,
	}, nil
}

// NewDamageFine creates an unpaid damage fine for the copy price
func NewDamageFine(loanID uuid.UUID, priceCents int64, now time.Time) (*Fine, error) {
	amount, err := ComputeDamageFine(priceCents)
	if err != nil {
		return nil, err
	}
	return &Fine{
		ID:          uuid.New(),
		LoanID:      loanID,
		Reason:      ReasonDamage,
		AmountCents: amount,
		ComputedAt:  now,
	}, nil
}

// Reassess recomputes an unpaid overdue fine. It reports whether anything
// changed; paid fines are immutable.
func (f *Fine) Reassess(daysLate int, now time.Time) (bool, error) {
	if f.Paid || f.Reason != ReasonOverdue {
		return false, nil
	}
	amount, err := ComputeOverdueFine(daysLate)
	if err != nil {
		return false, err
	}
	if amount == f.AmountCents && daysLate == f.DaysOverdue {
		return false, nil
	}
	f.AmountCents = amount
	f.DaysOverdue = daysLate
	f.ComputedAt = now
	return true, nil
}

// MarkPaid records payment once
func (f *Fine) MarkPaid(now time.Time) error {
	if f.Paid {
		return fmt.Errorf("fine %s already paid: %w", f.ID, shared.ErrIllegalTransition)
	}
	f.Paid = true
	f.PaidAt = &now
	return nil
}

// Amount is the rendered fine amount
func (f *Fine) Amount() string {
	return FormatAmount(f.AmountCents)
}
