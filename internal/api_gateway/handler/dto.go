package handler

import (
	"time"

	"github.com/google/uuid"
	"github.com/library-circulation/internal/circulation/service"
	"github.com/library-circulation/internal/domain/fine"
	"github.com/library-circulation/internal/domain/loan"
	"github.com/library-circulation/internal/domain/pickup"
)

// RequestLoanRequest claims a copy; borrower_id defaults to the caller
type RequestLoanRequest struct {
	BorrowerID string `json:"borrower_id" binding:"omitempty,uuid"`
}

// ReasonRequest carries a staff rejection reason
type ReasonRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

type RedeemPickupRequest struct {
	Code string `json:"code" binding:"required"`
}

type ReturnLoanRequest struct {
	Damaged bool `json:"damaged"`
}

// PlaceReservationRequest joins a title's queue; class defaults to regular
type PlaceReservationRequest struct {
	BorrowerID string `json:"borrower_id" binding:"omitempty,uuid"`
	Class      string `json:"class" binding:"omitempty,oneof=regular priority"`
}

// PaginationParams represents pagination parameters for list endpoints
type PaginationParams struct {
	Page    int `form:"page,default=1" binding:"min=1"`
	PerPage int `form:"per_page,default=20" binding:"min=1,max=100"`
}

// FineResponse renders amounts both as minor units and as a decimal string
type FineResponse struct {
	ID          string `json:"id"`
	LoanID      string `json:"loan_id"`
	BorrowerID  string `json:"borrower_id,omitempty"`
	Reason      string `json:"reason"`
	Amount      string `json:"amount"`
	AmountCents int64  `json:"amount_cents"`
	DaysOverdue int    `json:"days_overdue,omitempty"`
	Paid        bool   `json:"paid"`
	ComputedAt  string `json:"computed_at"`
	PaidAt      string `json:"paid_at,omitempty"`
}

type ExtensionResponse struct {
	ID              string `json:"id"`
	LoanID          string `json:"loan_id"`
	Status          string `json:"status"`
	RequestedAt     string `json:"requested_at"`
	DecidedBy       string `json:"decided_by,omitempty"`
	DecidedAt       string `json:"decided_at,omitempty"`
	RejectionReason string `json:"rejection_reason,omitempty"`
}

type LoanResponse struct {
	ID               string             `json:"id"`
	CopyID           string             `json:"copy_id"`
	TitleID          string             `json:"title_id"`
	BorrowerID       string             `json:"borrower_id"`
	ReservationID    string             `json:"reservation_id,omitempty"`
	Status           string             `json:"status"`
	RequestedAt      string             `json:"requested_at"`
	ApprovedAt       string             `json:"approved_at,omitempty"`
	DueAt            string             `json:"due_at,omitempty"`
	PickedUpAt       string             `json:"picked_up_at,omitempty"`
	ReturnedAt       string             `json:"returned_at,omitempty"`
	ClosedAt         string             `json:"closed_at,omitempty"`
	ExtensionUsed    bool               `json:"extension_used"`
	Damaged          bool               `json:"damaged"`
	RejectionReason  string             `json:"rejection_reason,omitempty"`
	DaysOverdue      int                `json:"days_overdue"`
	AccruedFine      string             `json:"accrued_fine"`
	OutstandingFines string             `json:"outstanding_fines"`
	Fines            []FineResponse     `json:"fines"`
	PendingExtension *ExtensionResponse `json:"pending_extension,omitempty"`
}

type PickupCodeResponse struct {
	Code      string `json:"code"`
	ExpiresAt string `json:"expires_at"`
}

type ApprovalResponse struct {
	Loan       LoanResponse       `json:"loan"`
	PickupCode PickupCodeResponse `json:"pickup_code"`
}

type ReservationResponse struct {
	ID              string `json:"id"`
	TitleID         string `json:"title_id"`
	BorrowerID      string `json:"borrower_id"`
	Class           string `json:"class"`
	Status          string `json:"status"`
	Position        int    `json:"position,omitempty"`
	QueuedAt        string `json:"queued_at"`
	ConfirmedAt     string `json:"confirmed_at,omitempty"`
	HoldExpiresAt   string `json:"hold_expires_at,omitempty"`
	HeldCopyID      string `json:"held_copy_id,omitempty"`
	ClosedAt        string `json:"closed_at,omitempty"`
	RejectionReason string `json:"rejection_reason,omitempty"`
}

type CopyResponse struct {
	ID           string `json:"id"`
	TitleID      string `json:"title_id"`
	BranchID     string `json:"branch_id"`
	Barcode      string `json:"barcode"`
	Availability string `json:"availability"`
	OpenLoanID   string `json:"open_loan_id,omitempty"`
	DueAt        string `json:"due_at,omitempty"`
	WithdrawnAt  string `json:"withdrawn_at,omitempty"`
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatID(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func mapFine(f *fine.Fine, borrowerID uuid.UUID) FineResponse {
	resp := FineResponse{
		ID:          f.ID.String(),
		LoanID:      f.LoanID.String(),
		Reason:      string(f.Reason),
		Amount:      fine.FormatAmount(f.AmountCents),
		AmountCents: f.AmountCents,
		DaysOverdue: f.DaysOverdue,
		Paid:        f.Paid,
		ComputedAt:  formatTime(&f.ComputedAt),
		PaidAt:      formatTime(f.PaidAt),
	}
	if borrowerID != uuid.Nil {
		resp.BorrowerID = borrowerID.String()
	}
	return resp
}

func mapExtension(r *loan.ExtensionRequest) *ExtensionResponse {
	if r == nil {
		return nil
	}
	return &ExtensionResponse{
		ID:              r.ID.String(),
		LoanID:          r.LoanID.String(),
		Status:          string(r.Status),
		RequestedAt:     formatTime(&r.RequestedAt),
		DecidedBy:       formatID(r.DecidedBy),
		DecidedAt:       formatTime(r.DecidedAt),
		RejectionReason: r.RejectionReason,
	}
}

func mapLoanView(v *service.LoanView) LoanResponse {
	l := v.Loan
	resp := LoanResponse{
		ID:               l.ID.String(),
		CopyID:           l.CopyID.String(),
		TitleID:          l.TitleID.String(),
		BorrowerID:       l.BorrowerID.String(),
		ReservationID:    formatID(l.ReservationID),
		Status:           string(l.Status),
		RequestedAt:      formatTime(&l.RequestedAt),
		ApprovedAt:       formatTime(l.ApprovedAt),
		DueAt:            formatTime(l.DueAt),
		PickedUpAt:       formatTime(l.PickedUpAt),
		ReturnedAt:       formatTime(l.ReturnedAt),
		ClosedAt:         formatTime(l.ClosedAt),
		ExtensionUsed:    l.ExtensionUsed,
		Damaged:          l.Damaged,
		RejectionReason:  l.RejectionReason,
		DaysOverdue:      v.DaysOverdue,
		AccruedFine:      fine.FormatAmount(v.AccruedFineCents),
		OutstandingFines: fine.FormatAmount(v.OutstandingCents()),
		Fines:            make([]FineResponse, 0, len(v.Fines)),
		PendingExtension: mapExtension(v.PendingExtension),
	}
	for _, f := range v.Fines {
		resp.Fines = append(resp.Fines, mapFine(f, l.BorrowerID))
	}
	return resp
}

func mapApproval(v *service.ApprovalView) ApprovalResponse {
	return ApprovalResponse{
		Loan:       mapLoanView(v.Loan),
		PickupCode: mapPickupCode(v.PickupCode),
	}
}

func mapPickupCode(c *pickup.Code) PickupCodeResponse {
	return PickupCodeResponse{
		Code:      c.Code,
		ExpiresAt: formatTime(&c.ExpiresAt),
	}
}

func mapReservationView(v *service.ReservationView) ReservationResponse {
	r := v.Reservation
	return ReservationResponse{
		ID:              r.ID.String(),
		TitleID:         r.TitleID.String(),
		BorrowerID:      r.BorrowerID.String(),
		Class:           string(r.Class),
		Status:          string(r.Status),
		Position:        v.Position,
		QueuedAt:        formatTime(&r.QueuedAt),
		ConfirmedAt:     formatTime(r.ConfirmedAt),
		HoldExpiresAt:   formatTime(r.HoldExpiresAt),
		HeldCopyID:      formatID(r.HeldCopyID),
		ClosedAt:        formatTime(r.ClosedAt),
		RejectionReason: r.RejectionReason,
	}
}

func mapCopyView(v *service.CopyView) CopyResponse {
	c := v.Copy
	return CopyResponse{
		ID:           c.ID.String(),
		TitleID:      c.TitleID.String(),
		BranchID:     c.BranchID.String(),
		Barcode:      c.Barcode,
		Availability: string(v.Availability),
		OpenLoanID:   formatID(v.OpenLoanID),
		DueAt:        formatTime(v.DueAt),
		WithdrawnAt:  formatTime(c.WithdrawnAt),
	}
}
