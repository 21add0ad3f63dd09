package loan

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/library-circulation/internal/domain/shared"
)

// ExtensionStatus defines extension request states
type ExtensionStatus string

const (
	ExtensionPending  ExtensionStatus = "pending"
	ExtensionApproved ExtensionStatus = "approved"
	ExtensionRejected ExtensionStatus = "rejected"
)

// ExtensionRequest asks staff to push a loan's due date once
type ExtensionRequest struct {
	ID              uuid.UUID       `json:"id"`
	LoanID          uuid.UUID       `json:"loan_id"`
	Status          ExtensionStatus `json:"status"`
	RequestedAt     time.Time       `json:"requested_at"`
	DecidedBy       *uuid.UUID      `json:"decided_by,omitempty"`
	DecidedAt       *time.Time      `json:"decided_at,omitempty"`
	RejectionReason string          `json:"rejection_reason,omitempty"`
}

func NewExtensionRequest(loanID uuid.UUID, now time.Time) *ExtensionRequest {
	return &ExtensionRequest{
		ID:          uuid.New(),
		LoanID:      loanID,
		Status:      ExtensionPending,
		RequestedAt: now,
	}
}

func (r *ExtensionRequest) decide(status ExtensionStatus, by uuid.UUID, now time.Time) error {
	if r.Status != ExtensionPending {
		return ExtensionDecidedError{RequestID: r.ID, Status: r.Status}
	}
	r.Status = status
	r.DecidedBy = &by
	r.DecidedAt = &now
	return nil
}

func (r *ExtensionRequest) Approve(by uuid.UUID, now time.Time) error {
	return r.decide(ExtensionApproved, by, now)
}

func (r *ExtensionRequest) Reject(by uuid.UUID, reason string, now time.Time) error {
	if err := r.decide(ExtensionRejected, by, now); err != nil {
		return err
	}
	r.RejectionReason = reason
	return nil
}

// ExtensionDecidedError reports a decision on an already decided request
type ExtensionDecidedError struct {
	RequestID uuid.UUID
	Status    ExtensionStatus
}

func (e ExtensionDecidedError) Error() string {
	return fmt.Sprintf("extension request %s already %s", e.RequestID, e.Status)
}

func (e ExtensionDecidedError) Unwrap() error {
	return shared.ErrIllegalTransition
}
