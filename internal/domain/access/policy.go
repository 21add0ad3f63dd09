// Package access decides which actors may perform privileged circulation
// operations. Each operation declares a Capability and the policy table maps
// capabilities to the roles that hold them.
package access

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/library-circulation/internal/domain/shared"
)

// Role is the actor role supplied by the authentication collaborator
type Role string

const (
	RoleMember    Role = "member"
	RoleLibrarian Role = "librarian"
	RoleManager   Role = "manager"
	RoleAdmin     Role = "admin"
)

// ParseRole normalizes a role string, rejecting unknown roles
func ParseRole(s string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(s)))
	switch role {
	case RoleMember, RoleLibrarian, RoleManager, RoleAdmin:
		return role, nil
	}
	return "", fmt.Errorf("unknown role %q: %w", s, shared.ErrInvalidInput)
}

// Capability names a privileged operation
type Capability string

const (
	CapApproveLoan        Capability = "loan.approve"
	CapRejectLoan         Capability = "loan.reject"
	CapCancelApprovedLoan Capability = "loan.cancel_approved"
	CapFlagDamage         Capability = "loan.flag_damage"
	CapDecideExtension    Capability = "loan.decide_extension"
	CapConfirmReservation Capability = "reservation.confirm"
	CapRejectReservation  Capability = "reservation.reject"
	CapPriorityReserve    Capability = "reservation.priority"
	CapViewQueue          Capability = "reservation.view_queue"
	CapRecordPayment      Capability = "fine.record_payment"
	CapWithdrawCopy       Capability = "copy.withdraw"
	// CapActOnBehalf lets staff borrow, reserve and read records for any borrower
	CapActOnBehalf Capability = "borrower.act_on_behalf"
)

var staff = []Role{RoleLibrarian, RoleManager, RoleAdmin}

var policy = map[Capability][]Role{
	CapApproveLoan:        staff,
	CapRejectLoan:         staff,
	CapCancelApprovedLoan: staff,
	CapFlagDamage:         staff,
	CapDecideExtension:    staff,
	CapConfirmReservation: staff,
	CapRejectReservation:  staff,
	CapPriorityReserve:    staff,
	CapViewQueue:          staff,
	CapRecordPayment:      staff,
	CapActOnBehalf:        staff,
	CapWithdrawCopy:       {RoleManager, RoleAdmin},
}

// Actor is the authenticated caller of an operation. The zero Actor is the
// system itself (sweeper) and never passes Authorize.
type Actor struct {
	ID   uuid.UUID `json:"id"`
	Role Role      `json:"role"`
}

// System is the actor recorded on sweeper-driven transitions
var System = Actor{}

func (a Actor) IsSystem() bool {
	return a.ID == uuid.Nil && a.Role == ""
}

// Can reports whether the actor's role holds the capability
func (a Actor) Can(c Capability) bool {
	for _, r := range policy[c] {
		if r == a.Role {
			return true
		}
	}
	return false
}

// Authorize rejects the actor uniformly when it lacks the capability
func Authorize(a Actor, c Capability) error {
	if a.Can(c) {
		return nil
	}
	return ForbiddenError{Role: a.Role, Capability: c}
}

// AuthorizeBorrower allows the borrower themself or staff acting on their behalf
func AuthorizeBorrower(a Actor, borrowerID uuid.UUID) error {
	if a.ID != uuid.Nil && a.ID == borrowerID {
		return nil
	}
	return Authorize(a, CapActOnBehalf)
}

// ForbiddenError identifies the missing capability
type ForbiddenError struct {
	Role       Role
	Capability Capability
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("role %q lacks capability %s", e.Role, e.Capability)
}

func (e ForbiddenError) Unwrap() error {
	return shared.ErrForbidden
}
