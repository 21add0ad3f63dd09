// Package shared holds the error kinds, clock and status types used across
// the circulation domain packages.
package shared

import "errors"

// Error kinds reported synchronously by circulation operations. Typed errors
// in the domain packages unwrap to one of these so callers can branch with
// errors.Is.
var (
	ErrUnavailable          = errors.New("copy is not available")
	ErrIllegalTransition    = errors.New("illegal status transition")
	ErrInvalidCode          = errors.New("invalid pickup code")
	ErrExpiredCode          = errors.New("pickup code expired")
	ErrExtensionAlreadyUsed = errors.New("extension already used")
	ErrStaleState           = errors.New("record was modified concurrently")
	ErrInvalidInput         = errors.New("invalid input")
	ErrForbidden            = errors.New("operation not permitted for actor")
	ErrNotFound             = errors.New("not found")

	ErrBorrowLimitReached        = errors.New("borrower reached the open loan limit")
	ErrAlreadyBorrowing          = errors.New("borrower already has an open loan for this title")
	ErrDuplicateReservation      = errors.New("borrower already has an active reservation for this title")
	ErrExtensionAlreadyRequested = errors.New("an extension request is already pending")
	ErrCopyInUse                 = errors.New("copy is referenced by an open loan or hold")
)
