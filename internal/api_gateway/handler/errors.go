package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/library-circulation/internal/api_gateway/middleware"
	"github.com/library-circulation/internal/domain/shared"
)

// errorMapping ties a domain error kind to its HTTP status and envelope code
type errorMapping struct {
	kind   error
	status int
	code   string
}

// Order matters only for errors wrapping more than one kind; the more
// specific kinds come first.
var errorMappings = []errorMapping{
	{shared.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{shared.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
	{shared.ErrInvalidInput, http.StatusBadRequest, "INVALID_INPUT"},
	{shared.ErrExpiredCode, http.StatusGone, "EXPIRED_CODE"},
	{shared.ErrInvalidCode, http.StatusUnprocessableEntity, "INVALID_CODE"},
	{shared.ErrExtensionAlreadyUsed, http.StatusUnprocessableEntity, "EXTENSION_ALREADY_USED"},
	{shared.ErrIllegalTransition, http.StatusUnprocessableEntity, "ILLEGAL_TRANSITION"},
	{shared.ErrBorrowLimitReached, http.StatusConflict, "BORROW_LIMIT_REACHED"},
	{shared.ErrAlreadyBorrowing, http.StatusConflict, "ALREADY_BORROWING"},
	{shared.ErrDuplicateReservation, http.StatusConflict, "DUPLICATE_RESERVATION"},
	{shared.ErrExtensionAlreadyRequested, http.StatusConflict, "EXTENSION_ALREADY_REQUESTED"},
	{shared.ErrCopyInUse, http.StatusConflict, "COPY_IN_USE"},
	{shared.ErrStaleState, http.StatusConflict, "STALE_STATE"},
	{shared.ErrUnavailable, http.StatusConflict, "UNAVAILABLE"},
}

// RespondServiceError maps a service error onto the envelope. Unknown errors
// are logged and hidden behind a generic 500.
func RespondServiceError(c *gin.Context, logger *slog.Logger, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.kind) {
			RespondWithError(c, m.status, m.code, err.Error())
			return
		}
	}
	logger.Error("Unhandled service error",
		"path", c.FullPath(),
		"correlation_id", middleware.GetCorrelationID(c),
		"error", err,
	)
	RespondInternalError(c)
}
