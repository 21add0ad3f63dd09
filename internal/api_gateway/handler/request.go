package handler

import (
	"errors"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// parseIDParam reads a UUID path parameter, answering 400 when it is malformed
func parseIDParam(c *gin.Context, name, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		RespondBadRequest(c, "Invalid "+label+" ID")
		return uuid.Nil, false
	}
	return id, true
}

// bindOptionalJSON binds a body that may be omitted entirely
func bindOptionalJSON(c *gin.Context, obj any) error {
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// borrowerOrSelf resolves an optional borrower id, defaulting to the caller
func borrowerOrSelf(raw string, self uuid.UUID) (uuid.UUID, error) {
	if raw == "" {
		return self, nil
	}
	return uuid.Parse(raw)
}
