package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/library-circulation/internal/api_gateway/middleware"
	"github.com/library-circulation/internal/circulation/service"
)

// CopyHandler serves copy availability and withdrawal
type CopyHandler struct {
	copies service.CopyService
	logger *slog.Logger
}

func NewCopyHandler(logger *slog.Logger, copies service.CopyService) *CopyHandler {
	return &CopyHandler{
		copies: copies,
		logger: logger,
	}
}

func (h *CopyHandler) Get(c *gin.Context) {
	copyID, ok := parseIDParam(c, "id", "copy")
	if !ok {
		return
	}

	view, err := h.copies.GetCopy(c.Request.Context(), middleware.GetActor(c), copyID)
	if err != nil {
		RespondServiceError(c, h.logger, err)
		return
	}
	RespondOK(c, mapCopyView(view))
}

func (h *CopyHandler) Withdraw(c *gin.Context) {
	copyID, ok := parseIDParam(c, "id", "copy")
	if !ok {
		return
	}

	view, err := h.copies.WithdrawCopy(c.Request.Context(), middleware.GetActor(c), copyID)
	if err != nil {
		RespondServiceError(c, h.logger, err)
		return
	}
	RespondOK(c, mapCopyView(view))
}
