package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/library-circulation/internal/api_gateway/middleware"
	"github.com/library-circulation/internal/circulation/service"
)

type FineHandler struct {
	fines  service.FineService
	logger *slog.Logger
}

func NewFineHandler(logger *slog.Logger, fines service.FineService) *FineHandler {
	return &FineHandler{
		fines:  fines,
		logger: logger,
	}
}

func (h *FineHandler) Get(c *gin.Context) {
	fineID, ok := parseIDParam(c, "id", "fine")
	if !ok {
		return
	}

	view, err := h.fines.GetFine(c.Request.Context(), middleware.GetActor(c), fineID)
	if err != nil {
		RespondServiceError(c, h.logger, err)
		return
	}
	RespondOK(c, mapFine(view.Fine, view.BorrowerID))
}

// Pay records that the fine was settled at the desk
func (h *FineHandler) Pay(c *gin.Context) {
	fineID, ok := parseIDParam(c, "id", "fine")
	if !ok {
		return
	}

	view, err := h.fines.PayFine(c.Request.Context(), middleware.GetActor(c), fineID)
	if err != nil {
		RespondServiceError(c, h.logger, err)
		return
	}
	RespondOK(c, mapFine(view.Fine, view.BorrowerID))
}
