package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/library-circulation/internal/api_gateway/middleware"
	"github.com/library-circulation/internal/circulation/service"
	"github.com/library-circulation/internal/domain/reservation"
)

// ReservationHandler handles HTTP requests for title reservation queues
type ReservationHandler struct {
	reservations service.ReservationService
	logger       *slog.Logger
}

func NewReservationHandler(logger *slog.Logger, reservations service.ReservationService) *ReservationHandler {
	return &ReservationHandler{
		reservations: reservations,
		logger:       logger,
	}
}

// Place queues a reservation on the title in the path
func (h *ReservationHandler) Place(c *gin.Context) {
	titleID, ok := parseIDParam(c, "id", "title")
	if !ok {
		return
	}

	var req PlaceReservationRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	actor := middleware.GetActor(c)
	borrowerID, err := borrowerOrSelf(req.BorrowerID, actor.ID)
	if err != nil {
		RespondBadRequest(c, "Invalid borrower ID")
		return
	}

	class, err := reservation.ParseClass(req.Class)
	if err != nil {
		RespondBadRequest(c, err.Error())
		return
	}

	view, err := h.reservations.PlaceReservation(c.Request.Context(), actor, titleID, borrowerID, class)
	if err != nil {
		RespondServiceError(c, h.logger, err)
		return
	}
	RespondCreated(c, mapReservationView(view))
}

// ListQueue returns the title's queued reservations in serving order
func (h *ReservationHandler) ListQueue(c *gin.Context) {
	titleID, ok := parseIDParam(c, "id", "title")
	if !ok {
		return
	}

	views, err := h.reservations.ListQueue(c.Request.Context(), middleware.GetActor(c), titleID)
	if err != nil {
		RespondServiceError(c, h.logger, err)
		return
	}

	queue := make([]ReservationResponse, 0, len(views))
	for _, v := range views {
		queue = append(queue, mapReservationView(v))
	}
	RespondOK(c, queue)
}

func (h *ReservationHandler) Get(c *gin.Context) {
	reservationID, ok := parseIDParam(c, "id", "reservation")
	if !ok {
		return
	}

	view, err := h.reservations.GetReservation(c.Request.Context(), middleware.GetActor(c), reservationID)
	if err != nil {
		RespondServiceError(c, h.logger, err)
		return
	}
	RespondOK(c, mapReservationView(view))
}

func (h *ReservationHandler) Confirm(c *gin.Context) {
	reservationID, ok := parseIDParam(c, "id", "reservation")
	if !ok {
		return
	}

	view, err := h.reservations.ConfirmReservation(c.Request.Context(), middleware.GetActor(c), reservationID)
	if err != nil {
		RespondServiceError(c, h.logger, err)
		return
	}
	RespondOK(c, mapReservationView(view))
}

func (h *ReservationHandler) Reject(c *gin.Context) {
	reservationID, ok := parseIDParam(c, "id", "reservation")
	if !ok {
		return
	}

	var req ReasonRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	view, err := h.reservations.RejectReservation(c.Request.Context(), middleware.GetActor(c), reservationID, req.Reason)
	if err != nil {
		RespondServiceError(c, h.logger, err)
		return
	}
	RespondOK(c, mapReservationView(view))
}

func (h *ReservationHandler) Cancel(c *gin.Context) {
	reservationID, ok := parseIDParam(c, "id", "reservation")
	if !ok {
		return
	}

	view, err := h.reservations.CancelReservation(c.Request.Context(), middleware.GetActor(c), reservationID)
	if err != nil {
		RespondServiceError(c, h.logger, err)
		return
	}
	RespondOK(c, mapReservationView(view))
}
