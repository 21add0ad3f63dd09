package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/library-circulation/internal/api_gateway/middleware"
	"github.com/library-circulation/internal/circulation/service"
	"github.com/library-circulation/internal/domain/event"
	"github.com/library-circulation/internal/domain/timeline"
)

// TimelineHandler serves the per-record event history
type TimelineHandler struct {
	timeline service.TimelineService
	logger   *slog.Logger
}

func NewTimelineHandler(logger *slog.Logger, timeline service.TimelineService) *TimelineHandler {
	return &TimelineHandler{
		timeline: timeline,
		logger:   logger,
	}
}

// Get returns one page of the history of /timeline/:type/:id
func (h *TimelineHandler) Get(c *gin.Context) {
	aggType, ok := event.ParseAggregateType(c.Param("type"))
	if !ok {
		RespondBadRequest(c, "Invalid record type, want loan, reservation, fine or copy")
		return
	}
	id, ok := parseIDParam(c, "id", string(aggType))
	if !ok {
		return
	}

	var pagination PaginationParams
	if err := c.ShouldBindQuery(&pagination); err != nil {
		RespondBadRequest(c, "Invalid pagination parameters")
		return
	}

	page, err := h.timeline.GetTimeline(c.Request.Context(), middleware.GetActor(c), aggType, id, pagination.Page, pagination.PerPage)
	if err != nil {
		RespondServiceError(c, h.logger, err)
		return
	}
	entries := page.Entries
	if entries == nil {
		entries = []*timeline.Entry{}
	}
	RespondWithPaginatedData(c, http.StatusOK, entries, pagination.Page, pagination.PerPage, int(page.Total))
}
