package api_gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/library-circulation/internal/api_gateway/handler"
	"github.com/library-circulation/internal/api_gateway/middleware"
)

type handlers struct {
	loans        *handler.LoanHandler
	reservations *handler.ReservationHandler
	copies       *handler.CopyHandler
	fines        *handler.FineHandler
	timelines    *handler.TimelineHandler
}

// setupRouter configures API routes and middleware for the application
func setupRouter(logger *slog.Logger, r *gin.Engine, h handlers) {
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CorrelationID())
	r.Use(middleware.Logger(logger))

	// Every API call acts on behalf of an identified actor
	v1 := r.Group("/api/v1", middleware.Actor())
	{
		copies := v1.Group("/copies")
		{
			copies.GET("/:id", h.copies.Get)
			copies.POST("/:id/loans", h.loans.Request)
			copies.POST("/:id/withdraw", h.copies.Withdraw)
		}

		loans := v1.Group("/loans")
		{
			loans.GET("/:id", h.loans.Get)
			loans.POST("/:id/approve", h.loans.Approve)
			loans.POST("/:id/reject", h.loans.Reject)
			loans.POST("/:id/cancel", h.loans.Cancel)
			loans.POST("/:id/pickup", h.loans.Pickup)
			loans.POST("/:id/return", h.loans.Return)
			loans.POST("/:id/extensions", h.loans.RequestExtension)
		}

		extensions := v1.Group("/extensions")
		{
			extensions.POST("/:id/approve", h.loans.ApproveExtension)
			extensions.POST("/:id/reject", h.loans.RejectExtension)
		}

		titles := v1.Group("/titles")
		{
			titles.POST("/:id/reservations", h.reservations.Place)
			titles.GET("/:id/queue", h.reservations.ListQueue)
		}

		reservations := v1.Group("/reservations")
		{
			reservations.GET("/:id", h.reservations.Get)
			reservations.POST("/:id/confirm", h.reservations.Confirm)
			reservations.POST("/:id/reject", h.reservations.Reject)
			reservations.POST("/:id/cancel", h.reservations.Cancel)
		}

		fines := v1.Group("/fines")
		{
			fines.GET("/:id", h.fines.Get)
			fines.POST("/:id/pay", h.fines.Pay)
		}

		v1.GET("/timeline/:type/:id", h.timelines.Get)
	}

	// Health check endpoint for monitoring
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})
}
