package http

import (
	"github.com/gin-gonic/gin"

	"github.com/you/hockey-training/pkg/auth"
)

// NewRouter wires the API routes. Everything requires a valid token; the
// verification, adjustment, and reconciliation surfaces require STAFF.
func NewRouter(h *Handlers) *gin.Engine {
	r := gin.Default()

	v1 := r.Group("/v1")
	v1.Use(JWTAuth())
	{
		v1.POST("/credits/fulfill", h.FulfillCredits)
		v1.GET("/credits/balance", h.Balance)

		v1.POST("/bookings", h.CreateBooking)
		v1.GET("/bookings", h.ListBookings)
		v1.POST("/bookings/:id/cancel", h.CancelBooking)
		v1.GET("/capacity", h.Capacity)

		v1.POST("/schedules", h.CreateSchedule)
		v1.GET("/schedules", h.ListSchedules)
		v1.POST("/schedules/:id/pause", h.PauseSchedule)
		v1.POST("/schedules/:id/resume", h.ResumeSchedule)

		staff := v1.Group("")
		staff.Use(RequireRole(auth.RoleStaff))
		{
			staff.POST("/credits/adjust", h.AdjustCredits)
			staff.POST("/credits/expire-sweep", h.ExpireSweep)
			staff.POST("/registrations/:id/verify-payment", h.VerifyRegistrationPayment)
			staff.GET("/intents/stale", h.StaleIntents)
		}
	}

	return r
}
