package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/you/hockey-training/internal/domain"
	"github.com/you/hockey-training/internal/service"
)

type Handlers struct {
	fulfillment *service.FulfillmentSvc
	bookings    *service.BookingSvc
	schedules   *service.ScheduleSvc
	conflicts   *service.ConflictSvc
	adjustments *service.AdjustmentSvc
}

func NewHandlers(
	fulfillment *service.FulfillmentSvc,
	bookings *service.BookingSvc,
	schedules *service.ScheduleSvc,
	conflicts *service.ConflictSvc,
	adjustments *service.AdjustmentSvc,
) *Handlers {
	return &Handlers{
		fulfillment: fulfillment,
		bookings:    bookings,
		schedules:   schedules,
		conflicts:   conflicts,
		adjustments: adjustments,
	}
}

// writeErr maps the service error taxonomy onto HTTP statuses.
func writeErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidSession),
		errors.Is(err, service.ErrWrongSessionType),
		errors.Is(err, service.ErrMalformedMetadata):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInsufficientCredit):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrSlotFull),
		errors.Is(err, service.ErrDuplicateBooking),
		errors.Is(err, service.ErrScheduleConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrBookingCreationFailed):
		// Retryable: the debit was compensated and the duplicate check
		// protects a retry.
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "retryable": true})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// POST /v1/credits/fulfill
func (h *Handlers) FulfillCredits(c *gin.Context) {
	var in struct {
		CheckoutSessionID string `json:"checkout_session_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.fulfillment.Fulfill(c.Request.Context(), in.CheckoutSessionID)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"already_processed": res.AlreadyProcessed,
		"credits_added":     res.CreditsAdded,
		"new_balance":       res.NewBalance,
	})
}

// GET /v1/credits/balance — parents see their own; staff may pass owner_id.
func (h *Handlers) Balance(c *gin.Context) {
	ownerID := callerOwnerID(c)
	res, err := h.fulfillment.Balance(c.Request.Context(), ownerID)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// POST /v1/credits/adjust (STAFF)
func (h *Handlers) AdjustCredits(c *gin.Context) {
	var in struct {
		OwnerID string `json:"owner_id" binding:"required"`
		Credits int    `json:"credits" binding:"required"`
		Action  string `json:"action" binding:"required"` // grant | revoke
		Reason  string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var (
		res *service.AdjustResult
		err error
	)
	switch in.Action {
	case "grant":
		res, err = h.adjustments.Grant(c.Request.Context(), in.OwnerID, in.Credits, in.Reason)
	case "revoke":
		res, err = h.adjustments.Revoke(c.Request.Context(), in.OwnerID, in.Credits, in.Reason)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "action must be grant or revoke"})
		return
	}
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// POST /v1/credits/expire-sweep (STAFF)
func (h *Handlers) ExpireSweep(c *gin.Context) {
	n, err := h.fulfillment.ExpireSweep(c.Request.Context())
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"expired_lots": n})
}

// POST /v1/bookings
func (h *Handlers) CreateBooking(c *gin.Context) {
	var in struct {
		RegistrationID string `json:"registration_id" binding:"required"`
		SessionType    string `json:"session_type" binding:"required"`
		Date           string `json:"date" binding:"required"` // YYYY-MM-DD
		TimeSlot       string `json:"time_slot" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	st, err := domain.ParseSessionType(in.SessionType)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	date, err := time.Parse("2006-01-02", in.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}
	slot, err := domain.ParseTimeSlot(in.TimeSlot)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.bookings.Book(c.Request.Context(), service.BookRequest{
		OwnerID:        callerOwnerID(c),
		RegistrationID: in.RegistrationID,
		SessionType:    st,
		Date:           date,
		TimeSlot:       slot,
	})
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success":      true,
		"booking_id":   res.BookingID,
		"booking_date": res.BookingDate.Format("2006-01-02"),
	})
}

// POST /v1/bookings/:id/cancel
func (h *Handlers) CancelBooking(c *gin.Context) {
	if err := h.bookings.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GET /v1/bookings?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *Handlers) ListBookings(c *gin.Context) {
	var from, to time.Time
	if v := c.Query("from"); v != "" {
		from, _ = time.Parse("2006-01-02", v)
	}
	if v := c.Query("to"); v != "" {
		to, _ = time.Parse("2006-01-02", v)
	}
	out, err := h.bookings.List(c.Request.Context(), callerOwnerID(c), from, to)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": out})
}

// GET /v1/capacity?date=YYYY-MM-DD&time_slot=...&session_type=...
func (h *Handlers) Capacity(c *gin.Context) {
	date, err := time.Parse("2006-01-02", c.Query("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}
	st, err := domain.ParseSessionType(c.Query("session_type"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	slot, err := domain.ParseTimeSlot(c.Query("time_slot"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cap, err := h.bookings.Capacity(c.Request.Context(), date, slot, st)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"current_bookings": cap.CurrentBookings,
		"available_spots":  cap.AvailableSpots,
		"is_available":     cap.IsAvailable,
	})
}

// POST /v1/schedules
func (h *Handlers) CreateSchedule(c *gin.Context) {
	var in struct {
		RegistrationID string `json:"registration_id" binding:"required"`
		SessionType    string `json:"session_type" binding:"required"`
		DayOfWeek      string `json:"day_of_week" binding:"required"`
		TimeSlot       string `json:"time_slot" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	st, err := domain.ParseSessionType(in.SessionType)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := domain.ParseDayOfWeek(in.DayOfWeek); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	slot, err := domain.ParseTimeSlot(in.TimeSlot)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.schedules.Create(c.Request.Context(), service.CreateScheduleRequest{
		OwnerID:        callerOwnerID(c),
		RegistrationID: in.RegistrationID,
		SessionType:    st,
		DayOfWeek:      in.DayOfWeek,
		TimeSlot:       slot,
	})
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// POST /v1/schedules/:id/pause
func (h *Handlers) PauseSchedule(c *gin.Context) {
	var in struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&in)
	sched, err := h.schedules.Pause(c.Request.Context(), c.Param("id"), in.Reason)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, sched)
}

// POST /v1/schedules/:id/resume
func (h *Handlers) ResumeSchedule(c *gin.Context) {
	sched, err := h.schedules.Resume(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, sched)
}

// GET /v1/schedules
func (h *Handlers) ListSchedules(c *gin.Context) {
	out, err := h.schedules.ListByOwner(c.Request.Context(), callerOwnerID(c))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedules": out})
}

// POST /v1/registrations/:id/verify-payment (STAFF)
func (h *Handlers) VerifyRegistrationPayment(c *gin.Context) {
	res, err := h.conflicts.VerifyAndConfirm(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrSlotUnavailable) {
			c.JSON(http.StatusConflict, gin.H{
				"error":          err.Error(),
				"payment_status": res.PaymentStatus,
				"refundRequired": true,
				"reason":         res.Reason,
			})
			return
		}
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /v1/intents/stale (STAFF)
func (h *Handlers) StaleIntents(c *gin.Context) {
	out, err := h.bookings.StaleIntents(c.Request.Context())
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"intents": out})
}

// callerOwnerID resolves whose data the request touches: the token subject,
// or an explicit owner_id for staff.
func callerOwnerID(c *gin.Context) string {
	if role, _ := c.Get("role"); role == "STAFF" {
		if v := c.Query("owner_id"); v != "" {
			return v
		}
	}
	sub, _ := c.Get("sub")
	owner, _ := sub.(string)
	return owner
}
