package notify

import (
	"encoding/json"
	"fmt"
	"time"
)

// Routing keys published by the API and consumed by the notify worker.
const (
	RKCreditsPurchased   = "credits.purchased"
	RKBookingCreated     = "booking.created"
	RKBookingCancelled   = "booking.cancelled"
	RKScheduleCreated    = "schedule.created"
	RKSlotUnavailable    = "registration.slot_unavailable"
	RKCompensationFailed = "booking.compensation_failed"
)

type CreditsPurchased struct {
	OwnerID     string `json:"owner_id"`
	PackageType string `json:"package_type"`
	Credits     int    `json:"credits"`
	NewBalance  int    `json:"new_balance"`
}

type BookingCreated struct {
	BookingID      string    `json:"booking_id"`
	OwnerID        string    `json:"owner_id"`
	RegistrationID string    `json:"registration_id"`
	SessionType    string    `json:"session_type"`
	SessionDate    time.Time `json:"session_date"`
	TimeSlot       string    `json:"time_slot"`
	IsRecurring    bool      `json:"is_recurring"`
}

type BookingCancelled struct {
	BookingID      string `json:"booking_id"`
	OwnerID        string `json:"owner_id"`
	CreditRefunded bool   `json:"credit_refunded"`
}

type ScheduleCreated struct {
	ScheduleID  string `json:"schedule_id"`
	OwnerID     string `json:"owner_id"`
	DayOfWeek   string `json:"day_of_week"`
	TimeSlot    string `json:"time_slot"`
	FirstBooked bool   `json:"first_booked"`
	Message     string `json:"message,omitempty"`
}

type SlotUnavailable struct {
	RegistrationID string `json:"registration_id"`
	Reason         string `json:"reason"`
	RefundRequired bool   `json:"refund_required"`
}

// CompensationFailed is the worst case: a debit whose booking failed and
// whose refund also failed. Staff must reconcile by hand.
type CompensationFailed struct {
	OwnerID  string `json:"owner_id"`
	LotID    string `json:"lot_id"`
	IntentID string `json:"intent_id"`
	Error    string `json:"error"`
}

func Decode[T any](b []byte) (T, error) {
	var t T
	if err := json.Unmarshal(b, &t); err != nil {
		var zero T
		return zero, fmt.Errorf("decode payload: %w", err)
	}
	return t, nil
}
