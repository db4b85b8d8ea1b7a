package domain

import (
	"fmt"
	"strings"
	"time"
)

type SessionType string

const (
	SessionGroup       SessionType = "group"
	SessionSunday      SessionType = "sunday"
	SessionPrivate     SessionType = "private"
	SessionSemiPrivate SessionType = "semi_private"
)

var sessionCapacity = map[SessionType]int{
	SessionGroup:       10,
	SessionSunday:      14,
	SessionPrivate:     1,
	SessionSemiPrivate: 2,
}

// MaxCapacity is the declared occupancy ceiling for one (date, time_slot)
// instance of this session type.
func (s SessionType) MaxCapacity() int {
	return sessionCapacity[s]
}

func ParseSessionType(s string) (SessionType, error) {
	t := SessionType(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := sessionCapacity[t]; !ok {
		return "", fmt.Errorf("unknown session type %q", s)
	}
	return t, nil
}

type BookingStatus string

const (
	BookingConfirmed BookingStatus = "confirmed"
	BookingAttended  BookingStatus = "attended"
	BookingCancelled BookingStatus = "cancelled"
	BookingNoShow    BookingStatus = "no_show"
)

// SessionBooking occupies exactly one spot of one slot instance.
// CreditPurchaseLotID points at the lot the booking was debited from and is
// what makes a compensating refund (and cancellation refunds) possible.
type SessionBooking struct {
	ID                  string `gorm:"primaryKey"`
	OwnerID             string `gorm:"index"`
	RegistrationID      string `gorm:"index"`
	SessionType         SessionType
	SessionDate         time.Time `gorm:"index"`
	TimeSlot            string
	CreditsUsed         int
	CreditPurchaseLotID *string
	IsRecurring         bool
	RecurringScheduleID *string
	Status              BookingStatus `gorm:"index"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// SlotCapacity is the capacity oracle's answer for one slot instance. It is
// advisory: it can be stale by the time a write lands.
type SlotCapacity struct {
	CurrentBookings int
	AvailableSpots  int
	IsAvailable     bool
}

// DateOnly truncates t to a UTC calendar date. Session dates compare by day,
// never by clock time.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// timeSlotLayouts accepted from clients, e.g. "6:00 PM" or "18:00".
var timeSlotLayouts = []string{"3:04 PM", "03:04 PM", "15:04"}

// ParseTimeSlot validates a clock-time label and returns it in the canonical
// "3:04 PM" form so that "6:00 PM" and "18:00" collide as the same slot.
func ParseTimeSlot(s string) (string, error) {
	in := strings.TrimSpace(s)
	for _, layout := range timeSlotLayouts {
		if t, err := time.Parse(layout, strings.ToUpper(in)); err == nil {
			return t.Format("3:04 PM"), nil
		}
	}
	return "", fmt.Errorf("unknown time slot %q", s)
}

// SameTimeSlot compares two slot labels after normalization. Labels that do
// not parse only match byte-for-byte.
func SameTimeSlot(a, b string) bool {
	na, errA := ParseTimeSlot(a)
	nb, errB := ParseTimeSlot(b)
	if errA != nil || errB != nil {
		return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
	}
	return na == nb
}
