package domain

import (
	"fmt"
	"strings"
	"time"
)

// AutoBookHorizon bounds how far ahead schedule creation will attempt an
// immediate booking. Occurrences beyond it wait for the next cycle.
const AutoBookHorizon = 14 * 24 * time.Hour

// RecurringSchedule is a standing weekly commitment. NextBookingDate always
// points at the next occurrence to book; it advances by 7 days after each
// successful auto-booking and is recomputed from today on resume.
type RecurringSchedule struct {
	ID              string `gorm:"primaryKey"`
	OwnerID         string `gorm:"index"`
	RegistrationID  string `gorm:"index;uniqueIndex:uniq_schedule_slot"`
	SessionType     SessionType
	DayOfWeek       string `gorm:"uniqueIndex:uniq_schedule_slot"`
	TimeSlot        string `gorm:"uniqueIndex:uniq_schedule_slot"`
	IsActive        bool
	PausedReason    string
	LastBookedDate  *time.Time
	NextBookingDate time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func ParseDayOfWeek(s string) (time.Weekday, error) {
	wd, ok := weekdays[CanonicalDayOfWeek(s)]
	if !ok {
		return 0, fmt.Errorf("unknown day of week %q", s)
	}
	return wd, nil
}

// CanonicalDayOfWeek is the lowercase form persisted on schedules, so
// "Monday" and "monday" land on the same unique index entry.
func CanonicalDayOfWeek(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NextOccurrence returns the soonest calendar date strictly after `from`
// that falls on wd. When `from` itself is that weekday the result rolls a
// full week ahead, so the answer is never today.
func NextOccurrence(from time.Time, wd time.Weekday) time.Time {
	d := DateOnly(from)
	days := (int(wd) - int(d.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	return d.AddDate(0, 0, days)
}
