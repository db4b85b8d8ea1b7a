package domain

import "time"

type IntentStatus string

const (
	IntentPending     IntentStatus = "pending"
	IntentCompleted   IntentStatus = "completed"
	IntentCompensated IntentStatus = "compensated"
)

// BookingIntent is written before the saga's debit step and resolved after
// booking creation (completed) or after a compensating refund (compensated).
// A pending intent that outlives its request marks a debit whose booking
// never landed — the reconciliation scan surfaces those to operators.
type BookingIntent struct {
	ID                  string `gorm:"primaryKey"`
	OwnerID             string `gorm:"index"`
	RegistrationID      string
	SessionType         SessionType
	SessionDate         time.Time
	TimeSlot            string
	CreditPurchaseLotID *string
	Status              IntentStatus `gorm:"index"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
