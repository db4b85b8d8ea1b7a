package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

type PaymentStatus string

const (
	PaymentPending         PaymentStatus = "pending"
	PaymentSucceeded       PaymentStatus = "succeeded"
	PaymentVerified        PaymentStatus = "verified"
	PaymentFailed          PaymentStatus = "failed"
	PaymentSlotUnavailable PaymentStatus = "slot_unavailable"
	PaymentCancelled       PaymentStatus = "cancelled"
)

// Confirmed reports whether the registration counts against slot capacity
// when other registrations are validated.
func (p PaymentStatus) Confirmed() bool {
	return p == PaymentSucceeded || p == PaymentVerified
}

type ProgramType string

const (
	ProgramGroup       ProgramType = "group"
	ProgramPrivate     ProgramType = "private"
	ProgramSemiPrivate ProgramType = "semi_private"
)

// ProgramSelection is the structured form payload of a registration: which
// weekly commitment the parent chose at checkout. Group programs claim one
// or more weekdays; private and semi-private claim a single day + time.
type ProgramSelection struct {
	Type      ProgramType `json:"type"`
	GroupDays []string    `json:"group_days,omitempty"`
	Day       string      `json:"day,omitempty"`
	TimeSlot  string      `json:"time_slot,omitempty"`
}

// RegistrationRecord is the subscription-path registration row. It is
// read-mostly here: the conflict validator scans confirmed registrations and
// flips payment_status at verification time.
type RegistrationRecord struct {
	ID                string `gorm:"primaryKey"`
	OwnerID           string `gorm:"index"`
	PlayerName        string
	PaymentStatus     PaymentStatus `gorm:"index"`
	CheckoutSessionID string
	FormPayload       datatypes.JSON
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (r *RegistrationRecord) Program() (ProgramSelection, error) {
	var p ProgramSelection
	if len(r.FormPayload) == 0 {
		return p, fmt.Errorf("registration %s has no form payload", r.ID)
	}
	if err := json.Unmarshal(r.FormPayload, &p); err != nil {
		return p, fmt.Errorf("decode form payload: %w", err)
	}
	return p, nil
}

func (r *RegistrationRecord) SetProgram(p ProgramSelection) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	r.FormPayload = datatypes.JSON(b)
	return nil
}
