package service

import "errors"

// Business failures surfaced to clients with a specific reason. Validation
// failures reject before any mutation; conflict failures may trigger
// caller-side refund flows.
var (
	ErrInvalidSession        = errors.New("invalid or unpaid checkout session")
	ErrWrongSessionType      = errors.New("checkout session is not a credit purchase")
	ErrMalformedMetadata     = errors.New("checkout session metadata is malformed")
	ErrSlotFull              = errors.New("slot is at capacity")
	ErrDuplicateBooking      = errors.New("booking already exists for this slot")
	ErrInsufficientCredit    = errors.New("insufficient credit balance")
	ErrBookingCreationFailed = errors.New("booking creation failed after debit; credit was refunded")
	ErrSlotUnavailable       = errors.New("slot taken by another confirmed registration")
	ErrScheduleConflict      = errors.New("a schedule already exists for this day and time")
	ErrNotFound              = errors.New("not found")
)
