package service

import (
	"context"
	"time"

	"github.com/you/hockey-training/internal/domain"
)

// Store interfaces the services depend on. internal/repository implements
// all of them over gorm; tests substitute sqlite-backed repos or wrappers.

type LedgerStore interface {
	EnsureAccount(ctx context.Context, ownerID string) (*domain.CreditAccount, error)
	AccountByOwner(ctx context.Context, ownerID string) (*domain.CreditAccount, error)
	LotBySessionID(ctx context.Context, checkoutSessionID string) (*domain.CreditPurchaseLot, error)
	InsertLot(ctx context.Context, lot *domain.CreditPurchaseLot) error
	AddCredits(ctx context.Context, ownerID string, amount int) error
	Debit(ctx context.Context, ownerID string, amount int) (string, error)
	Refund(ctx context.Context, ownerID, lotID string, amount int) error
	DerivedBalance(ctx context.Context, ownerID string) (int, error)
	Reconcile(ctx context.Context, ownerID string) (int, error)
	LotsByOwner(ctx context.Context, ownerID string) ([]domain.CreditPurchaseLot, error)
	ExpireLots(ctx context.Context, now time.Time) (int, error)
}

type BookingStore interface {
	SlotCapacity(ctx context.Context, date time.Time, timeSlot string, sessionType domain.SessionType, maxCapacity int) (*domain.SlotCapacity, error)
	ExistsActive(ctx context.Context, registrationID string, date time.Time, timeSlot string, sessionType domain.SessionType) (bool, error)
	Create(ctx context.Context, b *domain.SessionBooking) error
	ByID(ctx context.Context, id string) (*domain.SessionBooking, error)
	CancelConfirmed(ctx context.Context, id string) (*domain.SessionBooking, error)
	ListByOwner(ctx context.Context, ownerID string, from, to time.Time) ([]domain.SessionBooking, error)
}

type IntentStore interface {
	Create(ctx context.Context, in *domain.BookingIntent) error
	AttachLot(ctx context.Context, intentID, lotID string) error
	MarkCompleted(ctx context.Context, intentID string) error
	MarkCompensated(ctx context.Context, intentID string) error
	ListStalePending(ctx context.Context, olderThan time.Time) ([]domain.BookingIntent, error)
}

type ScheduleStore interface {
	Create(ctx context.Context, s *domain.RecurringSchedule) error
	ByID(ctx context.Context, id string) (*domain.RecurringSchedule, error)
	Save(ctx context.Context, s *domain.RecurringSchedule) error
	ListByOwner(ctx context.Context, ownerID string) ([]domain.RecurringSchedule, error)
}

type RegistrationStore interface {
	ByID(ctx context.Context, id string) (*domain.RegistrationRecord, error)
	ListConfirmedExcept(ctx context.Context, excludeID string) ([]domain.RegistrationRecord, error)
	SetPaymentStatus(ctx context.Context, id string, st domain.PaymentStatus) error
}

// EventPublisher is the notification side-channel. Publishing is always
// best-effort: a failure is logged and never rolls back the operation.
type EventPublisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}
