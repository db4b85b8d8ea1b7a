package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/you/hockey-training/internal/domain"
	"github.com/you/hockey-training/internal/notify"
	"github.com/you/hockey-training/internal/repository"
)

// StaleIntentAge is how old a pending intent must be before the
// reconciliation scan reports it.
const StaleIntentAge = 15 * time.Minute

// BookingSvc is the compensating-transaction core of the credit path:
// capacity check → duplicate check → intent → debit → booking insert, with
// a refund of the debited credit when the insert fails. There is no
// transaction spanning these steps; the refund is the only safety net for
// the debit-then-fail case, and it is mandatory.
type BookingSvc struct {
	bookings BookingStore
	ledger   LedgerStore
	intents  IntentStore
	pub      EventPublisher
	log      *zap.Logger
}

func NewBookingSvc(bookings BookingStore, ledger LedgerStore, intents IntentStore, pub EventPublisher, log *zap.Logger) *BookingSvc {
	return &BookingSvc{bookings: bookings, ledger: ledger, intents: intents, pub: pub, log: log}
}

type BookRequest struct {
	OwnerID             string
	RegistrationID      string
	SessionType         domain.SessionType
	Date                time.Time
	TimeSlot            string
	IsRecurring         bool
	RecurringScheduleID *string
}

type BookResult struct {
	BookingID   string    `json:"booking_id"`
	BookingDate time.Time `json:"booking_date"`
}

// Book consumes exactly one credit and one capacity spot, or fails with
// nothing consumed. The capacity and duplicate checks are advisory (they
// can be stale the instant after they run); the debit primitive is atomic,
// so over-spending credit is impossible even when two requests race the
// same slot.
func (s *BookingSvc) Book(ctx context.Context, req BookRequest) (*BookResult, error) {
	date := domain.DateOnly(req.Date)

	cap, err := s.bookings.SlotCapacity(ctx, date, req.TimeSlot, req.SessionType, req.SessionType.MaxCapacity())
	if err != nil {
		return nil, fmt.Errorf("capacity check: %w", err)
	}
	if !cap.IsAvailable {
		return nil, ErrSlotFull
	}

	exists, err := s.bookings.ExistsActive(ctx, req.RegistrationID, date, req.TimeSlot, req.SessionType)
	if err != nil {
		return nil, fmt.Errorf("duplicate check: %w", err)
	}
	if exists {
		return nil, ErrDuplicateBooking
	}

	// Intent is written before the debit so a crash between debit and
	// booking insert leaves a record for reconciliation.
	intent := &domain.BookingIntent{
		OwnerID:        req.OwnerID,
		RegistrationID: req.RegistrationID,
		SessionType:    req.SessionType,
		SessionDate:    date,
		TimeSlot:       req.TimeSlot,
	}
	if err := s.intents.Create(ctx, intent); err != nil {
		return nil, fmt.Errorf("intent write: %w", err)
	}

	lotID, err := s.ledger.Debit(ctx, req.OwnerID, 1)
	if err != nil {
		_ = s.intents.MarkCompensated(ctx, intent.ID)
		if errors.Is(err, repository.ErrInsufficientLotCredit) {
			return nil, ErrInsufficientCredit
		}
		return nil, fmt.Errorf("credit debit: %w", err)
	}
	if err := s.intents.AttachLot(ctx, intent.ID, lotID); err != nil {
		s.log.Warn("intent lot attach failed", zap.String("intent_id", intent.ID), zap.Error(err))
	}

	booking := &domain.SessionBooking{
		OwnerID:             req.OwnerID,
		RegistrationID:      req.RegistrationID,
		SessionType:         req.SessionType,
		SessionDate:         date,
		TimeSlot:            req.TimeSlot,
		CreditsUsed:         1,
		CreditPurchaseLotID: &lotID,
		IsRecurring:         req.IsRecurring,
		RecurringScheduleID: req.RecurringScheduleID,
		Status:              domain.BookingConfirmed,
	}
	if err := s.bookings.Create(ctx, booking); err != nil {
		return nil, s.compensate(ctx, req.OwnerID, lotID, intent.ID, err)
	}

	if err := s.intents.MarkCompleted(ctx, intent.ID); err != nil {
		s.log.Warn("intent completion mark failed", zap.String("intent_id", intent.ID), zap.Error(err))
	}

	if perr := s.pub.PublishJSON(ctx, notify.RKBookingCreated, notify.BookingCreated{
		BookingID:      booking.ID,
		OwnerID:        booking.OwnerID,
		RegistrationID: booking.RegistrationID,
		SessionType:    string(booking.SessionType),
		SessionDate:    booking.SessionDate,
		TimeSlot:       booking.TimeSlot,
		IsRecurring:    booking.IsRecurring,
	}); perr != nil {
		s.log.Warn("publish booking.created failed", zap.Error(perr))
	}

	s.log.Info("booking created",
		zap.String("booking_id", booking.ID),
		zap.String("owner_id", req.OwnerID),
		zap.String("lot_id", lotID),
		zap.Time("date", date))

	return &BookResult{BookingID: booking.ID, BookingDate: booking.SessionDate}, nil
}

// compensate refunds the debited credit after a failed booking insert. A
// refund failure is the most severe failure class: the ledger is now short
// one credit with no booking to show for it, and only an operator can fix
// that.
func (s *BookingSvc) compensate(ctx context.Context, ownerID, lotID, intentID string, cause error) error {
	s.log.Warn("booking insert failed after debit, compensating",
		zap.String("owner_id", ownerID),
		zap.String("lot_id", lotID),
		zap.Error(cause))

	if err := s.ledger.Refund(ctx, ownerID, lotID, 1); err != nil {
		s.log.Error("COMPENSATION FAILED: credit debited with no booking, manual reconciliation required",
			zap.String("owner_id", ownerID),
			zap.String("lot_id", lotID),
			zap.String("intent_id", intentID),
			zap.NamedError("refund_error", err),
			zap.NamedError("booking_error", cause))
		if perr := s.pub.PublishJSON(ctx, notify.RKCompensationFailed, notify.CompensationFailed{
			OwnerID:  ownerID,
			LotID:    lotID,
			IntentID: intentID,
			Error:    err.Error(),
		}); perr != nil {
			s.log.Warn("publish compensation_failed failed", zap.Error(perr))
		}
		return fmt.Errorf("%w: refund also failed: %v", ErrBookingCreationFailed, err)
	}

	if err := s.intents.MarkCompensated(ctx, intentID); err != nil {
		s.log.Warn("intent compensation mark failed", zap.String("intent_id", intentID), zap.Error(err))
	}
	return fmt.Errorf("%w: %v", ErrBookingCreationFailed, cause)
}

// Cancel transitions a confirmed booking to cancelled and refunds its
// credit to the originating lot. Repeated cancels are rejected, so the
// refund can fire at most once.
func (s *BookingSvc) Cancel(ctx context.Context, bookingID string) error {
	b, err := s.bookings.CancelConfirmed(ctx, bookingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}

	refunded := false
	if b.CreditsUsed > 0 && b.CreditPurchaseLotID != nil {
		if err := s.ledger.Refund(ctx, b.OwnerID, *b.CreditPurchaseLotID, b.CreditsUsed); err != nil {
			s.log.Error("cancellation refund failed, manual reconciliation required",
				zap.String("booking_id", b.ID),
				zap.String("lot_id", *b.CreditPurchaseLotID),
				zap.Error(err))
			return fmt.Errorf("cancellation refund: %w", err)
		}
		refunded = true
	}

	if perr := s.pub.PublishJSON(ctx, notify.RKBookingCancelled, notify.BookingCancelled{
		BookingID:      b.ID,
		OwnerID:        b.OwnerID,
		CreditRefunded: refunded,
	}); perr != nil {
		s.log.Warn("publish booking.cancelled failed", zap.Error(perr))
	}
	return nil
}

// Capacity exposes the oracle's answer for one slot instance.
func (s *BookingSvc) Capacity(ctx context.Context, date time.Time, timeSlot string, sessionType domain.SessionType) (*domain.SlotCapacity, error) {
	return s.bookings.SlotCapacity(ctx, domain.DateOnly(date), timeSlot, sessionType, sessionType.MaxCapacity())
}

// List returns the owner's bookings in a date window.
func (s *BookingSvc) List(ctx context.Context, ownerID string, from, to time.Time) ([]domain.SessionBooking, error) {
	return s.bookings.ListByOwner(ctx, ownerID, from, to)
}

// StaleIntents surfaces debits whose booking never landed.
func (s *BookingSvc) StaleIntents(ctx context.Context) ([]domain.BookingIntent, error) {
	return s.intents.ListStalePending(ctx, time.Now().UTC().Add(-StaleIntentAge))
}
