package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/you/hockey-training/internal/domain"
)

// BookingRepo owns session bookings and answers slot capacity questions.
type BookingRepo struct {
	db *gorm.DB
}

func NewBookingRepo(db *gorm.DB) *BookingRepo {
	return &BookingRepo{db: db}
}

func (r *BookingRepo) Migrate() error {
	return r.db.AutoMigrate(&domain.SessionBooking{})
}

// SlotCapacity counts non-cancelled bookings for the slot instance. The
// answer is advisory: nothing stops a concurrent booking landing between
// this read and the caller's write.
func (r *BookingRepo) SlotCapacity(ctx context.Context, date time.Time, timeSlot string, sessionType domain.SessionType, maxCapacity int) (*domain.SlotCapacity, error) {
	var current int64
	err := r.db.WithContext(ctx).Model(&domain.SessionBooking{}).
		Where("session_date = ? AND time_slot = ? AND session_type = ? AND status <> ?",
			domain.DateOnly(date), timeSlot, sessionType, domain.BookingCancelled).
		Count(&current).Error
	if err != nil {
		return nil, err
	}
	available := maxCapacity - int(current)
	if available < 0 {
		available = 0
	}
	return &domain.SlotCapacity{
		CurrentBookings: int(current),
		AvailableSpots:  available,
		IsAvailable:     int(current) < maxCapacity,
	}, nil
}

// ExistsActive reports whether the registration already holds a
// non-cancelled booking for this exact slot — the saga's retry guard.
func (r *BookingRepo) ExistsActive(ctx context.Context, registrationID string, date time.Time, timeSlot string, sessionType domain.SessionType) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&domain.SessionBooking{}).
		Where("registration_id = ? AND session_date = ? AND time_slot = ? AND session_type = ? AND status <> ?",
			registrationID, domain.DateOnly(date), timeSlot, sessionType, domain.BookingCancelled).
		Count(&n).Error
	return n > 0, err
}

func (r *BookingRepo) Create(ctx context.Context, b *domain.SessionBooking) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	b.SessionDate = domain.DateOnly(b.SessionDate)
	return r.db.WithContext(ctx).Create(b).Error
}

func (r *BookingRepo) ByID(ctx context.Context, id string) (*domain.SessionBooking, error) {
	var b domain.SessionBooking
	if err := r.db.WithContext(ctx).First(&b, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// CancelConfirmed transitions a booking to cancelled. Returns
// gorm.ErrRecordNotFound when the booking is missing or already cancelled,
// so a repeated cancel cannot refund twice.
func (r *BookingRepo) CancelConfirmed(ctx context.Context, id string) (*domain.SessionBooking, error) {
	var b domain.SessionBooking
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&b, "id = ?", id).Error; err != nil {
			return err
		}
		if b.Status == domain.BookingCancelled {
			return gorm.ErrRecordNotFound
		}
		b.Status = domain.BookingCancelled
		return tx.Save(&b).Error
	})
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *BookingRepo) ListByOwner(ctx context.Context, ownerID string, from, to time.Time) ([]domain.SessionBooking, error) {
	qb := r.db.WithContext(ctx).Model(&domain.SessionBooking{}).Where("owner_id = ?", ownerID)
	if !from.IsZero() {
		qb = qb.Where("session_date >= ?", domain.DateOnly(from))
	}
	if !to.IsZero() {
		qb = qb.Where("session_date <= ?", domain.DateOnly(to))
	}
	var out []domain.SessionBooking
	err := qb.Order("session_date ASC").Find(&out).Error
	return out, err
}
