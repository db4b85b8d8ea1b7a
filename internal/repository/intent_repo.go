package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/you/hockey-training/internal/domain"
)

// IntentRepo records the saga's debit intent so a crash between debit and
// booking creation leaves a findable trace instead of a silently lost credit.
type IntentRepo struct {
	db *gorm.DB
}

func NewIntentRepo(db *gorm.DB) *IntentRepo {
	return &IntentRepo{db: db}
}

func (r *IntentRepo) Migrate() error {
	return r.db.AutoMigrate(&domain.BookingIntent{})
}

func (r *IntentRepo) Create(ctx context.Context, in *domain.BookingIntent) error {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	in.Status = domain.IntentPending
	in.SessionDate = domain.DateOnly(in.SessionDate)
	return r.db.WithContext(ctx).Create(in).Error
}

func (r *IntentRepo) AttachLot(ctx context.Context, intentID, lotID string) error {
	return r.db.WithContext(ctx).Model(&domain.BookingIntent{}).
		Where("id = ?", intentID).
		Update("credit_purchase_lot_id", lotID).Error
}

func (r *IntentRepo) MarkCompleted(ctx context.Context, intentID string) error {
	return r.setStatus(ctx, intentID, domain.IntentCompleted)
}

func (r *IntentRepo) MarkCompensated(ctx context.Context, intentID string) error {
	return r.setStatus(ctx, intentID, domain.IntentCompensated)
}

func (r *IntentRepo) setStatus(ctx context.Context, intentID string, st domain.IntentStatus) error {
	return r.db.WithContext(ctx).Model(&domain.BookingIntent{}).
		Where("id = ?", intentID).
		Update("status", st).Error
}

// ListStalePending returns pending intents older than the cutoff: debits
// whose booking never landed and whose compensation never ran.
func (r *IntentRepo) ListStalePending(ctx context.Context, olderThan time.Time) ([]domain.BookingIntent, error) {
	var out []domain.BookingIntent
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", domain.IntentPending, olderThan).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}
