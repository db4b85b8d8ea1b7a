package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/you/hockey-training/internal/domain"
)

// ScheduleRepo owns recurring weekly commitments. The composite unique index
// on (registration_id, day_of_week, time_slot) rejects a second schedule for
// the same slot as gorm.ErrDuplicatedKey.
type ScheduleRepo struct {
	db *gorm.DB
}

func NewScheduleRepo(db *gorm.DB) *ScheduleRepo {
	return &ScheduleRepo{db: db}
}

func (r *ScheduleRepo) Migrate() error {
	return r.db.AutoMigrate(&domain.RecurringSchedule{})
}

func (r *ScheduleRepo) Create(ctx context.Context, s *domain.RecurringSchedule) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *ScheduleRepo) ByID(ctx context.Context, id string) (*domain.RecurringSchedule, error) {
	var s domain.RecurringSchedule
	if err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *ScheduleRepo) Save(ctx context.Context, s *domain.RecurringSchedule) error {
	return r.db.WithContext(ctx).Save(s).Error
}

func (r *ScheduleRepo) ListByOwner(ctx context.Context, ownerID string) ([]domain.RecurringSchedule, error) {
	var out []domain.RecurringSchedule
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}
