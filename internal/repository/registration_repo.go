package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/you/hockey-training/internal/domain"
)

// RegistrationRepo reads subscription-path registrations and flips their
// payment status at verification time.
type RegistrationRepo struct {
	db *gorm.DB
}

func NewRegistrationRepo(db *gorm.DB) *RegistrationRepo {
	return &RegistrationRepo{db: db}
}

func (r *RegistrationRepo) Migrate() error {
	return r.db.AutoMigrate(&domain.RegistrationRecord{})
}

func (r *RegistrationRepo) Create(ctx context.Context, reg *domain.RegistrationRecord) error {
	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}
	if reg.PaymentStatus == "" {
		reg.PaymentStatus = domain.PaymentPending
	}
	return r.db.WithContext(ctx).Create(reg).Error
}

func (r *RegistrationRepo) ByID(ctx context.Context, id string) (*domain.RegistrationRecord, error) {
	var reg domain.RegistrationRecord
	if err := r.db.WithContext(ctx).First(&reg, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &reg, nil
}

// ListConfirmedExcept returns every registration in a confirmed payment
// state other than the one being verified. The validator never counts a
// registration against itself.
func (r *RegistrationRepo) ListConfirmedExcept(ctx context.Context, excludeID string) ([]domain.RegistrationRecord, error) {
	var out []domain.RegistrationRecord
	err := r.db.WithContext(ctx).
		Where("payment_status IN ? AND id <> ?",
			[]domain.PaymentStatus{domain.PaymentSucceeded, domain.PaymentVerified}, excludeID).
		Find(&out).Error
	return out, err
}

func (r *RegistrationRepo) SetPaymentStatus(ctx context.Context, id string, st domain.PaymentStatus) error {
	res := r.db.WithContext(ctx).Model(&domain.RegistrationRecord{}).
		Where("id = ?", id).
		Update("payment_status", st)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
