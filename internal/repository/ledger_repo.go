package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/you/hockey-training/internal/domain"
)

// ErrInsufficientLotCredit is the debit primitive's balance failure. Callers
// map it to their own conflict error; nothing is mutated when it fires.
var ErrInsufficientLotCredit = errors.New("insufficient_credit")

// lockForUpdate applies SELECT ... FOR UPDATE on engines that support it.
// sqlite (tests) has no row locks; its single writer serializes anyway.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// LedgerRepo owns credit accounts and purchase lots. Debit and Refund are
// the only two mutations of spendable credit and each runs as a single
// row-locked transaction — they are the engine's atomic primitives.
type LedgerRepo struct {
	db *gorm.DB
}

func NewLedgerRepo(db *gorm.DB) *LedgerRepo {
	return &LedgerRepo{db: db}
}

func (r *LedgerRepo) Migrate() error {
	return r.db.AutoMigrate(&domain.CreditAccount{}, &domain.CreditPurchaseLot{})
}

// EnsureAccount returns the owner's account, creating an empty one when the
// owner has never purchased before.
func (r *LedgerRepo) EnsureAccount(ctx context.Context, ownerID string) (*domain.CreditAccount, error) {
	var acc domain.CreditAccount
	err := r.db.WithContext(ctx).
		Where(domain.CreditAccount{OwnerID: ownerID}).
		Attrs(domain.CreditAccount{ID: uuid.NewString(), TotalCredits: 0}).
		FirstOrCreate(&acc).Error
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func (r *LedgerRepo) AccountByOwner(ctx context.Context, ownerID string) (*domain.CreditAccount, error) {
	var acc domain.CreditAccount
	if err := r.db.WithContext(ctx).First(&acc, "owner_id = ?", ownerID).Error; err != nil {
		return nil, err
	}
	return &acc, nil
}

// LotBySessionID is the fulfillment idempotency lookup.
func (r *LedgerRepo) LotBySessionID(ctx context.Context, checkoutSessionID string) (*domain.CreditPurchaseLot, error) {
	var lot domain.CreditPurchaseLot
	if err := r.db.WithContext(ctx).First(&lot, "checkout_session_id = ?", checkoutSessionID).Error; err != nil {
		return nil, err
	}
	return &lot, nil
}

// InsertLot creates the purchase lot. A uniqueness violation on
// checkout_session_id surfaces as gorm.ErrDuplicatedKey so the caller can
// treat a concurrent duplicate as a cache hit instead of an error.
func (r *LedgerRepo) InsertLot(ctx context.Context, lot *domain.CreditPurchaseLot) error {
	if lot.ID == "" {
		lot.ID = uuid.NewString()
	}
	return r.db.WithContext(ctx).Create(lot).Error
}

// AddCredits bumps the aggregate balance cache. The lot insert is the ground
// truth; a failure here is the caller's to log, not to roll back.
func (r *LedgerRepo) AddCredits(ctx context.Context, ownerID string, amount int) error {
	res := r.db.WithContext(ctx).Model(&domain.CreditAccount{}).
		Where("owner_id = ?", ownerID).
		UpdateColumn("total_credits", gorm.Expr("total_credits + ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Debit atomically consumes `amount` credits from the oldest-expiring live
// lot that can cover it and returns that lot's id. Locks the account row
// first so concurrent debits against one owner serialize; two debits can
// never both spend the same remaining credit.
func (r *LedgerRepo) Debit(ctx context.Context, ownerID string, amount int) (string, error) {
	var lotID string
	now := time.Now().UTC()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var acc domain.CreditAccount
		if err := lockForUpdate(tx).
			First(&acc, "owner_id = ?", ownerID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInsufficientLotCredit
			}
			return err
		}

		var lot domain.CreditPurchaseLot
		err := lockForUpdate(tx).
			Where("owner_id = ? AND status = ? AND credits_remaining >= ? AND expires_at > ?",
				ownerID, domain.LotActive, amount, now).
			Order("expires_at ASC").
			Take(&lot).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInsufficientLotCredit
		}
		if err != nil {
			return err
		}

		lot.CreditsRemaining -= amount
		if lot.CreditsRemaining == 0 {
			lot.Status = domain.LotExhausted
		}
		if err := tx.Save(&lot).Error; err != nil {
			return err
		}
		if err := tx.Model(&domain.CreditAccount{}).Where("id = ?", acc.ID).
			UpdateColumn("total_credits", gorm.Expr("total_credits - ?", amount)).Error; err != nil {
			return err
		}
		lotID = lot.ID
		return nil
	})
	if err != nil {
		return "", err
	}
	return lotID, nil
}

// Refund atomically returns `amount` credits to the given lot. It is the
// compensating half of Debit and also serves booking cancellations.
func (r *LedgerRepo) Refund(ctx context.Context, ownerID, lotID string, amount int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var lot domain.CreditPurchaseLot
		if err := lockForUpdate(tx).
			First(&lot, "id = ? AND owner_id = ?", lotID, ownerID).Error; err != nil {
			return err
		}
		lot.CreditsRemaining += amount
		if lot.Status == domain.LotExhausted {
			lot.Status = domain.LotActive
		}
		if err := tx.Save(&lot).Error; err != nil {
			return err
		}
		return tx.Model(&domain.CreditAccount{}).Where("owner_id = ?", ownerID).
			UpdateColumn("total_credits", gorm.Expr("total_credits + ?", amount)).Error
	})
}

// DerivedBalance sums credits_remaining over live lots — the source of
// truth the aggregate cache is reconciled against.
func (r *LedgerRepo) DerivedBalance(ctx context.Context, ownerID string) (int, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&domain.CreditPurchaseLot{}).
		Where("owner_id = ? AND status = ? AND expires_at > ?", ownerID, domain.LotActive, time.Now().UTC()).
		Select("COALESCE(SUM(credits_remaining), 0)").
		Scan(&total).Error
	return int(total), err
}

// Reconcile rewrites the aggregate from the lot sum and returns the
// corrected balance.
func (r *LedgerRepo) Reconcile(ctx context.Context, ownerID string) (int, error) {
	var balance int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var acc domain.CreditAccount
		if err := lockForUpdate(tx).
			First(&acc, "owner_id = ?", ownerID).Error; err != nil {
			return err
		}
		var total int64
		if err := tx.Model(&domain.CreditPurchaseLot{}).
			Where("owner_id = ? AND status = ? AND expires_at > ?", ownerID, domain.LotActive, time.Now().UTC()).
			Select("COALESCE(SUM(credits_remaining), 0)").
			Scan(&total).Error; err != nil {
			return err
		}
		balance = int(total)
		return tx.Model(&domain.CreditAccount{}).Where("id = ?", acc.ID).
			UpdateColumn("total_credits", balance).Error
	})
	return balance, err
}

// LotsByOwner lists the owner's lots, newest purchase first.
func (r *LedgerRepo) LotsByOwner(ctx context.Context, ownerID string) ([]domain.CreditPurchaseLot, error) {
	var lots []domain.CreditPurchaseLot
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&lots).Error
	return lots, err
}

// ExpireLots flips lots past their expiry to expired and re-derives the
// aggregate for every touched owner. Returns how many lots expired.
func (r *LedgerRepo) ExpireLots(ctx context.Context, now time.Time) (int, error) {
	var expired int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var lots []domain.CreditPurchaseLot
		if err := lockForUpdate(tx).
			Where("status = ? AND expires_at <= ?", domain.LotActive, now).
			Find(&lots).Error; err != nil {
			return err
		}
		owners := map[string]struct{}{}
		for i := range lots {
			lots[i].Status = domain.LotExpired
			if err := tx.Save(&lots[i]).Error; err != nil {
				return err
			}
			owners[lots[i].OwnerID] = struct{}{}
		}
		for owner := range owners {
			var total int64
			if err := tx.Model(&domain.CreditPurchaseLot{}).
				Where("owner_id = ? AND status = ? AND expires_at > ?", owner, domain.LotActive, now).
				Select("COALESCE(SUM(credits_remaining), 0)").
				Scan(&total).Error; err != nil {
				return err
			}
			if err := tx.Model(&domain.CreditAccount{}).Where("owner_id = ?", owner).
				UpdateColumn("total_credits", int(total)).Error; err != nil {
				return err
			}
		}
		expired = len(lots)
		return nil
	})
	return expired, err
}
