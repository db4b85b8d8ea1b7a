package repository

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/you/hockey-training/internal/domain"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&domain.CreditAccount{},
		&domain.CreditPurchaseLot{},
		&domain.SessionBooking{},
		&domain.BookingIntent{},
		&domain.RecurringSchedule{},
		&domain.RegistrationRecord{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedLot(t *testing.T, r *LedgerRepo, owner string, credits int, expiresAt time.Time) *domain.CreditPurchaseLot {
	t.Helper()
	ctx := context.Background()
	if _, err := r.EnsureAccount(ctx, owner); err != nil {
		t.Fatalf("ensure account: %v", err)
	}
	lot := &domain.CreditPurchaseLot{
		OwnerID:           owner,
		PackageType:       domain.PackageTenPack,
		CreditsPurchased:  credits,
		CreditsRemaining:  credits,
		Currency:          "cad",
		CheckoutSessionID: fmt.Sprintf("cs_%s_%d", owner, time.Now().UnixNano()),
		ExpiresAt:         expiresAt,
		Status:            domain.LotActive,
	}
	if err := r.InsertLot(ctx, lot); err != nil {
		t.Fatalf("insert lot: %v", err)
	}
	if err := r.AddCredits(ctx, owner, credits); err != nil {
		t.Fatalf("add credits: %v", err)
	}
	return lot
}
