package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/you/hockey-training/internal/domain"
	"github.com/you/hockey-training/internal/gateway"
	"github.com/you/hockey-training/internal/repository"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
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

// fakeGateway serves canned checkout sessions.
type fakeGateway struct {
	sessions map[string]*gateway.CheckoutSession
}

func (g *fakeGateway) RetrieveCheckoutSession(_ context.Context, id string) (*gateway.CheckoutSession, error) {
	s, ok := g.sessions[id]
	if !ok {
		return nil, fmt.Errorf("no such session %s", id)
	}
	return s, nil
}

// fakePublisher records published events.
type fakePublisher struct {
	keys []string
}

func (p *fakePublisher) PublishJSON(_ context.Context, key string, _ any) error {
	p.keys = append(p.keys, key)
	return nil
}

func (p *fakePublisher) published(key string) bool {
	for _, k := range p.keys {
		if k == key {
			return true
		}
	}
	return false
}

type stack struct {
	db     *gorm.DB
	ledger *repository.LedgerRepo
	books  *repository.BookingRepo
	intent *repository.IntentRepo
	scheds *repository.ScheduleRepo
	regs   *repository.RegistrationRepo
	pub    *fakePublisher
}

func newStack(t *testing.T) *stack {
	db := setupTestDB(t)
	return &stack{
		db:     db,
		ledger: repository.NewLedgerRepo(db),
		books:  repository.NewBookingRepo(db),
		intent: repository.NewIntentRepo(db),
		scheds: repository.NewScheduleRepo(db),
		regs:   repository.NewRegistrationRepo(db),
		pub:    &fakePublisher{},
	}
}

func (s *stack) bookingSvc() *BookingSvc {
	return NewBookingSvc(s.books, s.ledger, s.intent, s.pub, zap.NewNop())
}

// grantCredits seeds an owner with n spendable credits.
func grantCredits(t *testing.T, s *stack, owner string, n int) {
	t.Helper()
	ctx := context.Background()
	if _, err := s.ledger.EnsureAccount(ctx, owner); err != nil {
		t.Fatal(err)
	}
	lot := &domain.CreditPurchaseLot{
		OwnerID:           owner,
		PackageType:       domain.PackageTenPack,
		CreditsPurchased:  n,
		CreditsRemaining:  n,
		Currency:          "cad",
		CheckoutSessionID: fmt.Sprintf("cs_seed_%s_%d", owner, time.Now().UnixNano()),
		ExpiresAt:         time.Now().UTC().AddDate(1, 0, 0),
		Status:            domain.LotActive,
	}
	if err := s.ledger.InsertLot(ctx, lot); err != nil {
		t.Fatal(err)
	}
	if err := s.ledger.AddCredits(ctx, owner, n); err != nil {
		t.Fatal(err)
	}
}

func balance(t *testing.T, s *stack, owner string) int {
	t.Helper()
	b, err := s.ledger.DerivedBalance(context.Background(), owner)
	if err != nil {
		t.Fatal(err)
	}
	return b
}
