package service

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/you/hockey-training/internal/domain"
	"github.com/you/hockey-training/internal/gateway"
	"github.com/you/hockey-training/internal/notify"
)

func paidSession(id, owner string) *gateway.CheckoutSession {
	return &gateway.CheckoutSession{
		ID:            id,
		Status:        gateway.StatusComplete,
		PaymentStatus: gateway.PaymentStatusPaid,
		AmountTotal:   40000,
		Currency:      "cad",
		CustomerRef:   "cus_123",
		Metadata: map[string]string{
			"purpose":      "credit_purchase",
			"owner_id":     owner,
			"package_type": "10-pack",
			"credits":      "10",
		},
	}
}

func TestFulfillCreatesLotAndBalance(t *testing.T) {
	s := newStack(t)
	gw := &fakeGateway{sessions: map[string]*gateway.CheckoutSession{
		"cs_1": paidSession("cs_1", "parent-1"),
	}}
	svc := NewFulfillmentSvc(gw, s.ledger, s.pub, zap.NewNop())

	res, err := svc.Fulfill(context.Background(), "cs_1")
	if err != nil {
		t.Fatalf("fulfill: %v", err)
	}
	if res.AlreadyProcessed {
		t.Fatal("first call must not report already_processed")
	}
	if res.CreditsAdded != 10 || res.NewBalance != 10 {
		t.Fatalf("got %+v", res)
	}
	if !s.pub.published(notify.RKCreditsPurchased) {
		t.Fatal("expected credits.purchased event")
	}
}

func TestFulfillIsIdempotent(t *testing.T) {
	s := newStack(t)
	gw := &fakeGateway{sessions: map[string]*gateway.CheckoutSession{
		"cs_2": paidSession("cs_2", "parent-2"),
	}}
	svc := NewFulfillmentSvc(gw, s.ledger, s.pub, zap.NewNop())
	ctx := context.Background()

	if _, err := svc.Fulfill(ctx, "cs_2"); err != nil {
		t.Fatal(err)
	}
	res, err := svc.Fulfill(ctx, "cs_2")
	if err != nil {
		t.Fatalf("repeat fulfill: %v", err)
	}
	if !res.AlreadyProcessed {
		t.Fatal("second call must report already_processed")
	}
	if res.NewBalance != 10 {
		t.Fatalf("balance must be unchanged by the repeat: got %d", res.NewBalance)
	}

	lots, err := s.ledger.LotsByOwner(ctx, "parent-2")
	if err != nil {
		t.Fatal(err)
	}
	if len(lots) != 1 {
		t.Fatalf("exactly one lot per session: got %d", len(lots))
	}
}

// raceLedger simulates the check-then-insert gap: the idempotency lookup
// misses even though a concurrent call already inserted the lot.
type raceLedger struct {
	LedgerStore
	missedOnce bool
}

func (r *raceLedger) LotBySessionID(ctx context.Context, id string) (*domain.CreditPurchaseLot, error) {
	if !r.missedOnce {
		r.missedOnce = true
		return nil, gorm.ErrRecordNotFound
	}
	return r.LedgerStore.LotBySessionID(ctx, id)
}

func TestFulfillInsertRaceFallsBackToCacheHit(t *testing.T) {
	s := newStack(t)
	gw := &fakeGateway{sessions: map[string]*gateway.CheckoutSession{
		"cs_3": paidSession("cs_3", "parent-3"),
	}}
	ctx := context.Background()

	// The "other" request fulfilled first.
	first := NewFulfillmentSvc(gw, s.ledger, s.pub, zap.NewNop())
	if _, err := first.Fulfill(ctx, "cs_3"); err != nil {
		t.Fatal(err)
	}

	racing := NewFulfillmentSvc(gw, &raceLedger{LedgerStore: s.ledger}, s.pub, zap.NewNop())
	res, err := racing.Fulfill(ctx, "cs_3")
	if err != nil {
		t.Fatalf("uniqueness violation must resolve as a cache hit, got %v", err)
	}
	if !res.AlreadyProcessed {
		t.Fatal("racing call must report already_processed")
	}
	if b := balance(t, s, "parent-3"); b != 10 {
		t.Fatalf("balance after race: got %d want 10", b)
	}
}

func TestFulfillRejectsUnpaidAndWrongType(t *testing.T) {
	s := newStack(t)
	unpaid := paidSession("cs_4", "parent-4")
	unpaid.PaymentStatus = "unpaid"
	subscription := paidSession("cs_5", "parent-4")
	subscription.Metadata["purpose"] = "subscription"
	gw := &fakeGateway{sessions: map[string]*gateway.CheckoutSession{
		"cs_4": unpaid,
		"cs_5": subscription,
	}}
	svc := NewFulfillmentSvc(gw, s.ledger, s.pub, zap.NewNop())
	ctx := context.Background()

	if _, err := svc.Fulfill(ctx, "cs_4"); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("unpaid: got %v", err)
	}
	if _, err := svc.Fulfill(ctx, "cs_5"); !errors.Is(err, ErrWrongSessionType) {
		t.Fatalf("wrong purpose: got %v", err)
	}
	if _, err := svc.Fulfill(ctx, "cs_missing"); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("missing session: got %v", err)
	}
}

func TestFulfillRejectsMalformedMetadata(t *testing.T) {
	s := newStack(t)
	cases := map[string]func(*gateway.CheckoutSession){
		"no owner":        func(cs *gateway.CheckoutSession) { delete(cs.Metadata, "owner_id") },
		"bad package":     func(cs *gateway.CheckoutSession) { cs.Metadata["package_type"] = "99-pack" },
		"bad credits":     func(cs *gateway.CheckoutSession) { cs.Metadata["credits"] = "ten" },
		"credit mismatch": func(cs *gateway.CheckoutSession) { cs.Metadata["credits"] = "11" },
	}
	for name, mutate := range cases {
		cs := paidSession("cs_m", "parent-5")
		mutate(cs)
		gw := &fakeGateway{sessions: map[string]*gateway.CheckoutSession{"cs_m": cs}}
		svc := NewFulfillmentSvc(gw, s.ledger, s.pub, zap.NewNop())
		if _, err := svc.Fulfill(context.Background(), "cs_m"); !errors.Is(err, ErrMalformedMetadata) {
			t.Fatalf("%s: got %v", name, err)
		}
	}
	// No mutation happened for any of them.
	lots, err := s.ledger.LotsByOwner(context.Background(), "parent-5")
	if err != nil {
		t.Fatal(err)
	}
	if len(lots) != 0 {
		t.Fatalf("malformed metadata must not create lots, got %d", len(lots))
	}
}

func TestBalanceReconcilesDrift(t *testing.T) {
	s := newStack(t)
	grantCredits(t, s, "parent-6", 10)
	svc := NewFulfillmentSvc(&fakeGateway{}, s.ledger, s.pub, zap.NewNop())
	ctx := context.Background()

	// Knock the aggregate out of agreement.
	if err := s.db.Exec("UPDATE credit_accounts SET total_credits = 2 WHERE owner_id = ?", "parent-6").Error; err != nil {
		t.Fatal(err)
	}

	res, err := svc.Balance(ctx, "parent-6")
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalCredits != 10 || res.DerivedTotal != 10 {
		t.Fatalf("derived sum must win on drift: %+v", res)
	}
	acc, err := s.ledger.AccountByOwner(ctx, "parent-6")
	if err != nil {
		t.Fatal(err)
	}
	if acc.TotalCredits != 10 {
		t.Fatalf("aggregate should have been rewritten, got %d", acc.TotalCredits)
	}
}
