package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/you/hockey-training/internal/domain"
	"github.com/you/hockey-training/internal/gateway"
	"github.com/you/hockey-training/internal/notify"
)

// Metadata keys the checkout flow attaches to credit-purchase sessions.
const (
	metaPurpose     = "purpose"
	metaOwnerID     = "owner_id"
	metaPackageType = "package_type"
	metaCredits     = "credits"

	purposeCreditPurchase = "credit_purchase"
)

// FulfillmentSvc turns a paid checkout session into a purchase lot and an
// updated balance, exactly once per session id no matter how often the
// gateway redirect retries.
type FulfillmentSvc struct {
	gw     gateway.Gateway
	ledger LedgerStore
	pub    EventPublisher
	log    *zap.Logger
}

func NewFulfillmentSvc(gw gateway.Gateway, ledger LedgerStore, pub EventPublisher, log *zap.Logger) *FulfillmentSvc {
	return &FulfillmentSvc{gw: gw, ledger: ledger, pub: pub, log: log}
}

type FulfillResult struct {
	AlreadyProcessed bool `json:"already_processed,omitempty"`
	CreditsAdded     int  `json:"credits_added"`
	NewBalance       int  `json:"new_balance"`
}

func (s *FulfillmentSvc) Fulfill(ctx context.Context, checkoutSessionID string) (*FulfillResult, error) {
	sess, err := s.gw.RetrieveCheckoutSession(ctx, checkoutSessionID)
	if err != nil {
		s.log.Warn("checkout session retrieval failed",
			zap.String("session_id", checkoutSessionID), zap.Error(err))
		return nil, ErrInvalidSession
	}
	if !sess.Paid() {
		return nil, ErrInvalidSession
	}
	if sess.Metadata[metaPurpose] != purposeCreditPurchase {
		return nil, ErrWrongSessionType
	}

	// Idempotency: a lot for this session means a previous call already won.
	if lot, err := s.ledger.LotBySessionID(ctx, sess.ID); err == nil {
		return s.alreadyProcessed(ctx, lot)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	ownerID := sess.Metadata[metaOwnerID]
	pkgType := domain.PackageType(sess.Metadata[metaPackageType])
	credits, convErr := strconv.Atoi(sess.Metadata[metaCredits])
	pkg, known := domain.PackageByType(pkgType)
	if ownerID == "" || !known || convErr != nil || credits <= 0 || credits != pkg.Credits {
		return nil, ErrMalformedMetadata
	}

	if _, err := s.ledger.EnsureAccount(ctx, ownerID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	lot := &domain.CreditPurchaseLot{
		OwnerID:            ownerID,
		PackageType:        pkgType,
		CreditsPurchased:   credits,
		CreditsRemaining:   credits,
		PricePaid:          sess.AmountTotal,
		Currency:           sess.Currency,
		CheckoutSessionID:  sess.ID,
		PaymentReferenceID: sess.CustomerRef,
		ExpiresAt:          domain.LotExpiry(now),
		Status:             domain.LotActive,
	}
	if err := s.ledger.InsertLot(ctx, lot); err != nil {
		// A concurrent duplicate call won the insert race. Mandatory
		// fallback: treat it exactly like the lookup hit above.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			existing, lerr := s.ledger.LotBySessionID(ctx, sess.ID)
			if lerr != nil {
				return nil, lerr
			}
			return s.alreadyProcessed(ctx, existing)
		}
		return nil, err
	}

	// The lot is the ground truth; a failed balance bump is logged and left
	// for reconciliation, never rolled back.
	if err := s.ledger.AddCredits(ctx, ownerID, credits); err != nil {
		s.log.Error("balance increment failed after lot insert, needs reconcile",
			zap.String("owner_id", ownerID),
			zap.String("lot_id", lot.ID),
			zap.Error(err))
	}

	balance, err := s.ledger.DerivedBalance(ctx, ownerID)
	if err != nil {
		s.log.Warn("derived balance read failed", zap.String("owner_id", ownerID), zap.Error(err))
	}

	if perr := s.pub.PublishJSON(ctx, notify.RKCreditsPurchased, notify.CreditsPurchased{
		OwnerID:     ownerID,
		PackageType: string(pkgType),
		Credits:     credits,
		NewBalance:  balance,
	}); perr != nil {
		s.log.Warn("publish credits.purchased failed", zap.Error(perr))
	}

	return &FulfillResult{CreditsAdded: credits, NewBalance: balance}, nil
}

func (s *FulfillmentSvc) alreadyProcessed(ctx context.Context, lot *domain.CreditPurchaseLot) (*FulfillResult, error) {
	balance, err := s.ledger.DerivedBalance(ctx, lot.OwnerID)
	if err != nil {
		return nil, err
	}
	return &FulfillResult{
		AlreadyProcessed: true,
		CreditsAdded:     lot.CreditsPurchased,
		NewBalance:       balance,
	}, nil
}

type BalanceResult struct {
	OwnerID      string                     `json:"owner_id"`
	TotalCredits int                        `json:"total_credits"`
	DerivedTotal int                        `json:"derived_total"`
	Lots         []domain.CreditPurchaseLot `json:"lots"`
}

// Balance reports both the aggregate cache and the lot-derived sum. On
// drift the aggregate is rewritten from the lots and the derived value wins.
func (s *FulfillmentSvc) Balance(ctx context.Context, ownerID string) (*BalanceResult, error) {
	acc, err := s.ledger.AccountByOwner(ctx, ownerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	derived, err := s.ledger.DerivedBalance(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	total := acc.TotalCredits
	if total != derived {
		s.log.Warn("aggregate balance drift, reconciling from lots",
			zap.String("owner_id", ownerID),
			zap.Int("aggregate", total),
			zap.Int("derived", derived))
		if _, rerr := s.ledger.Reconcile(ctx, ownerID); rerr != nil {
			s.log.Error("balance reconcile failed", zap.String("owner_id", ownerID), zap.Error(rerr))
		}
		total = derived
	}
	lots, err := s.ledger.LotsByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return &BalanceResult{
		OwnerID:      ownerID,
		TotalCredits: total,
		DerivedTotal: derived,
		Lots:         lots,
	}, nil
}

// ExpireSweep flips past-expiry lots and repairs the touched aggregates.
func (s *FulfillmentSvc) ExpireSweep(ctx context.Context) (int, error) {
	n, err := s.ledger.ExpireLots(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("expired credit lots", zap.Int("count", n))
	}
	return n, nil
}
