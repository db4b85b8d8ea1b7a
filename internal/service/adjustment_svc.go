package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/you/hockey-training/internal/domain"
	"github.com/you/hockey-training/internal/repository"
)

// AdjustmentSvc is the staff-only path for granting or revoking credits.
// Grants create zero-price adjustment lots and revokes go through the debit
// primitive, so every balance movement stays backed by lots.
type AdjustmentSvc struct {
	ledger LedgerStore
	log    *zap.Logger
}

func NewAdjustmentSvc(ledger LedgerStore, log *zap.Logger) *AdjustmentSvc {
	return &AdjustmentSvc{ledger: ledger, log: log}
}

type AdjustResult struct {
	OwnerID    string `json:"owner_id"`
	Credits    int    `json:"credits"`
	NewBalance int    `json:"new_balance"`
}

func (s *AdjustmentSvc) Grant(ctx context.Context, ownerID string, credits int, reason string) (*AdjustResult, error) {
	if credits <= 0 {
		return nil, fmt.Errorf("grant amount must be positive, got %d", credits)
	}
	if _, err := s.ledger.EnsureAccount(ctx, ownerID); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	lot := &domain.CreditPurchaseLot{
		OwnerID:           ownerID,
		PackageType:       domain.PackageAdjustment,
		CreditsPurchased:  credits,
		CreditsRemaining:  credits,
		PricePaid:         0,
		Currency:          "cad",
		CheckoutSessionID: "adjustment_" + uuid.NewString(),
		ExpiresAt:         domain.LotExpiry(now),
		Status:            domain.LotActive,
	}
	if err := s.ledger.InsertLot(ctx, lot); err != nil {
		return nil, err
	}
	if err := s.ledger.AddCredits(ctx, ownerID, credits); err != nil {
		s.log.Error("balance increment failed after adjustment lot, needs reconcile",
			zap.String("owner_id", ownerID), zap.Error(err))
	}
	balance, err := s.ledger.DerivedBalance(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	s.log.Info("credits granted",
		zap.String("owner_id", ownerID),
		zap.Int("credits", credits),
		zap.String("reason", reason))
	return &AdjustResult{OwnerID: ownerID, Credits: credits, NewBalance: balance}, nil
}

func (s *AdjustmentSvc) Revoke(ctx context.Context, ownerID string, credits int, reason string) (*AdjustResult, error) {
	if credits <= 0 {
		return nil, fmt.Errorf("revoke amount must be positive, got %d", credits)
	}
	revoked := 0
	// The debit primitive consumes from a single lot per call; revoking more
	// than one lot holds takes repeated single debits.
	for revoked < credits {
		if _, err := s.ledger.Debit(ctx, ownerID, 1); err != nil {
			if errors.Is(err, repository.ErrInsufficientLotCredit) {
				if revoked == 0 {
					return nil, ErrInsufficientCredit
				}
				break
			}
			return nil, err
		}
		revoked++
	}
	balance, err := s.ledger.DerivedBalance(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	s.log.Info("credits revoked",
		zap.String("owner_id", ownerID),
		zap.Int("credits", revoked),
		zap.String("reason", reason))
	return &AdjustResult{OwnerID: ownerID, Credits: revoked, NewBalance: balance}, nil
}
