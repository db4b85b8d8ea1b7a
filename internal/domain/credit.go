package domain

import "time"

// LotExpiry returns the expiry timestamp for a lot purchased at t. Credits
// stay spendable for 12 months.
func LotExpiry(t time.Time) time.Time {
	return t.AddDate(1, 0, 0)
}

type PackageType string

const (
	PackageSingle     PackageType = "single"
	PackageTenPack    PackageType = "10-pack"
	PackageTwentyPack PackageType = "20-pack"
	PackageFiftyPack  PackageType = "50-pack"

	// PackageAdjustment is a zero-price lot created by staff grants. It is
	// not purchasable through the gateway.
	PackageAdjustment PackageType = "adjustment"
)

type PackageInfo struct {
	Credits    int
	PriceCents int64
}

var packages = map[PackageType]PackageInfo{
	PackageSingle:     {Credits: 1, PriceCents: 4500},
	PackageTenPack:    {Credits: 10, PriceCents: 40000},
	PackageTwentyPack: {Credits: 20, PriceCents: 76000},
	PackageFiftyPack:  {Credits: 50, PriceCents: 175000},
}

// PackageByType reports the fixed credit count and price for a purchasable
// package. Adjustment lots are excluded on purpose.
func PackageByType(t PackageType) (PackageInfo, bool) {
	p, ok := packages[t]
	return p, ok
}

type LotStatus string

const (
	LotActive    LotStatus = "active"
	LotExhausted LotStatus = "exhausted"
	LotExpired   LotStatus = "expired"
)

// CreditAccount holds the aggregate balance for one parent. The aggregate is
// a cache of the sum of live lot remainders; the lots are the source of
// truth when the two disagree.
type CreditAccount struct {
	ID           string `gorm:"primaryKey"`
	OwnerID      string `gorm:"uniqueIndex"`
	TotalCredits int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CreditPurchaseLot is one fulfilled checkout. CheckoutSessionID is the
// idempotency key: at most one lot per session, enforced by the unique index.
type CreditPurchaseLot struct {
	ID                 string `gorm:"primaryKey"`
	OwnerID            string `gorm:"index"`
	PackageType        PackageType
	CreditsPurchased   int
	CreditsRemaining   int
	PricePaid          int64
	Currency           string
	CheckoutSessionID  string `gorm:"uniqueIndex"`
	PaymentReferenceID string
	ExpiresAt          time.Time `gorm:"index"`
	Status             LotStatus `gorm:"index"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Live reports whether the lot can still fund a debit at time now.
func (l *CreditPurchaseLot) Live(now time.Time) bool {
	return l.Status == LotActive && l.CreditsRemaining > 0 && l.ExpiresAt.After(now)
}
