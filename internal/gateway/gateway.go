// Package gateway wraps the payment provider's checkout-session API behind
// a small interface so services (and tests) never touch the SDK directly.
package gateway

import "context"

const (
	StatusComplete    = "complete"
	PaymentStatusPaid = "paid"
)

// CheckoutSession is the slice of a provider checkout session this engine
// needs: completion state, payment state, and the metadata attached at
// checkout creation time.
type CheckoutSession struct {
	ID              string
	Status          string
	PaymentStatus   string
	Metadata        map[string]string
	AmountTotal     int64
	Currency        string
	CustomerRef     string
	SubscriptionRef string
}

// Paid reports whether the session completed with a captured payment.
func (s *CheckoutSession) Paid() bool {
	return s.Status == StatusComplete && s.PaymentStatus == PaymentStatusPaid
}

type Gateway interface {
	RetrieveCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error)
}
