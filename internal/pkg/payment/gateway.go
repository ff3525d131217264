package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Provider names, matching the constants on models.PaymentTransaction.
const (
	ProviderStripe = "stripe"
	ProviderPayPal = "paypal"
)

// Status is the provider-neutral verification outcome.
type Status string

const (
	StatusPaid    Status = "PAID"
	StatusUnpaid  Status = "UNPAID"
	StatusUnknown Status = "UNKNOWN"
)

var (
	// ErrProviderUnavailable marks transient network/provider failures. Callers
	// must retry and must not fail the transaction.
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	// ErrReferenceNotFound means the provider has no record of the reference.
	// Callers treat the payment as unresolved, not as failed.
	ErrReferenceNotFound = errors.New("payment reference not found")
)

// CheckoutRequest carries everything a provider needs to create a redirect
// checkout for one subscription.
type CheckoutRequest struct {
	SubscriptionID uint
	Amount         decimal.Decimal
	Currency       string
	Description    string
}

// CheckoutSession is the provider-side checkout created for a request.
type CheckoutSession struct {
	ProviderReference string
	RedirectURL       string
}

// Verification is the authoritative server-to-server payment state. Callback
// payloads are never trusted to carry the true status; the reconciler always
// verifies through the gateway before any state transition.
type Verification struct {
	Status   Status
	Amount   decimal.Decimal
	Currency string
}

// Gateway wraps provider-specific checkout creation and server-side payment
// verification. Both implementations expose the same interface so the
// reconciler stays provider-agnostic; the variant is selected by route.
type Gateway interface {
	Provider() string
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	VerifyPayment(ctx context.Context, reference string) (*Verification, error)
}

// ForProvider returns the gateway client for a provider name, configured from
// the environment.
func ForProvider(name string) (Gateway, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case ProviderStripe:
		return NewStripeClientFromEnv(), nil
	case ProviderPayPal:
		return NewPayPalClientFromEnv(), nil
	default:
		return nil, fmt.Errorf("unknown payment provider %q", name)
	}
}
