package subscription

import "errors"

// Validation errors reject the request up front without touching any state;
// the HTTP layer maps them to 4xx responses.
var (
	ErrPackageNotFound        = errors.New("package not found")
	ErrPackageInactive        = errors.New("package is not active")
	ErrSubscriptionNotFound   = errors.New("subscription not found")
	ErrSubscriptionNotPending = errors.New("subscription is not pending")
	ErrDuplicateSubscription  = errors.New("user already has an open subscription for this package")
	ErrDuplicateTransaction   = errors.New("subscription already has a payment transaction")
)

// ErrPaymentMismatch is terminal: the verified amount or currency differs
// from what the transaction was initiated with. The transaction is failed,
// the subscription cancelled, and the case logged for manual review.
var ErrPaymentMismatch = errors.New("verified payment does not match transaction amount")
