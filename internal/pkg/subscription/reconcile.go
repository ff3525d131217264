package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/vendhub/vendhub/internal/pkg/payment"
	"gorm.io/gorm"
)

// Outcome describes how a provider callback was resolved. Idempotency no-ops
// are outcomes, not errors: duplicate deliveries must look like success to
// the provider and the browser.
type Outcome string

const (
	// OutcomeActivated is the single winning transition of a paid checkout.
	OutcomeActivated Outcome = "activated"
	// OutcomeCancelled is the single winning transition of a cancelled checkout.
	OutcomeCancelled Outcome = "cancelled"
	// OutcomeAlreadyResolved covers stale references, replayed callbacks and
	// lost CAS races; the state was settled by someone else.
	OutcomeAlreadyResolved Outcome = "already_resolved"
	// OutcomeUnresolved means the provider does not (yet) confirm the payment;
	// the transaction stays initiated for a later retry or sweep.
	OutcomeUnresolved Outcome = "unresolved"
	// OutcomeDeferred means the payment is confirmed but activation must wait,
	// because the user still holds another active package. The transaction
	// stays initiated and the sweep retries until the slot frees.
	OutcomeDeferred Outcome = "deferred"
	// OutcomeMismatch means the verified amount or currency differed; the
	// attempt was terminally failed.
	OutcomeMismatch Outcome = "mismatch"
)

// HandleSuccessCallback drives the success path of the state machine for one
// provider reference. The provider-reported status is never trusted: the
// payment is verified server-side before any transition, and every transition
// is guarded by "status still initiated" so at-least-once callback delivery
// activates at most once.
func (s *Service) HandleSuccessCallback(ctx context.Context, provider, reference string) (Outcome, error) {
	txn, err := s.repo.GetTransactionByReference(provider, reference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Stale or replayed callback from an abandoned checkout.
			return OutcomeAlreadyResolved, nil
		}
		return "", err
	}
	if txn.IsTerminal() {
		return OutcomeAlreadyResolved, nil
	}

	verification, err := s.verify(ctx, provider, reference)
	if err != nil {
		if errors.Is(err, payment.ErrReferenceNotFound) {
			return OutcomeUnresolved, nil
		}
		// ErrProviderUnavailable propagates without mutating state; the
		// transaction stays initiated so a retry can still succeed.
		return "", err
	}

	if verification.Status != payment.StatusPaid {
		// UNPAID or UNKNOWN: leave the transaction initiated. A later
		// callback retry or the stale sweep resolves it.
		return OutcomeUnresolved, nil
	}

	if !verification.Amount.Equal(txn.Amount) || verification.Currency != txn.Currency {
		won, err := s.repo.FailTransaction(txn.ID, txn.SubscriptionID)
		if err != nil {
			return "", err
		}
		if !won {
			return OutcomeAlreadyResolved, nil
		}
		log.Errorf("[Reconcile] payment mismatch: txn=%d provider=%s ref=%s expected=%s %s got=%s %s",
			txn.ID, provider, reference, txn.Amount.StringFixed(2), txn.Currency,
			verification.Amount.StringFixed(2), verification.Currency)
		return OutcomeMismatch, ErrPaymentMismatch
	}

	sub, err := s.repo.GetSubscription(txn.SubscriptionID)
	if err != nil {
		return "", err
	}
	pkg, err := s.repo.GetPackage(sub.PackageID)
	if err != nil {
		return "", err
	}
	endDate := sub.StartDate.AddDate(0, 0, pkg.DurationDays)

	won, err := s.repo.ActivateSubscription(txn.ID, sub.ID, sub.UserID, pkg.ID, endDate, pkg.ProfileQuota)
	if err != nil {
		return "", err
	}
	if !won {
		// Two ways to lose: a concurrent callback already transitioned the
		// transaction (terminal now), or the activation guard held because the
		// user still has another active package (still initiated).
		current, cerr := s.repo.GetTransactionBySubscription(txn.SubscriptionID)
		if cerr != nil {
			return "", cerr
		}
		if current.IsTerminal() {
			return OutcomeAlreadyResolved, nil
		}
		log.Infof("[Reconcile] activation of subscription %d deferred, user %d still has an active package", sub.ID, sub.UserID)
		return OutcomeDeferred, nil
	}

	log.Infof("[Reconcile] subscription %d activated (txn=%d user=%d package=%d until=%s)",
		sub.ID, txn.ID, sub.UserID, pkg.ID, endDate.Format(time.RFC3339))
	return OutcomeActivated, nil
}

// HandleCancelCallback settles an initiated transaction as cancelled. It
// never downgrades a succeeded transaction or an active subscription; the
// conditional update guards both.
func (s *Service) HandleCancelCallback(ctx context.Context, provider, reference string) (Outcome, error) {
	_ = ctx
	txn, err := s.repo.GetTransactionByReference(provider, reference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return OutcomeAlreadyResolved, nil
		}
		return "", err
	}
	if txn.IsTerminal() {
		return OutcomeAlreadyResolved, nil
	}

	won, err := s.repo.CancelTransaction(txn.ID, txn.SubscriptionID)
	if err != nil {
		return "", err
	}
	if !won {
		return OutcomeAlreadyResolved, nil
	}

	log.Infof("[Reconcile] transaction %d cancelled (subscription=%d provider=%s)", txn.ID, txn.SubscriptionID, provider)
	return OutcomeCancelled, nil
}

func (s *Service) verify(ctx context.Context, provider, reference string) (*payment.Verification, error) {
	gw, err := s.gatewayFor(provider)
	if err != nil {
		return nil, err
	}

	var verification *payment.Verification
	err = payment.WithRetry(ctx, s.retry, func() error {
		var verr error
		verification, verr = gw.VerifyPayment(ctx, reference)
		return verr
	})
	if err != nil {
		return nil, err
	}
	return verification, nil
}
