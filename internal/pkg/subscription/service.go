package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/vendhub/vendhub/app/models"
	"github.com/vendhub/vendhub/internal/pkg/payment"
	"gorm.io/gorm"
)

// Service orchestrates the subscription purchase flow: it creates pending
// subscriptions, initiates provider checkouts, and reconciles provider
// callbacks against the local state machine.
type Service struct {
	repo       Repository
	gatewayFor func(provider string) (payment.Gateway, error)
	retry      payment.RetryConfig
	now        func() time.Time
}

// NewService creates a subscription service from an injected repository.
func NewService(repo Repository) *Service {
	return &Service{
		repo:       repo,
		gatewayFor: payment.ForProvider,
		retry:      payment.DefaultRetryConfig(),
		now:        time.Now,
	}
}

// NewServiceFromDB creates a subscription service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db))
}

// NewServiceWithGateway creates a subscription service with a custom gateway
// resolver, used where the provider clients are stubbed out.
func NewServiceWithGateway(repo Repository, gatewayFor func(provider string) (payment.Gateway, error)) *Service {
	s := NewService(repo)
	s.gatewayFor = gatewayFor
	return s
}

// CreatePendingSubscription creates a pending subscription for a vendor on an
// active package. Each user may have at most one open (pending or active)
// subscription per package.
func (s *Service) CreatePendingSubscription(ctx context.Context, userID, packageID uint) (*models.Subscription, error) {
	_ = ctx
	pkg, err := s.repo.GetPackage(packageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPackageNotFound
		}
		return nil, err
	}
	if !pkg.IsActive() {
		return nil, ErrPackageInactive
	}

	if _, err := s.repo.FindOpenSubscription(userID, packageID); err == nil {
		return nil, ErrDuplicateSubscription
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	sub := &models.Subscription{
		PublicID:  uuid.NewString(),
		UserID:    userID,
		PackageID: packageID,
		Status:    models.SubscriptionStatusPending,
		StartDate: s.now(),
	}
	if err := s.repo.CreateSubscription(sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// InitiateCheckout creates the provider-side checkout for a pending
// subscription and records the initiated payment transaction. A subscription
// carries at most one transaction; repeated initiation is rejected.
func (s *Service) InitiateCheckout(ctx context.Context, subscriptionID uint, provider string) (string, error) {
	sub, err := s.repo.GetSubscription(subscriptionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrSubscriptionNotFound
		}
		return "", err
	}
	if sub.Status != models.SubscriptionStatusPending {
		return "", ErrSubscriptionNotPending
	}

	if _, err := s.repo.GetTransactionBySubscription(sub.ID); err == nil {
		return "", ErrDuplicateTransaction
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}

	pkg, err := s.repo.GetPackage(sub.PackageID)
	if err != nil {
		return "", err
	}

	gw, err := s.gatewayFor(provider)
	if err != nil {
		return "", err
	}

	var session *payment.CheckoutSession
	err = payment.WithRetry(ctx, s.retry, func() error {
		var cerr error
		session, cerr = gw.CreateCheckout(ctx, payment.CheckoutRequest{
			SubscriptionID: sub.ID,
			Amount:         pkg.Price,
			Currency:       pkg.Currency,
			Description:    pkg.Name,
		})
		return cerr
	})
	if err != nil {
		return "", err
	}

	txn := &models.PaymentTransaction{
		SubscriptionID:    sub.ID,
		Provider:          gw.Provider(),
		ProviderReference: session.ProviderReference,
		Amount:            pkg.Price,
		Currency:          pkg.Currency,
		Status:            models.PaymentStatusInitiated,
	}
	if err := s.repo.CreateTransaction(txn); err != nil {
		// Two concurrent initiations can both pass the read check above; the
		// loser trips the unique key on subscription_id.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return "", ErrDuplicateTransaction
		}
		return "", err
	}

	return session.RedirectURL, nil
}

// ListUserSubscriptions is a thin read used by the panel listing.
func (s *Service) ListUserSubscriptions(ctx context.Context, userID uint) ([]models.Subscription, error) {
	_ = ctx
	return s.repo.ListSubscriptionsByUser(userID)
}
