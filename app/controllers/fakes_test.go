package controllers

import (
	"context"
	"sync"
	"time"

	"github.com/vendhub/vendhub/app/models"
	"github.com/vendhub/vendhub/internal/pkg/payment"
	"gorm.io/gorm"
)

// stubRepository is an in-memory subscription.Repository for handler tests.
// Transitions hold the same guards as the SQL implementation so handlers see
// realistic lost-race and deferred results.
type stubRepository struct {
	mu sync.Mutex

	packages      map[uint]*models.Package
	subscriptions map[uint]*models.Subscription
	transactions  map[uint]*models.PaymentTransaction
	users         map[uint]*models.User

	nextSubID uint
	nextTxnID uint
}

func newStubRepository() *stubRepository {
	return &stubRepository{
		packages:      map[uint]*models.Package{},
		subscriptions: map[uint]*models.Subscription{},
		transactions:  map[uint]*models.PaymentTransaction{},
		users:         map[uint]*models.User{},
		nextSubID:     1,
		nextTxnID:     1,
	}
}

func (r *stubRepository) GetPackage(id uint) (*models.Package, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.packages[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *stubRepository) GetSubscription(id uint) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subscriptions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *stubRepository) FindOpenSubscription(userID, packageID uint) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.subscriptions {
		if s.UserID == userID && s.PackageID == packageID &&
			(s.Status == models.SubscriptionStatusPending || s.Status == models.SubscriptionStatusActive) {
			cp := *s
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubRepository) CreateSubscription(sub *models.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub.ID = r.nextSubID
	r.nextSubID++
	sub.CreatedAt = time.Now()
	cp := *sub
	r.subscriptions[sub.ID] = &cp
	return nil
}

func (r *stubRepository) ListSubscriptionsByUser(userID uint) ([]models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Subscription
	for _, s := range r.subscriptions {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *stubRepository) GetTransactionBySubscription(subscriptionID uint) (*models.PaymentTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.transactions {
		if t.SubscriptionID == subscriptionID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubRepository) GetTransactionByReference(provider, reference string) (*models.PaymentTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.transactions {
		if t.Provider == provider && t.ProviderReference == reference {
			cp := *t
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubRepository) CreateTransaction(txn *models.PaymentTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.transactions {
		if t.SubscriptionID == txn.SubscriptionID {
			return gorm.ErrDuplicatedKey
		}
		if t.Provider == txn.Provider && t.ProviderReference == txn.ProviderReference {
			return gorm.ErrDuplicatedKey
		}
	}
	txn.ID = r.nextTxnID
	r.nextTxnID++
	txn.CreatedAt = time.Now()
	cp := *txn
	r.transactions[txn.ID] = &cp
	return nil
}

func (r *stubRepository) ListStaleInitiatedTransactions(cutoff time.Time, limit int) ([]models.PaymentTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.PaymentTransaction
	for _, t := range r.transactions {
		if t.Status == models.PaymentStatusInitiated && t.CreatedAt.Before(cutoff) {
			out = append(out, *t)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *stubRepository) ActivateSubscription(txnID, subscriptionID, userID, packageID uint, endDate time.Time, profileQuota int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	txn, ok := r.transactions[txnID]
	if !ok || txn.Status != models.PaymentStatusInitiated {
		return false, nil
	}
	sub, ok := r.subscriptions[subscriptionID]
	if !ok || sub.Status != models.SubscriptionStatusPending {
		return false, nil
	}
	user, ok := r.users[userID]
	if !ok || user.PackageActiveID != nil {
		return false, nil
	}

	txn.Status = models.PaymentStatusSucceeded
	sub.Status = models.SubscriptionStatusActive
	ed := endDate
	sub.EndDate = &ed

	pid := packageID
	user.PackageActiveID = &pid
	user.ActiveProfileQuota += profileQuota
	return true, nil
}

func (r *stubRepository) FailTransaction(txnID, subscriptionID uint) (bool, error) {
	return r.terminate(txnID, subscriptionID, models.PaymentStatusFailed)
}

func (r *stubRepository) CancelTransaction(txnID, subscriptionID uint) (bool, error) {
	return r.terminate(txnID, subscriptionID, models.PaymentStatusCancelled)
}

func (r *stubRepository) terminate(txnID, subscriptionID uint, status string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	txn, ok := r.transactions[txnID]
	if !ok || txn.Status != models.PaymentStatusInitiated {
		return false, nil
	}
	txn.Status = status

	if sub, ok := r.subscriptions[subscriptionID]; ok && sub.Status == models.SubscriptionStatusPending {
		sub.Status = models.SubscriptionStatusCancelled
	}
	return true, nil
}

func (r *stubRepository) ListExpiredActiveSubscriptions(now time.Time, limit int) ([]models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Subscription
	for _, s := range r.subscriptions {
		if s.Status == models.SubscriptionStatusActive && s.EndDate != nil && s.EndDate.Before(now) {
			out = append(out, *s)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *stubRepository) ExpireSubscription(subscriptionID, userID, packageID uint, profileQuota int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subscriptions[subscriptionID]
	if !ok || sub.Status != models.SubscriptionStatusActive {
		return false, nil
	}
	sub.Status = models.SubscriptionStatusExpired

	if user, ok := r.users[userID]; ok {
		user.ActiveProfileQuota -= profileQuota
		if user.ActiveProfileQuota < 0 {
			user.ActiveProfileQuota = 0
		}
		if user.PackageActiveID != nil && *user.PackageActiveID == packageID {
			user.PackageActiveID = nil
		}
	}
	return true, nil
}

// stubGateway is a scripted payment.Gateway.
type stubGateway struct {
	provider string

	session   *payment.CheckoutSession
	createErr error

	verification *payment.Verification
	verifyErr    error

	mu          sync.Mutex
	verifyCalls int
}

func (g *stubGateway) Provider() string {
	return g.provider
}

func (g *stubGateway) CreateCheckout(ctx context.Context, req payment.CheckoutRequest) (*payment.CheckoutSession, error) {
	if g.createErr != nil {
		return nil, g.createErr
	}
	return g.session, nil
}

func (g *stubGateway) VerifyPayment(ctx context.Context, reference string) (*payment.Verification, error) {
	g.mu.Lock()
	g.verifyCalls++
	g.mu.Unlock()
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	return g.verification, nil
}

func (g *stubGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.verifyCalls
}
