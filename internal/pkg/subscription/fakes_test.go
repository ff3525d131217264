package subscription

import (
	"context"
	"sync"
	"time"

	"github.com/vendhub/vendhub/app/models"
	"github.com/vendhub/vendhub/internal/pkg/payment"
	"gorm.io/gorm"
)

// fakeRepository is an in-memory Repository. All methods, including the
// conditional transitions, run under one mutex so they are atomic exactly
// like their SQL counterparts.
type fakeRepository struct {
	mu sync.Mutex

	packages      map[uint]*models.Package
	subscriptions map[uint]*models.Subscription
	transactions  map[uint]*models.PaymentTransaction
	users         map[uint]*models.User

	nextSubID uint
	nextTxnID uint
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		packages:      map[uint]*models.Package{},
		subscriptions: map[uint]*models.Subscription{},
		transactions:  map[uint]*models.PaymentTransaction{},
		users:         map[uint]*models.User{},
		nextSubID:     1,
		nextTxnID:     1,
	}
}

func (r *fakeRepository) GetPackage(id uint) (*models.Package, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.packages[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *fakeRepository) GetSubscription(id uint) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subscriptions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *fakeRepository) FindOpenSubscription(userID, packageID uint) (*models.Subscription, error) {
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

func (r *fakeRepository) CreateSubscription(sub *models.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub.ID = r.nextSubID
	r.nextSubID++
	sub.CreatedAt = time.Now()
	cp := *sub
	r.subscriptions[sub.ID] = &cp
	return nil
}

func (r *fakeRepository) ListSubscriptionsByUser(userID uint) ([]models.Subscription, error) {
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

func (r *fakeRepository) GetTransactionBySubscription(subscriptionID uint) (*models.PaymentTransaction, error) {
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

func (r *fakeRepository) GetTransactionByReference(provider, reference string) (*models.PaymentTransaction, error) {
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

func (r *fakeRepository) CreateTransaction(txn *models.PaymentTransaction) error {
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

func (r *fakeRepository) ListStaleInitiatedTransactions(cutoff time.Time, limit int) ([]models.PaymentTransaction, error) {
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

func (r *fakeRepository) ActivateSubscription(txnID, subscriptionID, userID, packageID uint, endDate time.Time, profileQuota int) (bool, error) {
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

func (r *fakeRepository) FailTransaction(txnID, subscriptionID uint) (bool, error) {
	return r.terminate(txnID, subscriptionID, models.PaymentStatusFailed)
}

func (r *fakeRepository) CancelTransaction(txnID, subscriptionID uint) (bool, error) {
	return r.terminate(txnID, subscriptionID, models.PaymentStatusCancelled)
}

func (r *fakeRepository) terminate(txnID, subscriptionID uint, status string) (bool, error) {
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

func (r *fakeRepository) ListExpiredActiveSubscriptions(now time.Time, limit int) ([]models.Subscription, error) {
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

func (r *fakeRepository) ExpireSubscription(subscriptionID, userID, packageID uint, profileQuota int) (bool, error) {
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

// fakeGateway is a scripted payment.Gateway.
type fakeGateway struct {
	provider string

	session   *payment.CheckoutSession
	createErr error

	verification *payment.Verification
	verifyErr    error

	mu          sync.Mutex
	verifyCalls int
}

func (g *fakeGateway) Provider() string {
	return g.provider
}

func (g *fakeGateway) CreateCheckout(ctx context.Context, req payment.CheckoutRequest) (*payment.CheckoutSession, error) {
	if g.createErr != nil {
		return nil, g.createErr
	}
	return g.session, nil
}

func (g *fakeGateway) VerifyPayment(ctx context.Context, reference string) (*payment.Verification, error) {
	g.mu.Lock()
	g.verifyCalls++
	g.mu.Unlock()
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	return g.verification, nil
}

func (g *fakeGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.verifyCalls
}
