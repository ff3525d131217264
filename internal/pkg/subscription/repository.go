package subscription

import (
	"errors"
	"time"

	"github.com/vendhub/vendhub/app/models"
	"gorm.io/gorm"
)

// errTransitionLost aborts a DB transaction whose compare-and-swap guard did
// not match; the caller translates it into a lost-race result, not an error.
var errTransitionLost = errors.New("conditional transition lost")

// Repository provides the DB operations used by the subscription engine. All
// lifecycle transitions are conditional on the row's prior status and run as
// a single atomic unit, which is the engine's only concurrency control.
type Repository interface {
	GetPackage(id uint) (*models.Package, error)
	GetSubscription(id uint) (*models.Subscription, error)
	FindOpenSubscription(userID, packageID uint) (*models.Subscription, error)
	CreateSubscription(sub *models.Subscription) error
	ListSubscriptionsByUser(userID uint) ([]models.Subscription, error)

	GetTransactionBySubscription(subscriptionID uint) (*models.PaymentTransaction, error)
	GetTransactionByReference(provider, reference string) (*models.PaymentTransaction, error)
	CreateTransaction(txn *models.PaymentTransaction) error
	ListStaleInitiatedTransactions(cutoff time.Time, limit int) ([]models.PaymentTransaction, error)

	// ActivateSubscription commits transaction initiated->succeeded,
	// subscription pending->active with the given end date, and the user's
	// denormalized package pointer / profile quota, all in one transaction.
	// Returns false when another caller already resolved the transaction, or
	// when the user still holds a different active package; in the latter
	// case everything rolls back and the reconcile sweep retries later.
	ActivateSubscription(txnID, subscriptionID, userID, packageID uint, endDate time.Time, profileQuota int) (bool, error)
	// FailTransaction commits initiated->failed plus pending->cancelled.
	FailTransaction(txnID, subscriptionID uint) (bool, error)
	// CancelTransaction commits initiated->cancelled plus pending->cancelled.
	CancelTransaction(txnID, subscriptionID uint) (bool, error)

	ListExpiredActiveSubscriptions(now time.Time, limit int) ([]models.Subscription, error)
	// ExpireSubscription commits active->expired and repairs the user's
	// denormalized counters. Returns false when the row was already expired.
	ExpireSubscription(subscriptionID, userID, packageID uint, profileQuota int) (bool, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a subscription repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetPackage(id uint) (*models.Package, error) {
	var p models.Package
	if err := r.db.First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) GetSubscription(id uint) (*models.Subscription, error) {
	var s models.Subscription
	if err := r.db.First(&s, id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *gormRepository) FindOpenSubscription(userID, packageID uint) (*models.Subscription, error) {
	var s models.Subscription
	err := r.db.
		Where("user_id = ? AND package_id = ? AND status IN ?", userID, packageID,
			[]string{models.SubscriptionStatusPending, models.SubscriptionStatusActive}).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *gormRepository) CreateSubscription(sub *models.Subscription) error {
	return r.db.Create(sub).Error
}

func (r *gormRepository) ListSubscriptionsByUser(userID uint) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&subs).Error
	return subs, err
}

func (r *gormRepository) GetTransactionBySubscription(subscriptionID uint) (*models.PaymentTransaction, error) {
	var t models.PaymentTransaction
	if err := r.db.Where("subscription_id = ?", subscriptionID).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *gormRepository) GetTransactionByReference(provider, reference string) (*models.PaymentTransaction, error) {
	var t models.PaymentTransaction
	err := r.db.Where("provider = ? AND provider_reference = ?", provider, reference).First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *gormRepository) CreateTransaction(txn *models.PaymentTransaction) error {
	return r.db.Create(txn).Error
}

func (r *gormRepository) ListStaleInitiatedTransactions(cutoff time.Time, limit int) ([]models.PaymentTransaction, error) {
	var txns []models.PaymentTransaction
	err := r.db.
		Where("status = ? AND created_at < ?", models.PaymentStatusInitiated, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&txns).Error
	return txns, err
}

func (r *gormRepository) ActivateSubscription(txnID, subscriptionID, userID, packageID uint, endDate time.Time, profileQuota int) (bool, error) {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.PaymentTransaction{}).
			Where("id = ? AND status = ?", txnID, models.PaymentStatusInitiated).
			Update("status", models.PaymentStatusSucceeded)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errTransitionLost
		}

		res = tx.Model(&models.Subscription{}).
			Where("id = ? AND status = ?", subscriptionID, models.SubscriptionStatusPending).
			Updates(map[string]interface{}{
				"status":   models.SubscriptionStatusActive,
				"end_date": endDate,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errTransitionLost
		}

		// A user carries at most one active package. The pointer is cleared by
		// the expiry transition, so guarding on NULL closes the race of two
		// different pending packages activating for the same user.
		res = tx.Model(&models.User{}).
			Where("id = ? AND package_active_id IS NULL", userID).
			Updates(map[string]interface{}{
				"package_active_id":    packageID,
				"active_profile_quota": gorm.Expr("active_profile_quota + ?", profileQuota),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errTransitionLost
		}
		return nil
	})
	if errors.Is(err, errTransitionLost) {
		return false, nil
	}
	return err == nil, err
}

func (r *gormRepository) FailTransaction(txnID, subscriptionID uint) (bool, error) {
	return r.terminateTransaction(txnID, subscriptionID, models.PaymentStatusFailed)
}

func (r *gormRepository) CancelTransaction(txnID, subscriptionID uint) (bool, error) {
	return r.terminateTransaction(txnID, subscriptionID, models.PaymentStatusCancelled)
}

func (r *gormRepository) terminateTransaction(txnID, subscriptionID uint, txnStatus string) (bool, error) {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.PaymentTransaction{}).
			Where("id = ? AND status = ?", txnID, models.PaymentStatusInitiated).
			Update("status", txnStatus)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errTransitionLost
		}

		// Guarded on pending so an active subscription is never downgraded.
		return tx.Model(&models.Subscription{}).
			Where("id = ? AND status = ?", subscriptionID, models.SubscriptionStatusPending).
			Update("status", models.SubscriptionStatusCancelled).Error
	})
	if errors.Is(err, errTransitionLost) {
		return false, nil
	}
	return err == nil, err
}

func (r *gormRepository) ListExpiredActiveSubscriptions(now time.Time, limit int) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.
		Where("status = ? AND end_date IS NOT NULL AND end_date < ?", models.SubscriptionStatusActive, now).
		Order("end_date ASC").
		Limit(limit).
		Find(&subs).Error
	return subs, err
}

func (r *gormRepository) ExpireSubscription(subscriptionID, userID, packageID uint, profileQuota int) (bool, error) {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Subscription{}).
			Where("id = ? AND status = ?", subscriptionID, models.SubscriptionStatusActive).
			Update("status", models.SubscriptionStatusExpired)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errTransitionLost
		}

		if err := tx.Model(&models.User{}).
			Where("id = ?", userID).
			Update("active_profile_quota", gorm.Expr("GREATEST(active_profile_quota - ?, 0)", profileQuota)).Error; err != nil {
			return err
		}

		return tx.Model(&models.User{}).
			Where("id = ? AND package_active_id = ?", userID, packageID).
			Update("package_active_id", nil).Error
	})
	if errors.Is(err, errTransitionLost) {
		return false, nil
	}
	return err == nil, err
}
