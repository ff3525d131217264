package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment provider constants used across payment-related models.
const (
	PaymentProviderStripe = "stripe"
	PaymentProviderPayPal = "paypal"
)

const (
	PaymentStatusInitiated = "initiated"
	PaymentStatusSucceeded = "succeeded"
	PaymentStatusFailed    = "failed"
	PaymentStatusCancelled = "cancelled"
)

// PaymentTransaction is one payment attempt against an external provider,
// tied to exactly one subscription. Status moves initiated -> succeeded /
// failed / cancelled; terminal states never change again. The unique index on
// (provider, provider_reference) is the first line of defense against
// duplicate callback deliveries, the status guard in the reconciler is the
// second.
type PaymentTransaction struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	SubscriptionID    uint            `gorm:"not null;uniqueIndex" json:"subscription_id"`
	Provider          string          `gorm:"type:varchar(20);not null;index:ux_payment_transactions_provider_ref,unique,priority:1" json:"provider"`
	ProviderReference string          `gorm:"type:varchar(191);not null;index:ux_payment_transactions_provider_ref,unique,priority:2" json:"provider_reference"`
	Amount            decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amount"`
	Currency          string          `gorm:"type:varchar(3);not null;default:'USD'" json:"currency"`
	Status            string          `gorm:"type:varchar(20);not null;default:'initiated';index" json:"status"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`

	Subscription *Subscription `gorm:"foreignKey:SubscriptionID" json:"-"`
}

func (t *PaymentTransaction) IsTerminal() bool {
	return t.Status != PaymentStatusInitiated
}
