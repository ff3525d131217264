package models

import "time"

const (
	SubscriptionStatusPending   = "pending"
	SubscriptionStatusActive    = "active"
	SubscriptionStatusCancelled = "cancelled"
	SubscriptionStatusExpired   = "expired"
)

// Subscription is a vendor's time-bounded claim on a package. PublicID is an
// opaque identifier assigned at creation for receipts and support lookups,
// stable across environments unlike the auto-increment key. Lifecycle is
// strictly forward: pending -> active, pending -> cancelled, active -> expired.
// EndDate stays null until activation and is then set exactly once to
// StartDate + the package duration. Rows are never deleted; together with
// payment transactions they form the audit trail of purchase attempts.
type Subscription struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	PublicID  string     `gorm:"type:char(36);not null;uniqueIndex:ux_subscriptions_public_id" json:"public_id"`
	UserID    uint       `gorm:"not null;index:idx_subscriptions_user_status,priority:1" json:"user_id"`
	PackageID uint       `gorm:"not null;index" json:"package_id"`
	Status    string     `gorm:"type:varchar(20);not null;default:'pending';index:idx_subscriptions_user_status,priority:2;index:idx_subscriptions_status_end,priority:1" json:"status"`
	StartDate time.Time  `gorm:"not null" json:"start_date"`
	EndDate   *time.Time `gorm:"type:timestamp;default:null;index:idx_subscriptions_status_end,priority:2" json:"end_date,omitempty"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	User    *User    `gorm:"foreignKey:UserID" json:"-"`
	Package *Package `gorm:"foreignKey:PackageID" json:"-"`
}

// IsTerminal reports whether the subscription can never change status again
// except through the expiry sweep.
func (s *Subscription) IsTerminal() bool {
	return s.Status == SubscriptionStatusCancelled || s.Status == SubscriptionStatusExpired
}
