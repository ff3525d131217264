package models

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var ErrNegativePrice = errors.New("package price must not be negative")

const (
	PackageStatusActive   = "active"
	PackageStatusInactive = "inactive"
)

// Package is a purchasable plan: a price buys DurationDays of service and a
// quota of ProfileQuota streaming profiles. The subscription engine treats
// packages as read-only input; only the admin CRUD surface writes them.
type Package struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	Name         string          `gorm:"type:varchar(150);not null" json:"name" validate:"required,min=3,max=150"`
	Description  string          `gorm:"type:text" json:"description" validate:"max=2000"`
	Price        decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
	Currency     string          `gorm:"type:varchar(3);not null;default:'USD'" json:"currency" validate:"required,len=3"`
	DurationDays int             `gorm:"not null" json:"duration_days" validate:"required,min=1"`
	ProfileQuota int             `gorm:"not null" json:"profile_quota" validate:"required,min=1"`
	Status       string          `gorm:"type:varchar(20);not null;default:'active';index" json:"status" validate:"oneof=active inactive"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt    gorm.DeletedAt  `gorm:"index" json:"-"`
}

func (p *Package) Validate() error {
	v := validator.New()

	if err := v.Struct(p); err != nil {
		return err
	}
	if p.Price.IsNegative() {
		return ErrNegativePrice
	}
	return nil
}

func (p *Package) IsActive() bool {
	return p.Status == PackageStatusActive
}
