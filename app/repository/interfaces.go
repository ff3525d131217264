package repository

import (
	"github.com/vendhub/vendhub/app/models"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	Update(user *models.User) error
	List(offset, limit int) ([]models.User, error)
	Count() (int64, error)
}

// PackageRepository defines the interface for package-related database
// operations. Reads go through the cache; writes invalidate it.
type PackageRepository interface {
	Create(pkg *models.Package) error
	GetByID(id uint) (*models.Package, error)
	Update(pkg *models.Package) error
	List(offset, limit int) ([]models.Package, error)
	ListActive() ([]models.Package, error)
	Count() (int64, error)
}
