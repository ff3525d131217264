package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vendhub/vendhub/app/models"
	"github.com/vendhub/vendhub/internal/pkg/cache"
	"gorm.io/gorm"
)

const packageCacheTTL = 10 * time.Minute

type packageRepository struct {
	db *gorm.DB
}

// NewPackageRepository creates a package repository backed by GORM with a
// Redis read-through cache on single-row lookups.
func NewPackageRepository(db *gorm.DB) PackageRepository {
	return &packageRepository{db: db}
}

func packageCacheKey(id uint) string {
	return fmt.Sprintf("package:%d", id)
}

func (r *packageRepository) Create(pkg *models.Package) error {
	return r.db.Create(pkg).Error
}

func (r *packageRepository) GetByID(id uint) (*models.Package, error) {
	if raw, err := cache.Get(packageCacheKey(id)); err == nil && raw != "" {
		var pkg models.Package
		if err := json.Unmarshal([]byte(raw), &pkg); err == nil {
			return &pkg, nil
		}
	}

	var pkg models.Package
	if err := r.db.First(&pkg, id).Error; err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(&pkg); err == nil {
		_ = cache.Set(packageCacheKey(id), raw, packageCacheTTL)
	}
	return &pkg, nil
}

func (r *packageRepository) Update(pkg *models.Package) error {
	if err := r.db.Save(pkg).Error; err != nil {
		return err
	}
	_ = cache.Delete(packageCacheKey(pkg.ID))
	return nil
}

func (r *packageRepository) List(offset, limit int) ([]models.Package, error) {
	var pkgs []models.Package
	err := r.db.Offset(offset).Limit(limit).Order("price ASC").Find(&pkgs).Error
	return pkgs, err
}

func (r *packageRepository) ListActive() ([]models.Package, error) {
	var pkgs []models.Package
	err := r.db.Where("status = ?", models.PackageStatusActive).Order("price ASC").Find(&pkgs).Error
	return pkgs, err
}

func (r *packageRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Package{}).Count(&count).Error
	return count, err
}
