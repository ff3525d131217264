package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/vendhub/vendhub/app/models"
	"github.com/vendhub/vendhub/app/repository"
	"github.com/vendhub/vendhub/internal/pkg/usercontext"
	"gorm.io/gorm"
)

// Package CRUD is a thin persistence wrapper; the subscription engine only
// ever reads packages.

type packageRequest struct {
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Price        decimal.Decimal `json:"price"`
	Currency     string          `json:"currency"`
	DurationDays int             `json:"duration_days"`
	ProfileQuota int             `json:"profile_quota"`
	Status       string          `json:"status"`
}

// HandleListPackages returns active packages for vendors; admins see all.
func HandleListPackages(c *fiber.Ctx) error {
	repo := repository.GetGlobalFactory().GetPackageRepository()

	if usercontext.IsAdmin(c) {
		offset := c.QueryInt("offset", 0)
		limit := c.QueryInt("limit", 50)
		pkgs, err := repo.List(offset, limit)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load packages"})
		}
		return c.JSON(fiber.Map{"packages": pkgs})
	}

	pkgs, err := repo.ListActive()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load packages"})
	}
	return c.JSON(fiber.Map{"packages": pkgs})
}

// HandleGetPackage returns a single package.
func HandleGetPackage(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid package id"})
	}

	pkg, err := repository.GetGlobalFactory().GetPackageRepository().GetByID(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Package not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load package"})
	}
	return c.JSON(pkg)
}

// HandleCreatePackage creates a package (admin only, enforced by router).
func HandleCreatePackage(c *fiber.Ctx) error {
	var req packageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid JSON body"})
	}

	pkg := &models.Package{
		Name:         req.Name,
		Description:  req.Description,
		Price:        req.Price,
		Currency:     req.Currency,
		DurationDays: req.DurationDays,
		ProfileQuota: req.ProfileQuota,
		Status:       req.Status,
	}
	if pkg.Currency == "" {
		pkg.Currency = "USD"
	}
	if pkg.Status == "" {
		pkg.Status = models.PackageStatusActive
	}
	if err := pkg.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
	}

	if err := repository.GetGlobalFactory().GetPackageRepository().Create(pkg); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to create package"})
	}
	return c.Status(fiber.StatusCreated).JSON(pkg)
}

// HandleUpdatePackage updates a package (admin only, enforced by router).
func HandleUpdatePackage(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid package id"})
	}

	repo := repository.GetGlobalFactory().GetPackageRepository()
	pkg, err := repo.GetByID(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Package not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load package"})
	}

	var req packageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid JSON body"})
	}

	if req.Name != "" {
		pkg.Name = req.Name
	}
	if req.Description != "" {
		pkg.Description = req.Description
	}
	if !req.Price.IsZero() {
		pkg.Price = req.Price
	}
	if req.Currency != "" {
		pkg.Currency = req.Currency
	}
	if req.DurationDays > 0 {
		pkg.DurationDays = req.DurationDays
	}
	if req.ProfileQuota > 0 {
		pkg.ProfileQuota = req.ProfileQuota
	}
	if req.Status != "" {
		pkg.Status = req.Status
	}
	if err := pkg.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
	}

	if err := repo.Update(pkg); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to update package"})
	}
	return c.JSON(pkg)
}
