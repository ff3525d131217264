package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/vendhub/vendhub/internal/pkg/database"
	"github.com/vendhub/vendhub/internal/pkg/env"
	"github.com/vendhub/vendhub/internal/pkg/payment"
	"github.com/vendhub/vendhub/internal/pkg/subscription"
	"github.com/vendhub/vendhub/internal/pkg/usercontext"
)

// subscriptionService builds the engine on the shared DB handle; tests swap
// it for a service over fakes.
var subscriptionService = func() *subscription.Service {
	return subscription.NewServiceFromDB(database.GetDB())
}

type createSubscriptionRequest struct {
	UserID    uint `json:"user_id"`
	PackageID uint `json:"package_id" validate:"required"`
}

type initiateCheckoutRequest struct {
	Provider string `json:"provider" validate:"required,oneof=stripe paypal"`
}

// HandleCreateSubscription creates a pending subscription for the calling
// vendor. Admins may create on behalf of another user via user_id.
func HandleCreateSubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var req createSubscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid JSON body"})
	}
	if err := validator.New().Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
	}

	userID := userCtx.UserID
	if req.UserID != 0 && req.UserID != userCtx.UserID {
		if !userCtx.IsAdmin {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "Cannot create subscriptions for other users"})
		}
		userID = req.UserID
	}

	ctx, cancel := context.WithTimeout(c.Context(), 10*time.Second)
	defer cancel()

	svc := subscriptionService()
	sub, err := svc.CreatePendingSubscription(ctx, userID, req.PackageID)
	if err != nil {
		return subscriptionErrorResponse(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(sub)
}

// HandleInitiateCheckout creates the provider checkout for a pending
// subscription and returns the redirect URL for the browser.
func HandleInitiateCheckout(c *fiber.Ctx) error {
	subID, err := c.ParamsInt("id")
	if err != nil || subID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid subscription id"})
	}

	var req initiateCheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid JSON body"})
	}
	if err := validator.New().Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 20*time.Second)
	defer cancel()

	svc := subscriptionService()
	redirectURL, err := svc.InitiateCheckout(ctx, uint(subID), req.Provider)
	if err != nil {
		return subscriptionErrorResponse(c, err)
	}

	return c.JSON(fiber.Map{"redirect_url": redirectURL})
}

// HandleListSubscriptions lists the calling vendor's subscriptions; admins
// may list any user's via the user_id query parameter.
func HandleListSubscriptions(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	userID := userCtx.UserID
	if q := c.QueryInt("user_id"); q > 0 && uint(q) != userCtx.UserID {
		if !userCtx.IsAdmin {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "Cannot list subscriptions of other users"})
		}
		userID = uint(q)
	}

	svc := subscriptionService()
	subs, err := svc.ListUserSubscriptions(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load subscriptions"})
	}

	return c.JSON(fiber.Map{"subscriptions": subs})
}

// subscriptionErrorResponse maps engine errors to the HTTP error taxonomy:
// validation failures are 4xx without state change, transient provider
// failures are 502 inviting a retry.
func subscriptionErrorResponse(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, subscription.ErrPackageNotFound),
		errors.Is(err, subscription.ErrSubscriptionNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": err.Error()})
	case errors.Is(err, subscription.ErrPackageInactive),
		errors.Is(err, subscription.ErrSubscriptionNotPending):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "invalid_state", "message": err.Error()})
	case errors.Is(err, subscription.ErrDuplicateSubscription),
		errors.Is(err, subscription.ErrDuplicateTransaction):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict", "message": err.Error()})
	case errors.Is(err, payment.ErrProviderUnavailable):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "provider_unavailable", "message": "Payment provider is temporarily unavailable, please retry"})
	default:
		message := "Unexpected error"
		if env.IsDev() {
			message = err.Error()
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": message})
	}
}
