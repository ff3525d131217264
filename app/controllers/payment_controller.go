package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/vendhub/vendhub/app/models"
	"github.com/vendhub/vendhub/internal/pkg/env"
	"github.com/vendhub/vendhub/internal/pkg/payment"
	"github.com/vendhub/vendhub/internal/pkg/subscription"
)

// Payment callbacks are driven entirely by server-verified status, so they
// need no caller identity. Duplicate deliveries and stale references answer
// success-shaped so providers and browsers never see a replay as a failure.

// HandleStripeCallback resolves the session-style success redirect. The
// session id arrives in the `session` query parameter (or JSON body for
// server-to-server retries).
func HandleStripeCallback(c *fiber.Ctx) error {
	ref := callbackReference(c, "session")
	if ref == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Missing session reference"})
	}
	return resolveCallback(c, models.PaymentProviderStripe, ref, false)
}

// HandlePayPalSuccessCallback resolves the order-style success redirect. The
// order id arrives in the `order` query parameter.
func HandlePayPalSuccessCallback(c *fiber.Ctx) error {
	ref := callbackReference(c, "order")
	if ref == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Missing order reference"})
	}
	return resolveCallback(c, models.PaymentProviderPayPal, ref, false)
}

// HandlePayPalCancelCallback settles an order-style checkout the buyer backed
// out of.
func HandlePayPalCancelCallback(c *fiber.Ctx) error {
	ref := callbackReference(c, "order")
	if ref == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Missing order reference"})
	}
	return resolveCallback(c, models.PaymentProviderPayPal, ref, true)
}

func resolveCallback(c *fiber.Ctx, provider, reference string, cancel bool) error {
	ctx, cancelCtx := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancelCtx()

	svc := subscriptionService()

	var outcome subscription.Outcome
	var err error
	if cancel {
		outcome, err = svc.HandleCancelCallback(ctx, provider, reference)
	} else {
		outcome, err = svc.HandleSuccessCallback(ctx, provider, reference)
	}

	if err != nil && !errors.Is(err, subscription.ErrPaymentMismatch) {
		if errors.Is(err, payment.ErrProviderUnavailable) {
			// The transaction stays initiated; the provider or browser may
			// retry, and the reconcile sweep picks up leftovers.
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "provider_unavailable", "message": "Verification temporarily unavailable, please retry"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Callback processing failed"})
	}

	redirect := resultRedirectURL(outcome)
	if c.Method() == fiber.MethodGet {
		return c.Redirect(redirect, fiber.StatusSeeOther)
	}
	return c.JSON(fiber.Map{"status": string(outcome), "redirect_url": redirect})
}

// callbackReference reads the provider reference from the query string or,
// for POSTed retries, from the JSON body.
func callbackReference(c *fiber.Ctx, key string) string {
	if ref := strings.TrimSpace(c.Query(key)); ref != "" {
		return ref
	}
	var body map[string]string
	if err := c.BodyParser(&body); err == nil {
		return strings.TrimSpace(body[key])
	}
	return ""
}

func resultRedirectURL(outcome subscription.Outcome) string {
	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")
	switch outcome {
	case subscription.OutcomeActivated, subscription.OutcomeAlreadyResolved:
		return base + "/panel/subscriptions?payment=success"
	case subscription.OutcomeCancelled:
		return base + "/panel/subscriptions?payment=cancelled"
	case subscription.OutcomeMismatch:
		return base + "/panel/subscriptions?payment=failed"
	default:
		// unresolved and deferred payments both read as still pending
		return base + "/panel/subscriptions?payment=pending"
	}
}
