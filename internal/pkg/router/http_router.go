package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/vendhub/vendhub/app/controllers"
	"github.com/vendhub/vendhub/internal/pkg/middleware"
)

type HttpRouter struct {
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}

// InstallRouter registers the global middleware and the provider callback
// routes. Callbacks live outside /api/v1 because their URLs are handed to the
// payment providers; both GET (browser redirect) and POST (server retry) are
// accepted.
func (h HttpRouter) InstallRouter(app *fiber.App) {
	app.Use(middleware.UserContextMiddleware)

	callbacks := app.Group("/payments/callback")
	callbacks.Get("/stripe", controllers.HandleStripeCallback)
	callbacks.Post("/stripe", controllers.HandleStripeCallback)
	callbacks.Get("/paypal/success", controllers.HandlePayPalSuccessCallback)
	callbacks.Post("/paypal/success", controllers.HandlePayPalSuccessCallback)
	callbacks.Get("/paypal/cancel", controllers.HandlePayPalCancelCallback)
	callbacks.Post("/paypal/cancel", controllers.HandlePayPalCancelCallback)
}
