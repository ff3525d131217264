package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/vendhub/vendhub/app/controllers"
	"github.com/vendhub/vendhub/internal/pkg/middleware"
)

type ApiRouter struct {
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}

func (a ApiRouter) InstallRouter(app *fiber.App) {
	v1 := app.Group("/api/v1")

	subs := v1.Group("/subscriptions", middleware.RequireAuth)
	subs.Post("/", controllers.HandleCreateSubscription)
	subs.Get("/", controllers.HandleListSubscriptions)
	subs.Post("/:id/checkout", controllers.HandleInitiateCheckout)

	pkgs := v1.Group("/packages")
	pkgs.Get("/", controllers.HandleListPackages)
	pkgs.Get("/:id", controllers.HandleGetPackage)
	pkgs.Post("/", middleware.RequireAdmin, controllers.HandleCreatePackage)
	pkgs.Put("/:id", middleware.RequireAdmin, controllers.HandleUpdatePackage)

	users := v1.Group("/users", middleware.RequireAdmin)
	users.Get("/", controllers.HandleListUsers)
	users.Get("/:id", controllers.HandleGetUser)
	users.Post("/", controllers.HandleCreateUser)

	// Called by the gateway itself, so it carries no forwarded identity.
	v1.Post("/auth/verify", controllers.HandleVerifyCredentials)
}
