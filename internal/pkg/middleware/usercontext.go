package middleware

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/vendhub/vendhub/app/models"
	"github.com/vendhub/vendhub/internal/pkg/usercontext"
)

// UserContextMiddleware materializes the caller identity for every request.
// Authentication itself happens upstream; the gateway forwards the verified
// user id and role in headers. Payment provider callbacks carry no identity
// and pass through as anonymous.
func UserContextMiddleware(c *fiber.Ctx) error {
	rawID := strings.TrimSpace(c.Get("X-User-ID"))
	if rawID == "" {
		c.Locals(usercontext.ContextKey, usercontext.UserContext{
			IsLoggedIn: false,
			IsAdmin:    false,
		})
		return c.Next()
	}

	id, err := strconv.ParseUint(rawID, 10, 64)
	if err != nil || id == 0 {
		c.Locals(usercontext.ContextKey, usercontext.UserContext{
			IsLoggedIn: false,
			IsAdmin:    false,
		})
		return c.Next()
	}

	role := strings.ToLower(strings.TrimSpace(c.Get("X-User-Role")))
	if role == "" {
		role = models.ROLE_VENDOR
	}

	c.Locals(usercontext.ContextKey, usercontext.UserContext{
		UserID:     uint(id),
		Role:       role,
		IsLoggedIn: true,
		IsAdmin:    role == models.ROLE_ADMIN,
	})
	return c.Next()
}
