package usercontext

import "github.com/gofiber/fiber/v2"

// ContextKey is the fiber Locals key the middleware stores the context under.
const ContextKey = "USER_CONTEXT"

// UserContext represents the authenticated caller of a request. Identity is
// established upstream (API gateway / auth subsystem); the middleware only
// materializes it for handlers.
type UserContext struct {
	UserID     uint   `json:"user_id"`
	Role       string `json:"role"`
	IsLoggedIn bool   `json:"is_logged_in"`
	IsAdmin    bool   `json:"is_admin"`
}

// GetUserContext retrieves the user context from fiber context.
// Returns a default anonymous context if none is set.
func GetUserContext(c *fiber.Ctx) UserContext {
	if ctx := c.Locals(ContextKey); ctx != nil {
		return ctx.(UserContext)
	}
	return UserContext{IsLoggedIn: false, IsAdmin: false}
}

// GetUserID returns the current user's ID, or 0 if not logged in.
func GetUserID(c *fiber.Ctx) uint {
	return GetUserContext(c).UserID
}

// IsAdmin checks if the current user is an admin.
func IsAdmin(c *fiber.Ctx) bool {
	return GetUserContext(c).IsAdmin
}
