package web

import (
	"github.com/gofiber/fiber/v2"
)

// NoCache forces revalidation on every response; balances and quotes must
// never come from a browser cache.
func NoCache() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderCacheControl, "no-cache, no-store, must-revalidate")
		c.Set(fiber.HeaderPragma, "no-cache")
		c.Set(fiber.HeaderExpires, "0")
		return c.Next()
	}
}

// RequireLogin gates protected routes: without a session identity the request
// is redirected to the login form instead of executing.
func (h *Handler) RequireLogin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, ok := h.currentUserID(c)
		if !ok {
			return c.Redirect("/login", fiber.StatusFound)
		}
		c.Locals(localUserID, userID)
		return c.Next()
	}
}
