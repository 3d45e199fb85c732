package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/fleamarkt/fleamarkt/internal/pkg/env"
)

// AdminSecretMiddleware guards operator endpoints with a shared secret
// header. The secret must be configured; an empty configuration locks the
// endpoints rather than opening them.
func AdminSecretMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		secret := strings.TrimSpace(env.GetEnv("ADMIN_API_SECRET", ""))
		if secret == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Admin access not configured"})
		}

		provided := strings.TrimSpace(c.Get("X-Admin-Secret"))
		if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid admin secret"})
		}

		return c.Next()
	}
}
