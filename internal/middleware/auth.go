package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/voicetype/voicetype/internal/token"
)

// BearerAuth validates the access token on protected routes and stores the
// caller's identity and tier in request locals. Verification is stateless:
// there is no revocation list, a token is good until it expires.
func BearerAuth(tokens *token.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}

		claims, err := tokens.Verify(strings.TrimSpace(authz[len("Bearer "):]), token.Access)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid or expired token")
		}

		tier := claims.Tier
		if tier == "" {
			tier = "free"
		}

		c.Locals("user_id", claims.Subject)
		c.Locals("tier", tier)
		return c.Next()
	}
}
