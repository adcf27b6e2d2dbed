package routes

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/voicetype/voicetype/internal/token"
	"github.com/voicetype/voicetype/internal/user"
)

// RegisterAuthRoutes wires the token refresh endpoint. The refresh token
// carries only the user id; the tier is re-read from the user record so a
// new access token always reflects the stored entitlement.
func RegisterAuthRoutes(r fiber.Router, tokens *token.Service, users user.Repository) {
	r.Post("/auth/refresh", func(c *fiber.Ctx) error {
		var req struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid request body")
		}
		if req.RefreshToken == "" {
			return fiber.NewError(http.StatusBadRequest, "refreshToken is required")
		}

		claims, err := tokens.Verify(req.RefreshToken, token.Refresh)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid refresh token")
		}

		u, err := users.FindByID(c.UserContext(), claims.Subject)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "user not found")
		}

		access, err := tokens.IssueAccess(u.ID, u.Tier)
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, "internal server error")
		}

		return c.Status(http.StatusOK).JSON(fiber.Map{
			"accessToken": access,
			"expiresIn":   int64(tokens.AccessTTL().Seconds()),
		})
	})
}
