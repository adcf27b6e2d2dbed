package routes

import (
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/voicetype/voicetype/internal/ratelimit"
	"github.com/voicetype/voicetype/internal/usage"
)

// RegisterUsageRoute exposes the caller's entitlement status: accumulated
// minutes this month and the remaining request quota. Backs the desktop
// shell's entitlement-status lookup. Reads only; nothing is consumed.
func RegisterUsageRoute(r fiber.Router, limiter *ratelimit.Limiter, recorder *usage.Recorder, logger *slog.Logger) {
	r.Get("/usage", func(c *fiber.Ctx) error {
		userID, _ := c.Locals("user_id").(string)
		tier, _ := c.Locals("tier").(string)
		if userID == "" {
			return fiber.NewError(http.StatusUnauthorized, "missing credentials")
		}

		status, err := limiter.Status(c.UserContext(), tier, userID)
		if err != nil {
			logger.Error("quota status lookup failed", "user_id", userID, "error", err)
			return fiber.NewError(http.StatusInternalServerError, "internal server error")
		}
		minutes, err := recorder.MinutesThisMonth(c.UserContext(), userID)
		if err != nil {
			logger.Error("usage lookup failed", "user_id", userID, "error", err)
			return fiber.NewError(http.StatusInternalServerError, "internal server error")
		}

		return c.Status(http.StatusOK).JSON(fiber.Map{
			"tier":             tier,
			"minutesThisMonth": minutes,
			"remaining":        status.Remaining,
			"resetAt":          status.ResetAt.Unix(),
		})
	})
}
