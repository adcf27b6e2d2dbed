package transcribe

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes the transcription endpoint.
type Handler struct {
	svc    *Service
	logger *slog.Logger
}

// NewHandler builds the transcription handler.
func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

type usageInfo struct {
	Remaining int   `json:"remaining"`
	ResetAt   int64 `json:"resetAt"`
}

type transcribeResponse struct {
	Text     string    `json:"text"`
	Duration float64   `json:"duration"`
	Usage    usageInfo `json:"usage"`
}

// Transcribe proxies the request body to the provider for the authenticated
// caller. Identity and tier come from the auth middleware.
func (h *Handler) Transcribe(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	tier, _ := c.Locals("tier").(string)
	if userID == "" {
		return fiber.NewError(http.StatusUnauthorized, "missing credentials")
	}

	audio := c.Body()
	if len(audio) == 0 {
		return fiber.NewError(http.StatusBadRequest, "no audio provided")
	}

	res, err := h.svc.Transcribe(c.UserContext(), userID, tier, audio, c.Get(fiber.HeaderContentType))
	if err != nil {
		var limited *RateLimitError
		switch {
		case errors.As(err, &limited):
			resetAt := limited.ResetAt.Unix()
			c.Set("X-RateLimit-Remaining", "0")
			c.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt, 10))
			return c.Status(http.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "rate limit exceeded",
				"resetAt": resetAt,
			})
		case errors.Is(err, ErrUpstream):
			h.logger.Error("provider call failed", "user_id", userID, "error", err)
			return fiber.NewError(http.StatusBadGateway, "transcription provider unavailable")
		default:
			h.logger.Error("transcription failed", "user_id", userID, "error", err)
			return fiber.NewError(http.StatusInternalServerError, "internal server error")
		}
	}

	c.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	c.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
	return c.Status(http.StatusOK).JSON(transcribeResponse{
		Text:     res.Text,
		Duration: res.Duration,
		Usage: usageInfo{
			Remaining: res.Remaining,
			ResetAt:   res.ResetAt.Unix(),
		},
	})
}
