package registration

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes the registration endpoint.
type Handler struct {
	svc    *Service
	logger *slog.Logger
}

// NewHandler builds the registration handler.
func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

type registeredUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Tier  string `json:"tier"`
}

type registerResponse struct {
	AccessToken  string         `json:"accessToken"`
	RefreshToken string         `json:"refreshToken"`
	User         registeredUser `json:"user"`
}

// Register binds a license key to a new user and returns session credentials.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req Input
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}

	res, err := h.svc.Register(c.UserContext(), req)
	if err != nil {
		switch {
		case errors.Is(err, ErrValidation):
			return fiber.NewError(http.StatusBadRequest, "invalid input")
		case errors.Is(err, ErrInvalidLicense):
			return fiber.NewError(http.StatusBadRequest, "invalid license key")
		case errors.Is(err, ErrLicenseUsed):
			return fiber.NewError(http.StatusBadRequest, "license key already activated")
		default:
			h.logger.Error("registration failed", "error", err)
			return fiber.NewError(http.StatusInternalServerError, "internal server error")
		}
	}

	h.logger.Info("registration completed",
		slog.String("user_id", res.User.ID),
		slog.String("tier", res.User.Tier),
	)

	return c.Status(http.StatusOK).JSON(registerResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		User: registeredUser{
			ID:    res.User.ID,
			Email: res.User.Email,
			Tier:  res.User.Tier,
		},
	})
}
