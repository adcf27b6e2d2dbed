package registration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/voicetype/voicetype/internal/binding"
	"github.com/voicetype/voicetype/internal/license"
	"github.com/voicetype/voicetype/internal/token"
	"github.com/voicetype/voicetype/internal/user"
)

var (
	// ErrValidation marks malformed registration input.
	ErrValidation = errors.New("invalid input")
	// ErrInvalidLicense marks a license key that fails decoding.
	ErrInvalidLicense = errors.New("invalid license key")
	// ErrLicenseUsed marks a license key already bound to a user.
	ErrLicenseUsed = errors.New("license key already activated")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Input is the registration request payload.
type Input struct {
	Email      string `json:"email" validate:"required,email"`
	LicenseKey string `json:"licenseKey" validate:"required"`
	DeviceID   string `json:"deviceId" validate:"required"`
}

// Result is a successful registration outcome.
type Result struct {
	AccessToken  string
	RefreshToken string
	User         user.User
}

// Service validates a license, creates the user record exactly once per
// license, and issues session credentials. All uniqueness guarantees are
// delegated to the binding store's check-and-set; the service holds no
// state of its own and is safe to run in any number of replicas.
type Service struct {
	codec    *license.Codec
	tokens   *token.Service
	users    user.Repository
	bindings binding.Store
	timeout  time.Duration
}

// NewService wires the registration orchestrator.
func NewService(codec *license.Codec, tokens *token.Service, users user.Repository, bindings binding.Store, storeTimeout time.Duration) *Service {
	if storeTimeout <= 0 {
		storeTimeout = 2 * time.Second
	}
	return &Service{codec: codec, tokens: tokens, users: users, bindings: bindings, timeout: storeTimeout}
}

// Register runs the registration sequence: validate input, decode the
// license, claim it atomically, persist the user, index the email, issue
// tokens. Store failures after the license claim are surfaced as-is; there
// is no compensating rollback.
func (s *Service) Register(ctx context.Context, in Input) (Result, error) {
	if err := validate.Struct(in); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	tier, ok := s.codec.Decode(in.LicenseKey)
	if !ok {
		return Result{}, ErrInvalidLicense
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// The claim is a single check-and-set: it both detects an already
	// activated license and establishes the binding for this user id.
	userID := uuid.NewString()
	claimed, err := s.bindings.BindLicense(ctx, in.LicenseKey, userID)
	if err != nil {
		return Result{}, fmt.Errorf("claim license: %w", err)
	}
	if !claimed {
		return Result{}, ErrLicenseUsed
	}

	newUser := user.User{
		ID:         userID,
		Email:      in.Email,
		Tier:       string(tier),
		LicenseKey: in.LicenseKey,
		Devices:    []string{in.DeviceID},
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.users.Create(ctx, newUser); err != nil {
		return Result{}, fmt.Errorf("persist user: %w", err)
	}
	if err := s.bindings.IndexEmail(ctx, in.Email, userID); err != nil {
		return Result{}, fmt.Errorf("index email: %w", err)
	}

	access, err := s.tokens.IssueAccess(userID, string(tier))
	if err != nil {
		return Result{}, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := s.tokens.IssueRefresh(userID)
	if err != nil {
		return Result{}, fmt.Errorf("issue refresh token: %w", err)
	}

	return Result{AccessToken: access, RefreshToken: refresh, User: newUser}, nil
}
