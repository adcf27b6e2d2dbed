package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/voicetype/voicetype/internal/ratelimit"
	"github.com/voicetype/voicetype/internal/usage"
)

// ErrUpstream marks a provider failure. It is surfaced without retry.
var ErrUpstream = errors.New("transcription provider failure")

// RateLimitError is returned when the caller's quota is exhausted.
type RateLimitError struct {
	ResetAt time.Time
}

func (e *RateLimitError) Error() string {
	return "rate limit exceeded"
}

// Result is a completed transcription plus the caller's quota position.
type Result struct {
	Text      string
	Duration  float64
	Remaining int
	ResetAt   time.Time
}

// Service gates transcription: quota check, provider proxy, usage metering.
// Authentication happens upstream in middleware; the service trusts the
// identity it is handed.
type Service struct {
	limiter      *ratelimit.Limiter
	provider     Provider
	usage        *usage.Recorder
	logger       *slog.Logger
	storeTimeout time.Duration
}

// NewService wires the transcription gate.
func NewService(limiter *ratelimit.Limiter, provider Provider, recorder *usage.Recorder, logger *slog.Logger, storeTimeout time.Duration) *Service {
	if storeTimeout <= 0 {
		storeTimeout = 2 * time.Second
	}
	return &Service{limiter: limiter, provider: provider, usage: recorder, logger: logger, storeTimeout: storeTimeout}
}

// Transcribe consumes quota, proxies the audio and meters usage. Usage
// accounting is best-effort: a failed accumulation is logged and the
// transcript is still returned.
func (s *Service) Transcribe(ctx context.Context, userID, tier string, audio []byte, contentType string) (Result, error) {
	limitCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	quota, err := s.limiter.Consume(limitCtx, tier, userID)
	cancel()
	if err != nil {
		return Result{}, fmt.Errorf("consume quota: %w", err)
	}
	if !quota.Allowed {
		return Result{}, &RateLimitError{ResetAt: quota.ResetAt}
	}

	transcript, err := s.provider.Transcribe(ctx, audio, contentType)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	usageCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	if err := s.usage.Add(usageCtx, userID, usage.Minutes(transcript.Duration)); err != nil {
		s.logger.Warn("usage accounting failed",
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
	}
	cancel()

	return Result{
		Text:      transcript.Text,
		Duration:  transcript.Duration,
		Remaining: quota.Remaining,
		ResetAt:   quota.ResetAt,
	}, nil
}
