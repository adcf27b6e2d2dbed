package binding

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	licensePrefix = "license:"
	emailPrefix   = "email:"
)

// Store records license-to-user bindings and the email index. BindLicense is
// the single correctness-critical operation: claiming a license must be one
// atomic check-and-set, never a read followed by a write, or two concurrent
// registrations with the same key could both succeed.
type Store interface {
	// BindLicense claims licenseKey for userID. It returns false when the
	// license is already bound to some user.
	BindLicense(ctx context.Context, licenseKey, userID string) (bool, error)
	// LicenseOwner returns the user id a license is bound to, or "" when
	// the license is unclaimed.
	LicenseOwner(ctx context.Context, licenseKey string) (string, error)
	// IndexEmail records the email → user id lookup entry.
	IndexEmail(ctx context.Context, email, userID string) error
	// EmailOwner returns the user id an email resolves to, or "".
	EmailOwner(ctx context.Context, email string) (string, error)
}

// RedisStore implements Store on Redis. SETNX provides the check-and-set.
type RedisStore struct {
	cache *redis.Client
}

// NewRedisStore builds a Redis-backed binding store.
func NewRedisStore(cache *redis.Client) *RedisStore {
	return &RedisStore{cache: cache}
}

func (s *RedisStore) BindLicense(ctx context.Context, licenseKey, userID string) (bool, error) {
	claimed, err := s.cache.SetNX(ctx, licensePrefix+licenseKey, userID, 0).Result()
	if err != nil {
		return false, fmt.Errorf("binding: claim license: %w", err)
	}
	return claimed, nil
}

func (s *RedisStore) LicenseOwner(ctx context.Context, licenseKey string) (string, error) {
	owner, err := s.cache.Get(ctx, licensePrefix+licenseKey).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("binding: license owner: %w", err)
	}
	return owner, nil
}

func (s *RedisStore) IndexEmail(ctx context.Context, email, userID string) error {
	if err := s.cache.Set(ctx, emailPrefix+email, userID, 0).Err(); err != nil {
		return fmt.Errorf("binding: index email: %w", err)
	}
	return nil
}

func (s *RedisStore) EmailOwner(ctx context.Context, email string) (string, error) {
	owner, err := s.cache.Get(ctx, emailPrefix+email).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("binding: email owner: %w", err)
	}
	return owner, nil
}
