package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	defaultAppName         = "VoiceType"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultShutdownDelay   = 10 * time.Second
	defaultAccessTokenTTL  = 7 * 24 * time.Hour
	defaultRefreshTokenTTL = 30 * 24 * time.Hour
	defaultRateWindow      = time.Hour
	defaultStoreTimeout    = 2 * time.Second
	defaultProviderTimeout = 60 * time.Second
	defaultProviderURL     = "https://api.deepgram.com/v1/listen"
	defaultProviderModel   = "nova-2"
	defaultProviderLang    = "de"

	minSecretLen = 32
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName  string
	AppEnv   string
	Port     string
	LogLevel string

	DatabaseURL string
	RedisURL    string

	// LicenseKey is the process-wide AES-256 key the license codec runs under.
	LicenseKey []byte
	// JWTSecret signs access tokens; RefreshSecret signs refresh tokens.
	// They must differ so possession of one token class never forges the other.
	JWTSecret     string
	RefreshSecret string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	RateLimitWindow time.Duration

	ProviderURL      string
	ProviderAPIKey   string
	ProviderModel    string
	ProviderLanguage string
	ProviderTimeout  time.Duration

	StoreTimeout   time.Duration
	ShutdownPeriod time.Duration
}

// Load reads configuration values from the environment and populates a Config
// instance. Missing or malformed secrets are a startup error: the service
// refuses to boot rather than fail per-request.
func Load() (Config, error) {
	cfg := Config{
		AppName:          getEnv("APP_NAME", defaultAppName),
		AppEnv:           getEnv("APP_ENV", defaultAppEnv),
		Port:             getEnv("PORT", defaultPort),
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		RefreshSecret:    os.Getenv("JWT_REFRESH_SECRET"),
		ProviderURL:      getEnv("TRANSCRIBE_PROVIDER_URL", defaultProviderURL),
		ProviderAPIKey:   os.Getenv("DEEPGRAM_API_KEY"),
		ProviderModel:    getEnv("TRANSCRIBE_MODEL", defaultProviderModel),
		ProviderLanguage: getEnv("TRANSCRIBE_LANGUAGE", defaultProviderLang),
		AccessTokenTTL:   defaultAccessTokenTTL,
		RefreshTokenTTL:  defaultRefreshTokenTTL,
		RateLimitWindow:  defaultRateWindow,
		ProviderTimeout:  defaultProviderTimeout,
		StoreTimeout:     defaultStoreTimeout,
		ShutdownPeriod:   defaultShutdownDelay,
	}

	for _, d := range []struct {
		envVar string
		dst    *time.Duration
	}{
		{"ACCESS_TOKEN_TTL", &cfg.AccessTokenTTL},
		{"REFRESH_TOKEN_TTL", &cfg.RefreshTokenTTL},
		{"RATE_LIMIT_WINDOW", &cfg.RateLimitWindow},
		{"PROVIDER_TIMEOUT", &cfg.ProviderTimeout},
		{"STORE_TIMEOUT", &cfg.StoreTimeout},
		{"SHUTDOWN_TIMEOUT", &cfg.ShutdownPeriod},
	} {
		if v := os.Getenv(d.envVar); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return Config{}, fmt.Errorf("invalid %s: %w", d.envVar, err)
			}
			*d.dst = parsed
		}
	}

	licenseKey, err := parseLicenseKey(os.Getenv("LICENSE_ENCRYPTION_KEY"))
	if err != nil {
		return Config{}, err
	}
	cfg.LicenseKey = licenseKey

	if len(cfg.JWTSecret) < minSecretLen {
		return Config{}, fmt.Errorf("JWT_SECRET must be at least %d bytes", minSecretLen)
	}
	if len(cfg.RefreshSecret) < minSecretLen {
		return Config{}, fmt.Errorf("JWT_REFRESH_SECRET must be at least %d bytes", minSecretLen)
	}
	if cfg.JWTSecret == cfg.RefreshSecret {
		return Config{}, fmt.Errorf("JWT_SECRET and JWT_REFRESH_SECRET must differ")
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL must be set")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("REDIS_URL must be set")
	}
	if cfg.ProviderAPIKey == "" {
		return Config{}, fmt.Errorf("DEEPGRAM_API_KEY must be set")
	}

	return cfg, nil
}

func parseLicenseKey(raw string) ([]byte, error) {
	if len(raw) != 64 {
		return nil, fmt.Errorf("LICENSE_ENCRYPTION_KEY must be a 64-char hex string (32 bytes)")
	}
	key, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("LICENSE_ENCRYPTION_KEY is not valid hex: %w", err)
	}
	return key, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
