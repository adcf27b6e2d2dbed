package routes

import (
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/voicetype/voicetype/internal/binding"
	"github.com/voicetype/voicetype/internal/config"
	"github.com/voicetype/voicetype/internal/license"
	"github.com/voicetype/voicetype/internal/middleware"
	"github.com/voicetype/voicetype/internal/ratelimit"
	"github.com/voicetype/voicetype/internal/registration"
	"github.com/voicetype/voicetype/internal/token"
	"github.com/voicetype/voicetype/internal/transcribe"
	"github.com/voicetype/voicetype/internal/usage"
	"github.com/voicetype/voicetype/internal/user"
)

// Deps aggregates shared dependencies required to wire routes. Provider may
// be pre-set by tests; when nil the Deepgram client is built from config.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	Cache    *redis.Client
	Logger   *slog.Logger
	Provider transcribe.Provider
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// License uniqueness and quota enforcement both live in Redis; the
	// service cannot run correctly without it.
	if d.Cache == nil {
		return fmt.Errorf("redis is required")
	}

	codec, err := license.NewCodec(d.Cfg.LicenseKey)
	if err != nil {
		return err
	}
	tokens := token.NewService(d.Cfg.JWTSecret, d.Cfg.RefreshSecret, d.Cfg.AccessTokenTTL, d.Cfg.RefreshTokenTTL)

	var userRepo user.Repository
	if d.DB != nil {
		userRepo = user.NewPostgresRepository(d.DB)
	} else {
		userRepo = user.NewMemoryRepository()
	}
	bindings := binding.NewRedisStore(d.Cache)
	limiter := ratelimit.NewLimiter(d.Cache, d.Cfg.RateLimitWindow)
	recorder := usage.NewRecorder(d.Cache)

	provider := d.Provider
	if provider == nil {
		provider = transcribe.NewDeepgramClient(transcribe.DeepgramConfig{
			URL:      d.Cfg.ProviderURL,
			APIKey:   d.Cfg.ProviderAPIKey,
			Model:    d.Cfg.ProviderModel,
			Language: d.Cfg.ProviderLanguage,
			Timeout:  d.Cfg.ProviderTimeout,
		})
	}

	registrationSvc := registration.NewService(codec, tokens, userRepo, bindings, d.Cfg.StoreTimeout)
	registrationHandler := registration.NewHandler(registrationSvc, d.Logger)

	gateSvc := transcribe.NewService(limiter, provider, recorder, d.Logger, d.Cfg.StoreTimeout)
	gateHandler := transcribe.NewHandler(gateSvc, d.Logger)

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))

	RegisterHealthRoutes(app, d)

	// The desktop client's contract fixes these paths at the root.
	app.Post("/register", registrationHandler.Register)
	RegisterAuthRoutes(app, tokens, userRepo)

	authmw := middleware.BearerAuth(tokens)
	app.Post("/transcribe", authmw, gateHandler.Transcribe)
	RegisterUsageRoute(app.Group("", authmw), limiter, recorder, d.Logger)

	return nil
}
