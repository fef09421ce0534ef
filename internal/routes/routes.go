package routes

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/congo-pay/minipay/internal/accounts"
	"github.com/congo-pay/minipay/internal/auth"
	"github.com/congo-pay/minipay/internal/config"
	"github.com/congo-pay/minipay/internal/funding"
	"github.com/congo-pay/minipay/internal/metrics"
	"github.com/congo-pay/minipay/internal/middleware"
	"github.com/congo-pay/minipay/internal/notification"
	"github.com/congo-pay/minipay/internal/payments"
	"github.com/congo-pay/minipay/internal/response"
	"github.com/congo-pay/minipay/internal/store"
	"github.com/congo-pay/minipay/internal/validation"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger

	// Store defaults to Postgres over DB, or the in-memory store in
	// development when DB is nil.
	Store   store.Store
	Metrics *metrics.Metrics
	// APIKeyHash is the bcrypt hash of Cfg.APIKey; computed when empty.
	APIKeyHash []byte
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though config also checks.
	if !d.Cfg.IsDevelopment() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Store == nil {
		if d.DB != nil {
			d.Store = store.NewPostgres(d.DB, d.Cfg.TxMaxRetries, d.Logger)
		} else {
			d.Logger.Warn("no database configured, using in-memory store")
			d.Store = store.NewMemory()
		}
	}
	if len(d.APIKeyHash) == 0 {
		if d.Cfg.APIKey == "" {
			d.Logger.Warn("API_KEY is empty, account creation is disabled")
		}
		hash, err := middleware.HashAPIKey(d.Cfg.APIKey, bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash api key: %w", err)
		}
		d.APIKeyHash = hash
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(cors.New(cors.Config{
		AllowOrigins: d.Cfg.CORSAllowOrigins,
		AllowHeaders: strings.Join([]string{
			fiber.HeaderOrigin,
			fiber.HeaderContentType,
			fiber.HeaderAccept,
			fiber.HeaderAuthorization,
			"Idempotency-Key",
		}, ", "),
	}))
	app.Use(middleware.Audit(d.Logger))
	app.Use(middleware.Metrics(d.Metrics))

	// Health and metrics
	RegisterHealthRoutes(app, d)

	// Services and handlers
	var notifier notification.Notifier = notification.NewLoggerNotifier(d.Logger)
	if d.Cache != nil {
		notifier = notification.NewRedisNotifier(d.Cache, notification.DefaultChannel)
	}
	accountSvc := accounts.NewService(d.Store, d.Logger)
	secret := d.Cfg.JWTSecret
	if secret == "" {
		d.Logger.Warn("JWT_SECRET is empty, tokens are signed with an ephemeral secret")
		secret = uuid.NewString()
	}
	tokens := auth.NewService(secret, d.Cfg.AccessTokenTTL, d.Cfg.RefreshTokenTTL, accountSvc)
	engine := payments.NewEngine(d.Store, notifier, d.Metrics, d.Logger)
	v := validation.New()

	accountHandler := accounts.NewHandler(accountSvc, tokens)
	authHandler := auth.NewHandler(tokens)
	fundingHandler := funding.NewHandler(engine)
	paymentHandler := payments.NewHandler(engine)

	api := app.Group("/v1")

	// Public routes. /user/create must be registered before the /user group
	// so the bearer check never runs for it.
	RegisterAccountRoutes(api, accountHandler, v,
		middleware.APIKey(d.APIKeyHash),
		middleware.CreateAccountRateLimit(d.Cache, d.Cfg.CreateAccountRatePerMin),
	)
	RegisterAuthRoutes(api, authHandler, v)

	// Protected routes
	protected := api.Group("/user", middleware.RequirePrincipal(tokens))
	if d.Cache != nil {
		protected.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	RegisterFundingRoutes(protected, fundingHandler, v)
	RegisterPaymentRoutes(protected, paymentHandler, v)

	app.Use(response.NotFound)

	return nil
}
