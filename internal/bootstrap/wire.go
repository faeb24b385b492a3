package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	svix "github.com/svix/svix-webhooks/go"

	"github.com/baechuer/medimg-identity/internal/application/reconcile"
	"github.com/baechuer/medimg-identity/internal/application/webhook"
	"github.com/baechuer/medimg-identity/internal/audit"
	"github.com/baechuer/medimg-identity/internal/config"
	"github.com/baechuer/medimg-identity/internal/domain"
	"github.com/baechuer/medimg-identity/internal/infrastructure/clerk"
	"github.com/baechuer/medimg-identity/internal/infrastructure/db/postgres"
	"github.com/baechuer/medimg-identity/internal/infrastructure/memory"
	rabbitmq_pub "github.com/baechuer/medimg-identity/internal/infrastructure/messaging/rabbitmq"
	"github.com/baechuer/medimg-identity/internal/infrastructure/redis"
	"github.com/baechuer/medimg-identity/internal/infrastructure/security"
	"github.com/baechuer/medimg-identity/internal/logger"
	"github.com/baechuer/medimg-identity/internal/ratelimit"
	"github.com/baechuer/medimg-identity/internal/retry"
	http_handlers "github.com/baechuer/medimg-identity/internal/transport/http/handlers"
	"github.com/baechuer/medimg-identity/internal/transport/http/middleware"
	"github.com/baechuer/medimg-identity/internal/transport/http/response"
	"github.com/baechuer/medimg-identity/internal/transport/http/router"
)

/*
========================
 Public entry (prod)
========================
*/

func NewServer() (*http.Server, func(), error) {
	return newServer(defaultDeps())
}

// NewServerWithDeps allows injecting dependencies for testing
func NewServerWithDeps(deps Deps) (*http.Server, func(), error) {
	return newServer(deps)
}

/*
========================
 Dependency injection
========================
*/

type Deps struct {
	LoadConfig func() (*config.Config, error)

	NewDB   func(dsn string, opts config.DBOptions) (*sql.DB, error)
	Migrate func(db *sql.DB) error

	NewRedis func(addr, password string, db int) RedisClient

	NewPublisher func(rabbitURL, exchange string) (Publisher, error)

	NewRouter func(router.Deps) (http.Handler, error)

	// Provider backends. Nil means the real clients built from config.
	NewProvider func(cfg *config.Config) Provider
	NewVerifier func(cfg *config.Config) middleware.SessionVerifier
}

type RedisClient interface {
	Ping(ctx context.Context) error
	Close() error
}

// Publisher is every event the service emits.
type Publisher interface {
	PublishUserSynced(ctx context.Context, evt domain.UserSyncedEvent) error
	PublishUserDeleted(ctx context.Context, evt domain.UserDeletedEvent) error
	PublishRoleChanged(ctx context.Context, evt domain.RoleChangedEvent) error
}

// Provider is the backend API surface both flows need.
type Provider interface {
	reconcile.IdentityProvider
	reconcile.SignInGateway
}

/*
========================
 Core bootstrap logic
========================
*/

func newServer(deps Deps) (*http.Server, func(), error) {
	// 0) config
	cfg, err := deps.LoadConfig()
	if err != nil {
		return nil, nil, err
	}

	// 1) db + schema
	db, err := deps.NewDB(cfg.DatabaseURL, config.DBOptions{
		Debug:        cfg.DBDebug,
		MaxOpenConns: cfg.DBMaxOpenConns,
		MaxIdleConns: cfg.DBMaxIdleConns,
	})
	if err != nil {
		return nil, nil, err
	}
	if db == nil {
		return nil, nil, errors.New("bootstrap: NewDB returned nil")
	}

	cleanupFns := []func(){
		func() { _ = db.Close() },
	}

	if deps.Migrate != nil {
		if err := deps.Migrate(db); err != nil {
			runCleanup(cleanupFns)
			return nil, nil, err
		}
	}

	userRepo := postgres.NewUserRepo(db)

	// 2) redis (best-effort)
	var redisCli *redis.Client
	if deps.NewRedis != nil && cfg.RedisAddr != "" {
		c := deps.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := c.Ping(ctx)
		cancel()

		if err != nil {
			logger.Logger.Warn().Err(err).Msg("redis unavailable; using in-process stores")
			_ = c.Close()
		} else if rc, ok := c.(*redis.Client); ok {
			logger.Logger.Info().Msg("redis connected")
			redisCli = rc
			cleanupFns = append(cleanupFns, func() { _ = c.Close() })
		} else {
			_ = c.Close()
		}
	}

	// 3) verification sessions, delivery log, limiter
	var (
		vstore     reconcile.VerificationStore
		deliveries webhook.DeliveryLog
		webhookRL  ratelimit.Limiter
	)
	if redisCli != nil {
		vstore = redis.NewVerificationStore(redisCli)
		deliveries = redis.NewDeliveryLog(redisCli)
		webhookRL = redis.NewFixedWindowLimiter(redisCli, cfg.WebhookRLLimit, cfg.WebhookRLWindow)
	} else {
		vstore = memory.NewVerificationStore()
		deliveries = memory.NewDeliveryLog()
		webhookRL = ratelimit.NewMemory(cfg.WebhookRLLimit, cfg.WebhookRLWindow)
	}

	// 4) publisher
	var pub Publisher
	if cfg.RabbitURL == "" && cfg.Env == "dev" {
		logger.Logger.Warn().Msg("RABBIT_URL not set; using noop publisher")
		pub = memory.NewNoopPublisher()
	} else {
		p, err := deps.NewPublisher(cfg.RabbitURL, cfg.RabbitExchange)
		if err != nil {
			if cfg.Env != "dev" {
				runCleanup(cleanupFns)
				return nil, nil, err
			}
			logger.Logger.Warn().Err(err).Msg("rabbitmq unavailable; using noop publisher")
			p = memory.NewNoopPublisher()
		}
		pub = p
	}
	if c, ok := pub.(interface{ Close() error }); ok {
		cleanupFns = append(cleanupFns, func() { _ = c.Close() })
	}

	// 5) provider clients
	var provider Provider
	if deps.NewProvider != nil {
		provider = deps.NewProvider(cfg)
	} else {
		provider = clerk.NewClient(clerk.Config{
			BaseURL:   cfg.ClerkAPIURL,
			SecretKey: cfg.ClerkSecretKey,
			Timeout:   cfg.ClerkTimeout,
		})
	}

	var verifier middleware.SessionVerifier
	if deps.NewVerifier != nil {
		verifier = deps.NewVerifier(cfg)
	} else {
		logger.Logger.Info().Str("jwks_url", cfg.ClerkJWKSURL).Msg("initializing session verifier")
		verifier = security.NewSessionVerifier(cfg.ClerkJWKSURL, cfg.ClerkIssuer, cfg.ClerkSecretKey, cfg.JWKSCacheTTL, cfg.ClerkTimeout)
	}

	wh, err := svix.NewWebhook(cfg.ClerkWebhookSecret)
	if err != nil {
		runCleanup(cleanupFns)
		return nil, nil, err
	}

	// 6) services
	auditLog := audit.New(logger.Logger)
	retryCfg := retry.Config{
		MaxAttempts: cfg.SyncMaxAttempts,
		BaseDelay:   cfg.SyncBaseDelay,
		MaxDelay:    cfg.SyncMaxDelay,
	}

	reconcileSvc := reconcile.NewService(
		userRepo,
		provider,
		provider,
		vstore,
		pub,
		reconcile.Config{
			PublicBaseURL:   cfg.PublicBaseURL,
			VerificationTTL: cfg.VerificationTTL,
			Retry:           retryCfg,
		},
	).WithAudit(auditLog).WithObserver(middleware.ObserveReconcile)

	processor := webhook.NewProcessor(
		userRepo,
		provider,
		pub,
		deliveries,
		webhook.Config{Retry: retryCfg},
	).WithAudit(auditLog).WithObserver(middleware.ObserveWebhook)

	// 7) handlers + middleware
	authH := http_handlers.NewAuthHandler(reconcileSvc)
	adminH := http_handlers.NewAdminHandler(reconcileSvc)
	webhookH := http_handlers.NewWebhookHandler(processor)
	healthH := http_handlers.NewHealthHandler(db)

	authMW := middleware.Auth(verifier, response.WriteError)
	syncedMW := middleware.RequireSynced(userRepo, response.WriteError)
	adminMW := middleware.RequireAtLeast(domain.RoleAdmin, response.WriteError)

	webhookMW := []func(http.Handler) http.Handler{
		middleware.RateLimitFixedWindow(
			webhookRL,
			middleware.FixedWindowConfig{RouteKey: "webhook", Window: cfg.WebhookRLWindow},
			response.WriteError,
		),
		middleware.VerifyWebhook(wh, response.WriteError),
	}

	// 8) router
	mux, err := deps.NewRouter(router.Deps{
		Health:         healthH,
		Auth:           authH,
		Admin:          adminH,
		Webhook:        webhookH,
		AuthMW:         authMW,
		OptionalAuthMW: middleware.OptionalAuth(verifier, response.WriteError),
		SyncedMW:       syncedMW,
		AdminMW:        adminMW,
		WebhookMW:      webhookMW,
		InternalMW:     middleware.InternalAuth(cfg.InternalSecret, response.WriteError),

		TrustProxyHeaders: cfg.TrustProxyHeaders,
		AuthRateLimit:     cfg.AuthRLLimit,
		AuthRateWindow:    cfg.AuthRLWindow,
	})
	if err != nil {
		runCleanup(cleanupFns)
		return nil, nil, err
	}

	// 9) server
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	done := false
	cleanup := func() {
		if done {
			return
		}
		done = true
		runCleanup(cleanupFns)
	}

	return srv, cleanup, nil
}

/*
========================
 Default deps (prod)
========================
*/

func defaultDeps() Deps {
	return Deps{
		LoadConfig: config.Load,
		NewDB:      config.NewDB,
		Migrate:    postgres.Migrate,
		NewRedis: func(addr, password string, db int) RedisClient {
			return redis.New(addr, password, db)
		},
		NewPublisher: func(url, exchange string) (Publisher, error) {
			return rabbitmq_pub.NewPublisher(url, exchange)
		},
		NewRouter: router.New,
	}
}

/*
========================
 helpers
========================
*/

func runCleanup(fns []func()) {
	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}
