package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	//App
	Env           string // dev / staging / prod
	PublicBaseURL string // where dashboards live; redirect targets are built from it

	//HTTP
	HTTPAddr          string
	TrustProxyHeaders bool // take client addresses from X-Real-IP / X-Forwarded-For
	HTTPReadTimeout   time.Duration
	HTTPWriteTimeout  time.Duration
	HTTPIdleTimeout   time.Duration

	// Identity provider
	ClerkSecretKey     string
	ClerkWebhookSecret string
	ClerkAPIURL        string
	ClerkJWKSURL       string
	ClerkIssuer        string
	ClerkTimeout       time.Duration
	JWKSCacheTTL       time.Duration

	// Infrastructure
	DatabaseURL    string
	DBDebug        bool
	DBMaxOpenConns int
	DBMaxIdleConns int
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RabbitURL      string
	RabbitExchange string
	InternalSecret string

	// Reconciliation
	VerificationTTL time.Duration
	SyncMaxAttempts int
	SyncBaseDelay   time.Duration
	SyncMaxDelay    time.Duration

	// Rate limits
	WebhookRLLimit  int
	WebhookRLWindow time.Duration
	AuthRLLimit     int
	AuthRLWindow    time.Duration
}

// MaxSyncAttempts is the hard cap on backend write attempts per reconciliation.
const MaxSyncAttempts = 3

func Load() (*Config, error) {
	// .env is a convenience for local runs; real deployments inject env vars.
	_ = godotenv.Load()

	cfg := &Config{
		Env:            getEnv("ENV", "dev"),
		HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
		ClerkAPIURL:    strings.TrimRight(getEnv("CLERK_API_URL", "https://api.clerk.com/v1"), "/"),
		ClerkIssuer:    os.Getenv("CLERK_ISSUER"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RabbitURL:      os.Getenv("RABBIT_URL"),
		RabbitExchange: getEnv("RABBIT_EXCHANGE", "medimg.events"),
		InternalSecret: os.Getenv("INTERNAL_SECRET"),
		DBDebug:        os.Getenv("DB_DEBUG") == "true",
	}
	cfg.TrustProxyHeaders = os.Getenv("TRUST_PROXY_HEADERS") == "true"

	// required values
	// Without the secret key nothing can be reconciled, including webhooks: fail at startup.
	cfg.ClerkSecretKey = os.Getenv("CLERK_SECRET_KEY")
	if cfg.ClerkSecretKey == "" {
		return nil, fmt.Errorf("missing required env var: CLERK_SECRET_KEY")
	}

	cfg.ClerkWebhookSecret = os.Getenv("CLERK_WEBHOOK_SECRET")
	if cfg.ClerkWebhookSecret == "" {
		return nil, fmt.Errorf("missing required env var: CLERK_WEBHOOK_SECRET")
	}
	if !strings.HasPrefix(cfg.ClerkWebhookSecret, "whsec_") {
		return nil, fmt.Errorf("CLERK_WEBHOOK_SECRET must start with `whsec_`")
	}

	cfg.PublicBaseURL = strings.TrimRight(os.Getenv("PUBLIC_BASE_URL"), "/")
	if cfg.PublicBaseURL == "" {
		return nil, fmt.Errorf("missing required env var: PUBLIC_BASE_URL")
	}
	if u, err := url.Parse(cfg.PublicBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("PUBLIC_BASE_URL must be an absolute URL: %q", cfg.PublicBaseURL)
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("missing required env var: DATABASE_URL")
	}
	if !strings.HasPrefix(cfg.DatabaseURL, "postgres://") && !strings.HasPrefix(cfg.DatabaseURL, "postgresql://") {
		return nil, fmt.Errorf("DATABASE_URL must be a postgres URL")
	}

	cfg.ClerkJWKSURL = getEnv("CLERK_JWKS_URL", cfg.ClerkAPIURL+"/jwks")

	var err error
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.DBMaxOpenConns, err = getInt("DB_MAX_OPEN_CONNS", 20); err != nil {
		return nil, err
	}
	if cfg.DBMaxIdleConns, err = getInt("DB_MAX_IDLE_CONNS", 10); err != nil {
		return nil, err
	}

	// optional with defaults
	if cfg.ClerkTimeout, err = getDuration("CLERK_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.JWKSCacheTTL, err = getDuration("JWKS_CACHE_TTL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.VerificationTTL, err = getDuration("VERIFICATION_TTL", 10*time.Minute); err != nil {
		return nil, err
	}

	if cfg.SyncMaxAttempts, err = getInt("SYNC_MAX_ATTEMPTS", MaxSyncAttempts); err != nil {
		return nil, err
	}
	if cfg.SyncMaxAttempts < 1 {
		cfg.SyncMaxAttempts = 1
	}
	if cfg.SyncMaxAttempts > MaxSyncAttempts {
		cfg.SyncMaxAttempts = MaxSyncAttempts
	}
	if cfg.SyncBaseDelay, err = getDuration("SYNC_BASE_DELAY", 500*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.SyncMaxDelay, err = getDuration("SYNC_MAX_DELAY", 4*time.Second); err != nil {
		return nil, err
	}

	if cfg.WebhookRLLimit, err = getInt("WEBHOOK_RL_LIMIT", 100); err != nil {
		return nil, err
	}
	if cfg.WebhookRLWindow, err = getDuration("WEBHOOK_RL_WINDOW", time.Minute); err != nil {
		return nil, err
	}
	if cfg.AuthRLLimit, err = getInt("AUTH_RL_LIMIT", 60); err != nil {
		return nil, err
	}
	if cfg.AuthRLWindow, err = getDuration("AUTH_RL_WINDOW", time.Minute); err != nil {
		return nil, err
	}
	if cfg.WebhookRLLimit <= 0 || cfg.AuthRLLimit <= 0 {
		return nil, fmt.Errorf("rate limits must be positive")
	}

	//Timeout values are optional and have a default value if not
	if cfg.HTTPReadTimeout, err = getDuration("HTTP_READ_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.HTTPWriteTimeout, err = getDuration("HTTP_WRITE_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.HTTPIdleTimeout, err = getDuration("HTTP_IDLE_TIMEOUT", time.Minute); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %q: %w", key, v, err)
	}
	return d, nil
}

func getInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid int for %s: %q: %w", key, v, err)
	}
	return n, nil
}
