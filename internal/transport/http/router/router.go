package router

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/baechuer/medimg-identity/internal/domain"
	"github.com/baechuer/medimg-identity/internal/transport/http/middleware"
	"github.com/baechuer/medimg-identity/internal/transport/http/response"
)

type HealthHandler interface {
	Healthz(w http.ResponseWriter, r *http.Request)
	Readyz(w http.ResponseWriter, r *http.Request)
}

type AuthHandler interface {
	Sync(w http.ResponseWriter, r *http.Request)
	CompleteSignIn(w http.ResponseWriter, r *http.Request)
	VerifySecondFactor(w http.ResponseWriter, r *http.Request)
	Me(w http.ResponseWriter, r *http.Request)
}

type AdminHandler interface {
	ListUsers(w http.ResponseWriter, r *http.Request)
	SetRole(w http.ResponseWriter, r *http.Request)
	InternalGetUser(w http.ResponseWriter, r *http.Request)
}

type WebhookHandler interface {
	Clerk(w http.ResponseWriter, r *http.Request)
}

type Deps struct {
	Health  HealthHandler
	Auth    AuthHandler
	Admin   AdminHandler
	Webhook WebhookHandler

	// AuthMW verifies the session token; SyncedMW loads the local record.
	// OptionalAuthMW verifies a token only when one is sent.
	AuthMW         func(http.Handler) http.Handler
	OptionalAuthMW func(http.Handler) http.Handler
	SyncedMW       func(http.Handler) http.Handler
	AdminMW        func(http.Handler) http.Handler
	// WebhookMW is the signature check plus the fixed-window limiter.
	WebhookMW  []func(http.Handler) http.Handler
	InternalMW func(http.Handler) http.Handler

	// TrustProxyHeaders takes the client address from X-Real-IP and
	// X-Forwarded-For. Only safe behind an ingress that overwrites them.
	TrustProxyHeaders bool

	// Coarse per-IP limit on /auth. Zero disables it.
	AuthRateLimit  int
	AuthRateWindow time.Duration
}

func New(deps Deps) (http.Handler, error) {
	if deps.Health == nil {
		return nil, fmt.Errorf("nil Health handler")
	}
	if deps.Auth == nil {
		return nil, fmt.Errorf("nil Auth handler")
	}
	if deps.Admin == nil {
		return nil, fmt.Errorf("nil Admin handler")
	}
	if deps.Webhook == nil {
		return nil, fmt.Errorf("nil Webhook handler")
	}
	if deps.AuthMW == nil {
		return nil, fmt.Errorf("nil Auth middleware")
	}
	if deps.OptionalAuthMW == nil {
		return nil, fmt.Errorf("nil OptionalAuth middleware")
	}
	if deps.SyncedMW == nil {
		return nil, fmt.Errorf("nil Synced middleware")
	}
	if deps.AdminMW == nil {
		return nil, fmt.Errorf("nil Admin middleware")
	}
	if deps.InternalMW == nil {
		return nil, fmt.Errorf("nil Internal middleware")
	}
	if len(deps.WebhookMW) == 0 {
		return nil, fmt.Errorf("nil Webhook middleware")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if deps.TrustProxyHeaders {
		r.Use(chimw.RealIP)
	}
	r.Use(chimw.Recoverer)
	r.Use(middleware.Metrics)

	r.Get("/healthz", deps.Health.Healthz)
	r.Get("/readyz", deps.Health.Readyz)
	r.Handle("/metrics", promhttp.Handler())

	r.With(deps.WebhookMW...).Post("/webhooks/clerk", deps.Webhook.Clerk)

	r.Route("/auth", func(r chi.Router) {
		if deps.AuthRateLimit > 0 {
			r.Use(httprate.Limit(
				deps.AuthRateLimit,
				deps.AuthRateWindow,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					middleware.RateLimitedTotal.WithLabelValues("auth").Inc()
					response.WriteError(w, r, domain.ErrRateLimited("auth"))
				}),
			))
		}

		r.With(deps.OptionalAuthMW).Post("/sign-in/complete", deps.Auth.CompleteSignIn)
		r.Post("/sign-in/verify", deps.Auth.VerifySecondFactor)

		r.Group(func(r chi.Router) {
			r.Use(deps.AuthMW)
			r.Post("/sync/{subjectId}", deps.Auth.Sync)
			r.With(deps.SyncedMW).Get("/me", deps.Auth.Me)
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(deps.AuthMW)
		r.Use(deps.SyncedMW)
		r.Use(deps.AdminMW)

		r.Get("/users", deps.Admin.ListUsers)
		r.Patch("/users/{subjectId}/role", deps.Admin.SetRole)
	})

	r.Route("/internal", func(r chi.Router) {
		r.Use(deps.InternalMW)
		r.Get("/users/{subjectId}", deps.Admin.InternalGetUser)
	})

	return r, nil
}
