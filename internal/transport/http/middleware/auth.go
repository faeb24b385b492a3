package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/baechuer/medimg-identity/internal/domain"
)

type SessionVerifier interface {
	Verify(ctx context.Context, token string) (domain.SessionClaims, error)
}

type WriteErrFunc func(http.ResponseWriter, *http.Request, error)

// Auth verifies Authorization: Bearer <provider session token> and injects
// the subject and session id into request context.
func Auth(verifier SessionVerifier, writeErr WriteErrFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if h == "" {
				writeErr(w, r, domain.ErrTokenMissing())
				return
			}
			claims, err := verifyBearer(r.Context(), verifier, h)
			if err != nil {
				writeErr(w, r, err)
				return
			}

			ctx := WithSession(r.Context(), claims.Subject, claims.SessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth is Auth for routes that also serve callers without a
// session yet. No header passes through untouched; a header that is present
// must verify.
func OptionalAuth(verifier SessionVerifier, writeErr WriteErrFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if h == "" {
				next.ServeHTTP(w, r)
				return
			}
			claims, err := verifyBearer(r.Context(), verifier, h)
			if err != nil {
				writeErr(w, r, err)
				return
			}

			ctx := WithSession(r.Context(), claims.Subject, claims.SessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func verifyBearer(ctx context.Context, verifier SessionVerifier, header string) (domain.SessionClaims, error) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return domain.SessionClaims{}, domain.ErrTokenInvalid()
	}

	raw := strings.TrimSpace(parts[1])
	if raw == "" {
		return domain.SessionClaims{}, domain.ErrTokenInvalid()
	}

	claims, err := verifier.Verify(ctx, raw)
	if err != nil {
		return domain.SessionClaims{}, err
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return domain.SessionClaims{}, domain.ErrTokenInvalid()
	}
	return claims, nil
}
