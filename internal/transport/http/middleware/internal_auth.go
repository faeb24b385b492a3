package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/baechuer/medimg-identity/internal/domain"
)

const HeaderInternalSecret = "X-Internal-Secret"

// InternalAuth guards service-to-service routes with a shared secret.
// An empty secret disables the routes entirely.
func InternalAuth(secret string, writeErr WriteErrFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				writeErr(w, r, domain.ErrForbidden())
				return
			}

			got := r.Header.Get(HeaderInternalSecret)
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				writeErr(w, r, domain.ErrTokenInvalid())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
