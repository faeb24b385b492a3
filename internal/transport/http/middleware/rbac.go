package middleware

import (
	"net/http"

	"github.com/baechuer/medimg-identity/internal/domain"
)

// RequireAtLeast enforces role hierarchy: ADMIN >= PROVIDER >= PATIENT.
// Assumes RequireSynced has already injected the role into context.
func RequireAtLeast(minRole domain.Role, writeErr WriteErrFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := RoleFromContext(r.Context())
			if !ok {
				// Middleware ordering issue or context missing
				writeErr(w, r, domain.ErrNotSynced())
				return
			}

			if !domain.IsValidRole(role) || !domain.IsValidRole(string(minRole)) {
				writeErr(w, r, domain.ErrForbidden())
				return
			}

			if domain.RoleRank(role) < domain.RoleRank(string(minRole)) {
				writeErr(w, r, domain.ErrInsufficientRole(string(minRole)))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
