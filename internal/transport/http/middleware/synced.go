package middleware

import (
	"context"
	"net/http"

	"github.com/baechuer/medimg-identity/internal/domain"
)

type LocalUserReader interface {
	GetBySubject(ctx context.Context, subjectID string) (domain.User, error)
}

// RequireSynced is the route guard for pages that need a reconciled user.
// A signed-in subject without an active local record is sent back to sync.
// Must run after Auth.
func RequireSynced(users LocalUserReader, writeErr WriteErrFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, ok := SubjectFromContext(r.Context())
			if !ok {
				writeErr(w, r, domain.ErrTokenInvalid())
				return
			}

			u, err := users.GetBySubject(r.Context(), subject)
			if err != nil {
				if domain.KindOf(err) == domain.KindNotFound {
					writeErr(w, r, domain.ErrNotSynced())
					return
				}
				writeErr(w, r, err)
				return
			}
			if !u.IsActive {
				writeErr(w, r, domain.ErrAccountInactive())
				return
			}
			if !domain.IsValidRole(string(u.Role)) {
				writeErr(w, r, domain.ErrNotSynced())
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
		})
	}
}
