package middleware

import (
	"context"

	"github.com/baechuer/medimg-identity/internal/domain"
)

type ctxKey string

const (
	ctxSubject   ctxKey = "subject_id"
	ctxSessionID ctxKey = "session_id"
	ctxRole      ctxKey = "role"
	ctxUser      ctxKey = "user"
)

func WithSession(ctx context.Context, subjectID, sessionID string) context.Context {
	ctx = context.WithValue(ctx, ctxSubject, subjectID)
	ctx = context.WithValue(ctx, ctxSessionID, sessionID)
	return ctx
}

func WithUser(ctx context.Context, u domain.User) context.Context {
	ctx = context.WithValue(ctx, ctxUser, u)
	ctx = context.WithValue(ctx, ctxRole, string(u.Role))
	return ctx
}

func SubjectFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxSubject).(string)
	return v, ok && v != ""
}

func SessionIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxSessionID).(string)
	return v
}

func RoleFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxRole).(string)
	return v, ok && v != ""
}

// UserFromContext returns the local record loaded by RequireSynced.
func UserFromContext(ctx context.Context) (domain.User, bool) {
	u, ok := ctx.Value(ctxUser).(domain.User)
	return u, ok
}
