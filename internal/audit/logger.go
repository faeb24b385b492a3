package audit

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	appCtx "github.com/baechuer/medimg-identity/internal/pkg/context"
)

// Logger provides structured audit logging for identity lifecycle events
type Logger struct {
	log zerolog.Logger
}

// New creates a new audit logger
func New(log zerolog.Logger) *Logger {
	return &Logger{
		log: log.With().Bool("audit", true).Logger(),
	}
}

// UserSynced logs a successful reconciliation of a local record
func (l *Logger) UserSynced(ctx context.Context, subjectID, email, role, source, channel string) {
	l.log.Info().
		Str("action", "user_synced").
		Str("subject_id", subjectID).
		Str("email", maskEmail(email)).
		Str("role", role).
		Str("role_source", source).
		Str("channel", channel).
		Str("request_id", appCtx.GetRequestID(ctx)).
		Msg("Local user record reconciled")
}

// ForcedSignOut logs a fail-closed reconciliation
func (l *Logger) ForcedSignOut(ctx context.Context, subjectID, sessionID, reason string) {
	l.log.Warn().
		Str("action", "forced_sign_out").
		Str("subject_id", subjectID).
		Str("session_id", sessionID).
		Str("reason", reason).
		Str("request_id", appCtx.GetRequestID(ctx)).
		Msg("Session signed out after failed reconciliation")
}

// UserDeleted logs removal of local records for a subject
func (l *Logger) UserDeleted(ctx context.Context, subjectID string, rows int64) {
	l.log.Warn().
		Str("action", "user_deleted").
		Str("subject_id", subjectID).
		Int64("rows", rows).
		Str("request_id", appCtx.GetRequestID(ctx)).
		Msg("Local user records deleted")
}

// RoleChanged logs when a user's role is changed
func (l *Logger) RoleChanged(ctx context.Context, subjectID, actor, oldRole, newRole string) {
	l.log.Warn().
		Str("action", "role_changed").
		Str("subject_id", subjectID).
		Str("actor", actor).
		Str("old_role", oldRole).
		Str("new_role", newRole).
		Str("request_id", appCtx.GetRequestID(ctx)).
		Msg("User role changed")
}

// FactorChanged logs a second-factor enrollment change reported by the provider
func (l *Logger) FactorChanged(ctx context.Context, subjectID, eventType string) {
	l.log.Info().
		Str("action", "factor_changed").
		Str("subject_id", subjectID).
		Str("event_type", eventType).
		Str("request_id", appCtx.GetRequestID(ctx)).
		Msg("Second factor changed")
}

// maskEmail partially masks email for privacy in logs
func maskEmail(email string) string {
	if len(email) < 5 {
		return "***"
	}
	at := strings.IndexByte(email, '@')
	if at < 0 {
		return email[:2] + "***"
	}
	if at < 2 {
		return email[:1] + "***" + email[at:]
	}
	return email[:2] + "***" + email[at:]
}
