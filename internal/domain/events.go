package domain

import "time"

// Routing keys on the events exchange.
const (
	RKUserSynced      = "identity.user.synced"
	RKUserDeleted     = "identity.user.deleted"
	RKUserRoleChanged = "identity.user.role_changed"
)

type UserSyncedEvent struct {
	SubjectID  string    `json:"subject_id"`
	UserID     string    `json:"user_id"`
	Email      string    `json:"email"`
	Role       string    `json:"role"`
	Specialty  string    `json:"specialty,omitempty"`
	Source     string    `json:"source"`
	Channel    string    `json:"channel"`
	OccurredAt time.Time `json:"occurred_at"`
}

type UserDeletedEvent struct {
	SubjectID  string    `json:"subject_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

type RoleChangedEvent struct {
	SubjectID  string    `json:"subject_id"`
	OldRole    string    `json:"old_role"`
	NewRole    string    `json:"new_role"`
	Actor      string    `json:"actor"`
	OccurredAt time.Time `json:"occurred_at"`
}
