package dto

import (
	"time"

	"github.com/baechuer/medimg-identity/internal/application/reconcile"
	"github.com/baechuer/medimg-identity/internal/domain"
)

type UserView struct {
	ID          string     `json:"id"`
	SubjectID   string     `json:"subject_id"`
	Email       string     `json:"email"`
	FirstName   string     `json:"first_name,omitempty"`
	LastName    string     `json:"last_name,omitempty"`
	Role        string     `json:"role"`
	Specialty   string     `json:"specialty,omitempty"`
	IsActive    bool       `json:"is_active"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func NewUserView(u domain.User) UserView {
	return UserView{
		ID:          u.ID,
		SubjectID:   u.ClerkID,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Role:        string(u.Role),
		Specialty:   u.Specialty,
		IsActive:    u.IsActive,
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
	}
}

func userViewPtr(u *domain.User) *UserView {
	if u == nil {
		return nil
	}
	v := NewUserView(*u)
	return &v
}

// SyncResponse is the body of POST /auth/sync and of webhook acknowledgements.
type SyncResponse struct {
	Success bool      `json:"success"`
	Message string    `json:"message"`
	User    *UserView `json:"user,omitempty"`
	Reason  string    `json:"reason,omitempty"`
	SignOut bool      `json:"sign_out,omitempty"`
}

func NewSyncResponse(success bool, msg string, u *domain.User) SyncResponse {
	return SyncResponse{Success: success, Message: msg, User: userViewPtr(u)}
}

// NewSyncResultResponse adds the failure reason when reconciliation failed.
func NewSyncResultResponse(res reconcile.SyncResult) SyncResponse {
	out := NewSyncResponse(res.Success, res.Message, res.User)
	if f, ok := res.Outcome.(reconcile.Failed); ok {
		out.Reason = string(f.Reason)
		out.SignOut = f.SignOut
	}
	return out
}

// OutcomeResponse flattens a reconcile.Outcome; unused fields are omitted.
type OutcomeResponse struct {
	Outcome string `json:"outcome"`

	Role           string    `json:"role,omitempty"`
	RedirectTarget string    `json:"redirect_target,omitempty"`
	User           *UserView `json:"user,omitempty"`

	Strategy          string `json:"strategy,omitempty"`
	VerificationToken string `json:"verification_token,omitempty"`
	SafeIdentifier    string `json:"safe_identifier,omitempty"`

	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
	SignOut bool   `json:"sign_out,omitempty"`
}

func NewOutcomeResponse(o reconcile.Outcome) OutcomeResponse {
	switch v := o.(type) {
	case reconcile.Authenticated:
		u := v.User
		return OutcomeResponse{
			Outcome:        v.Kind(),
			Role:           string(v.Role),
			RedirectTarget: v.RedirectTarget,
			User:           userViewPtr(&u),
		}
	case reconcile.NeedsVerification:
		return OutcomeResponse{
			Outcome:           v.Kind(),
			Strategy:          v.Strategy,
			VerificationToken: v.VerificationToken,
			SafeIdentifier:    v.SafeIdentifier,
		}
	case reconcile.Failed:
		return OutcomeResponse{
			Outcome: v.Kind(),
			Reason:  string(v.Reason),
			Message: v.Reason.Message(),
			SignOut: v.SignOut,
		}
	default:
		return OutcomeResponse{Outcome: reconcile.OutcomeFailed, Reason: string(reconcile.ReasonIdentityInvalid), SignOut: true}
	}
}

type UserListResponse struct {
	Users  []UserView `json:"users"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

func NewUserListResponse(users []domain.User, limit, offset int) UserListResponse {
	out := UserListResponse{Users: make([]UserView, 0, len(users)), Limit: limit, Offset: offset}
	for _, u := range users {
		out.Users = append(out.Users, NewUserView(u))
	}
	return out
}

// UserStatusResponse is the narrow view served to other services.
type UserStatusResponse struct {
	SubjectID string `json:"subject_id"`
	Role      string `json:"role"`
	IsActive  bool   `json:"is_active"`
}
