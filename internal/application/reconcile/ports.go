package reconcile

import (
	"context"
	"time"

	"github.com/baechuer/medimg-identity/internal/domain"
)

/*
UserRepo
--------
Persistence port for Local User Records.
Upsert is the only call that may create a row.
*/
type UserRepo interface {
	GetBySubject(ctx context.Context, subjectID string) (domain.User, error)
	Upsert(ctx context.Context, in domain.UserUpsert) (domain.User, error)
	Update(ctx context.Context, subjectID string, p domain.UserPatch) (domain.User, error)
	List(ctx context.Context, limit, offset int) ([]domain.User, error)
}

/*
IdentityProvider
----------------
What the reconciler needs from the provider's user and session APIs.
*/
type IdentityProvider interface {
	GetUser(ctx context.Context, subjectID string) (domain.Identity, error)
	UpdatePublicMetadata(ctx context.Context, subjectID string, meta map[string]any) error
	UpdateMetadata(ctx context.Context, subjectID string, public, unsafe map[string]any) error
	RevokeSession(ctx context.Context, sessionID string) error
}

/*
SignInGateway
-------------
The provider's sign-in attempt API, used to finish interactive sign-ins
and second-factor challenges server side.
*/
type SignInGateway interface {
	GetSignIn(ctx context.Context, signInID string) (domain.SignIn, error)
	PrepareSecondFactor(ctx context.Context, signInID string, f domain.Factor) error
	AttemptSecondFactor(ctx context.Context, signInID, strategy, code string) (domain.SignIn, error)
}

/*
VerificationStore
-----------------
Short-lived server-side record bridging a second-factor challenge and
the code submission. Peek does not consume.
*/
type VerificationStore interface {
	Save(ctx context.Context, vs domain.VerificationSession, ttl time.Duration) error
	Peek(ctx context.Context, token string) (domain.VerificationSession, error)
	Delete(ctx context.Context, token string) error
}

type EventPublisher interface {
	PublishUserSynced(ctx context.Context, evt domain.UserSyncedEvent) error
	PublishRoleChanged(ctx context.Context, evt domain.RoleChangedEvent) error
}

type AuditLogger interface {
	UserSynced(ctx context.Context, subjectID, email, role, source, channel string)
	ForcedSignOut(ctx context.Context, subjectID, sessionID, reason string)
	RoleChanged(ctx context.Context, subjectID, actor, oldRole, newRole string)
}

type nopAudit struct{}

func (nopAudit) UserSynced(context.Context, string, string, string, string, string) {}
func (nopAudit) ForcedSignOut(context.Context, string, string, string)              {}
func (nopAudit) RoleChanged(context.Context, string, string, string, string)        {}
