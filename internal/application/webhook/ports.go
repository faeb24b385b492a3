package webhook

import (
	"context"
	"time"

	"github.com/baechuer/medimg-identity/internal/domain"
)

type UserRepo interface {
	GetBySubject(ctx context.Context, subjectID string) (domain.User, error)
	Upsert(ctx context.Context, in domain.UserUpsert) (domain.User, error)
	Update(ctx context.Context, subjectID string, p domain.UserPatch) (domain.User, error)
	DeleteBySubject(ctx context.Context, subjectID string) (int64, error)
}

// MetadataWriter echoes resolved roles back to the provider.
type MetadataWriter interface {
	UpdatePublicMetadata(ctx context.Context, subjectID string, meta map[string]any) error
}

type EventPublisher interface {
	PublishUserSynced(ctx context.Context, evt domain.UserSyncedEvent) error
	PublishUserDeleted(ctx context.Context, evt domain.UserDeletedEvent) error
}

// DeliveryLog remembers delivery ids that were fully processed.
type DeliveryLog interface {
	Seen(ctx context.Context, id string) (bool, error)
	Mark(ctx context.Context, id string, ttl time.Duration) error
}

type AuditLogger interface {
	UserSynced(ctx context.Context, subjectID, email, role, source, channel string)
	UserDeleted(ctx context.Context, subjectID string, rows int64)
	FactorChanged(ctx context.Context, subjectID, eventType string)
}

type nopAudit struct{}

func (nopAudit) UserSynced(context.Context, string, string, string, string, string) {}
func (nopAudit) UserDeleted(context.Context, string, int64)                         {}
func (nopAudit) FactorChanged(context.Context, string, string)                      {}
