package memory

import (
	"context"
	"sync"

	"github.com/baechuer/medimg-identity/internal/domain"
	"github.com/baechuer/medimg-identity/internal/logger"
)

// NoopPublisher logs events instead of sending them. It keeps what it saw
// so tests can assert on side effects.
type NoopPublisher struct {
	mu      sync.Mutex
	Synced  []domain.UserSyncedEvent
	Deleted []domain.UserDeletedEvent
	Roles   []domain.RoleChangedEvent
}

func NewNoopPublisher() *NoopPublisher { return &NoopPublisher{} }

func (p *NoopPublisher) PublishUserSynced(ctx context.Context, evt domain.UserSyncedEvent) error {
	p.mu.Lock()
	p.Synced = append(p.Synced, evt)
	p.mu.Unlock()
	logger.WithCtx(ctx).Debug().Str("subject_id", evt.SubjectID).Str("role", evt.Role).Msg("[noop-pub] user synced")
	return nil
}

func (p *NoopPublisher) PublishUserDeleted(ctx context.Context, evt domain.UserDeletedEvent) error {
	p.mu.Lock()
	p.Deleted = append(p.Deleted, evt)
	p.mu.Unlock()
	logger.WithCtx(ctx).Debug().Str("subject_id", evt.SubjectID).Msg("[noop-pub] user deleted")
	return nil
}

func (p *NoopPublisher) PublishRoleChanged(ctx context.Context, evt domain.RoleChangedEvent) error {
	p.mu.Lock()
	p.Roles = append(p.Roles, evt)
	p.mu.Unlock()
	logger.WithCtx(ctx).Debug().Str("subject_id", evt.SubjectID).Str("new_role", evt.NewRole).Msg("[noop-pub] role changed")
	return nil
}

// Counts returns how many events of each kind were published.
func (p *NoopPublisher) Counts() (synced, deleted, roles int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Synced), len(p.Deleted), len(p.Roles)
}
