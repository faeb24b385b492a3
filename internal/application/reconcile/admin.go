package reconcile

import (
	"context"
	"strings"

	"github.com/baechuer/medimg-identity/internal/domain"
	"github.com/baechuer/medimg-identity/internal/logger"
)

type SetRoleInput struct {
	ActorID   string
	SubjectID string
	Role      string
	Specialty string
}

// SetRole changes a user's role. The provider metadata is rewritten first:
// the sign-up claim in unsafe metadata is cleared and public metadata gets
// the new role, so the next sign-in resolves the same role. If that write
// fails nothing changes locally.
func (s *Service) SetRole(ctx context.Context, in SetRoleInput) (domain.User, error) {
	subjectID := strings.TrimSpace(in.SubjectID)
	if subjectID == "" {
		return domain.User{}, domain.ErrMissingField("subject_id")
	}
	if strings.TrimSpace(in.Role) == "" {
		return domain.User{}, domain.ErrMissingField("role")
	}
	role, err := domain.ParseRole(in.Role)
	if err != nil {
		return domain.User{}, err
	}
	if in.ActorID != "" && in.ActorID == subjectID {
		return domain.User{}, domain.ErrCannotAffectSelf()
	}

	current, err := s.users.GetBySubject(ctx, subjectID)
	if err != nil {
		return domain.User{}, err
	}

	patch := domain.UserPatch{Role: &role}
	if specialty := strings.TrimSpace(in.Specialty); role == domain.RoleProvider && specialty != "" {
		patch.Specialty = &specialty
	}
	next := patch.Apply(current)

	if err := s.idp.UpdateMetadata(ctx, subjectID,
		domain.RoleOverride(next.Role, next.Specialty), domain.ClearedRoleMetadata()); err != nil {
		logger.WithCtx(ctx).Error().Err(err).
			Str("subject_id", subjectID).
			Str("role", string(next.Role)).
			Msg("provider role metadata update failed")
		return domain.User{}, err
	}

	updated, err := s.users.Update(ctx, subjectID, patch)
	if err != nil {
		return domain.User{}, err
	}

	if current.Role != updated.Role {
		evt := domain.RoleChangedEvent{
			SubjectID:  subjectID,
			OldRole:    string(current.Role),
			NewRole:    string(updated.Role),
			Actor:      in.ActorID,
			OccurredAt: s.now().UTC(),
		}
		if err := s.pub.PublishRoleChanged(ctx, evt); err != nil {
			logger.WithCtx(ctx).Warn().Err(err).Str("subject_id", subjectID).Msg("publish role changed failed")
		}
	}
	s.audit.RoleChanged(ctx, subjectID, in.ActorID, string(current.Role), string(updated.Role))
	return updated, nil
}

const maxPageSize = 100

func (s *Service) ListUsers(ctx context.Context, limit, offset int) ([]domain.User, error) {
	if limit <= 0 || limit > maxPageSize {
		return nil, domain.ErrInvalidField("limit", "must be between 1 and 100")
	}
	if offset < 0 {
		return nil, domain.ErrInvalidField("offset", "must not be negative")
	}
	return s.users.List(ctx, limit, offset)
}

// Lookup returns the local record for subjectID; it never contacts the provider.
func (s *Service) Lookup(ctx context.Context, subjectID string) (domain.User, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return domain.User{}, domain.ErrMissingField("subject_id")
	}
	return s.users.GetBySubject(ctx, subjectID)
}
