package reconcile

import (
	"context"
	"strings"

	"github.com/baechuer/medimg-identity/internal/domain"
)

type SyncInput struct {
	SubjectID string
	SessionID string
	Role      string
	Specialty string
}

type SyncResult struct {
	Success bool
	Message string
	User    *domain.User
	Outcome Outcome
}

// Sync is the explicit reconciliation call made by a signed-in client,
// typically right after sign-up while the webhook may still be in flight.
func (s *Service) Sync(ctx context.Context, in SyncInput) (SyncResult, error) {
	subjectID := strings.TrimSpace(in.SubjectID)
	if subjectID == "" {
		return SyncResult{}, domain.ErrMissingField("subject_id")
	}

	out := s.reconcile(ctx, subjectID, in.SessionID, "sync", Registration{Role: in.Role, Specialty: in.Specialty})
	switch o := out.(type) {
	case Authenticated:
		u := o.User
		return SyncResult{Success: true, Message: "user synchronized", User: &u, Outcome: o}, nil
	case Failed:
		return SyncResult{Success: false, Message: o.Reason.Message(), Outcome: o}, nil
	default:
		return SyncResult{}, domain.ErrInternal(nil)
	}
}
