package reconcile

import (
	"context"

	"github.com/baechuer/medimg-identity/internal/domain"
	"github.com/baechuer/medimg-identity/internal/logger"
)

// Role sources, in resolution order.
const (
	SourceUnsafeMetadata = "unsafe_metadata"
	SourcePublicMetadata = "public_metadata"
	SourceLocalRecord    = "local_record"
	SourceRegistration   = "registration"
)

// Registration is the role a caller chose at sign-up, if any.
type Registration struct {
	Role      string
	Specialty string
}

type ResolveInput struct {
	Identity     domain.Identity
	Registration Registration
}

type Resolution struct {
	Role      domain.Role
	Specialty string
	Source    string
}

// RoleResolver is one strategy for finding a subject's role. ok=false means
// this strategy has no answer and the next one should be tried.
type RoleResolver interface {
	Name() string
	Resolve(ctx context.Context, in ResolveInput) (Resolution, bool, error)
}

// DefaultResolvers returns the chain used by interactive reconciliation.
// None of them invents a role.
func DefaultResolvers(users UserRepo) []RoleResolver {
	return []RoleResolver{
		metadataResolver{source: SourceUnsafeMetadata, bag: func(id domain.Identity) map[string]any { return id.UnsafeMetadata }, selfServiceOnly: true},
		metadataResolver{source: SourcePublicMetadata, bag: func(id domain.Identity) map[string]any { return id.PublicMetadata }},
		localRecordResolver{users: users},
		registrationResolver{},
	}
}

// metadataResolver reads one metadata bag. Client-writable bags are
// selfServiceOnly: a privileged role found there is ignored.
type metadataResolver struct {
	source          string
	bag             func(domain.Identity) map[string]any
	selfServiceOnly bool
}

func (r metadataResolver) Name() string { return r.source }

func (r metadataResolver) Resolve(ctx context.Context, in ResolveInput) (Resolution, bool, error) {
	claim := domain.ParseRoleClaim(r.bag(in.Identity))
	switch claim.Kind {
	case domain.ClaimValid:
		if r.selfServiceOnly && !domain.IsSelfServiceRole(claim.Role) {
			logger.WithCtx(ctx).Warn().
				Str("subject_id", in.Identity.SubjectID).
				Str("source", r.source).
				Str("role", string(claim.Role)).
				Msg("ignoring privileged role in client-writable metadata")
			return Resolution{}, false, nil
		}
		return Resolution{Role: claim.Role, Specialty: claim.Specialty, Source: r.source}, true, nil
	case domain.ClaimInvalid:
		logger.WithCtx(ctx).Warn().
			Str("subject_id", in.Identity.SubjectID).
			Str("source", r.source).
			Str("raw_role", claim.Raw).
			Msg("ignoring unsupported role in provider metadata")
	}
	return Resolution{}, false, nil
}

type localRecordResolver struct {
	users UserRepo
}

func (localRecordResolver) Name() string { return SourceLocalRecord }

func (r localRecordResolver) Resolve(ctx context.Context, in ResolveInput) (Resolution, bool, error) {
	u, err := r.users.GetBySubject(ctx, in.Identity.SubjectID)
	if err != nil {
		if domain.KindOf(err) == domain.KindNotFound {
			return Resolution{}, false, nil
		}
		return Resolution{}, false, err
	}
	if !domain.IsValidRole(string(u.Role)) {
		return Resolution{}, false, nil
	}
	return Resolution{Role: u.Role, Specialty: u.Specialty, Source: SourceLocalRecord}, true, nil
}

type registrationResolver struct{}

func (registrationResolver) Name() string { return SourceRegistration }

func (registrationResolver) Resolve(ctx context.Context, in ResolveInput) (Resolution, bool, error) {
	if in.Registration.Role == "" {
		return Resolution{}, false, nil
	}
	role, err := domain.ParseSelfServiceRole(in.Registration.Role)
	if err != nil {
		logger.WithCtx(ctx).Warn().Err(err).
			Str("subject_id", in.Identity.SubjectID).
			Str("raw_role", in.Registration.Role).
			Msg("ignoring registration role")
		return Resolution{}, false, nil
	}
	specialty := ""
	if role == domain.RoleProvider {
		specialty = in.Registration.Specialty
	}
	return Resolution{Role: role, Specialty: specialty, Source: SourceRegistration}, true, nil
}

// resolveRole walks the chain until a strategy answers. Resolver errors are
// logged and the next strategy is tried.
func resolveRole(ctx context.Context, chain []RoleResolver, in ResolveInput) (Resolution, bool) {
	for _, r := range chain {
		res, ok, err := r.Resolve(ctx, in)
		if err != nil {
			logger.WithCtx(ctx).Warn().Err(err).
				Str("subject_id", in.Identity.SubjectID).
				Str("resolver", r.Name()).
				Msg("role resolver failed")
			continue
		}
		if ok {
			return res, true
		}
	}
	return Resolution{}, false
}
