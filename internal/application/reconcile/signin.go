package reconcile

import (
	"context"
	"strings"

	"github.com/baechuer/medimg-identity/internal/domain"
	"github.com/baechuer/medimg-identity/internal/logger"
)

type SignInInput struct {
	SignInID  string
	Role      string // registration role, optional
	Specialty string
	// CallerSubject is the subject of the caller's verified session token,
	// if one was presented.
	CallerSubject string
}

// CompleteSignIn picks up a provider sign-in attempt and either reconciles
// the new session or starts a second-factor challenge. A completed sign-in
// has a session, so the caller must prove it owns it: without that, anyone
// holding the sign-in id could read the record back or get the session
// revoked.
func (s *Service) CompleteSignIn(ctx context.Context, in SignInInput) (Outcome, error) {
	signInID := strings.TrimSpace(in.SignInID)
	if signInID == "" {
		return nil, domain.ErrMissingField("sign_in_id")
	}

	si, err := s.signIns.GetSignIn(ctx, signInID)
	if err != nil {
		return nil, err
	}
	reg := Registration{Role: in.Role, Specialty: in.Specialty}

	switch si.Status {
	case domain.SignInComplete:
		caller := strings.TrimSpace(in.CallerSubject)
		if caller == "" {
			return nil, domain.ErrTokenMissing()
		}
		if caller != si.UserID {
			logger.WithCtx(ctx).Warn().
				Str("sign_in_id", signInID).
				Str("caller", caller).
				Msg("sign-in completed by another subject")
			return nil, domain.ErrSubjectMismatch()
		}
		return s.reconcile(ctx, si.UserID, si.SessionID, "sign_in", reg), nil
	case domain.SignInNeedsSecondFactor:
		return s.startSecondFactor(ctx, si, reg)
	default:
		logger.WithCtx(ctx).Info().
			Str("sign_in_id", signInID).
			Str("status", string(si.Status)).
			Msg("sign-in not ready for reconciliation")
		// no session exists yet, nothing to revoke
		return s.fail(ctx, si.UserID, "", ReasonSignInIncomplete), nil
	}
}

func (s *Service) startSecondFactor(ctx context.Context, si domain.SignIn, reg Registration) (Outcome, error) {
	factor, ok := domain.PickSecondFactor(si.SupportedSecondFactors)
	if !ok {
		logger.WithCtx(ctx).Warn().Str("sign_in_id", si.ID).Msg("no supported second factor")
		return s.fail(ctx, si.UserID, "", ReasonSignInIncomplete), nil
	}

	if factor.NeedsPreparation() {
		if err := s.signIns.PrepareSecondFactor(ctx, si.ID, factor); err != nil {
			return nil, err
		}
	}

	token, err := newOpaqueToken(32)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	vs := domain.VerificationSession{
		Token:     token,
		SignInID:  si.ID,
		Email:     si.Identifier,
		Strategy:  factor.Strategy,
		CreatedAt: now,
		ExpiresAt: now.Add(s.verificationTTL),
	}
	if role, err := domain.ParseRole(reg.Role); err == nil {
		vs.Role = role
		if role == domain.RoleProvider {
			vs.Specialty = reg.Specialty
		}
	}
	if err := s.vstore.Save(ctx, vs, s.verificationTTL); err != nil {
		return nil, err
	}

	s.observe(OutcomeNeedsVerification, "")
	return NeedsVerification{
		Strategy:          factor.Strategy,
		VerificationToken: token,
		SafeIdentifier:    factor.SafeIdentifier,
	}, nil
}

// VerifySecondFactor submits a challenge code. A wrong code keeps the
// verification session so the user can try again.
func (s *Service) VerifySecondFactor(ctx context.Context, token, code string) (Outcome, error) {
	token = strings.TrimSpace(token)
	code = strings.TrimSpace(code)
	if token == "" {
		return nil, domain.ErrMissingField("verification_token")
	}
	if code == "" {
		return nil, domain.ErrMissingField("code")
	}

	vs, err := s.vstore.Peek(ctx, token)
	if err != nil {
		return nil, err
	}

	si, err := s.signIns.AttemptSecondFactor(ctx, vs.SignInID, vs.Strategy, code)
	if err != nil {
		if domain.Is(err, "sign_in_not_found") {
			s.dropVerification(ctx, token)
			return nil, domain.ErrVerificationExpired()
		}
		return nil, err
	}

	s.dropVerification(ctx, token)
	if si.Status != domain.SignInComplete {
		return s.fail(ctx, si.UserID, si.SessionID, ReasonSignInIncomplete), nil
	}
	reg := Registration{Role: string(vs.Role), Specialty: vs.Specialty}
	return s.reconcile(ctx, si.UserID, si.SessionID, "second_factor", reg), nil
}

func (s *Service) dropVerification(ctx context.Context, token string) {
	if err := s.vstore.Delete(ctx, token); err != nil {
		logger.WithCtx(ctx).Warn().Err(err).Msg("verification session delete failed")
	}
}
