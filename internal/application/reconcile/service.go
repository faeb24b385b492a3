package reconcile

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"strings"
	"time"

	"github.com/baechuer/medimg-identity/internal/domain"
	"github.com/baechuer/medimg-identity/internal/logger"
	"github.com/baechuer/medimg-identity/internal/retry"
)

type Service struct {
	users   UserRepo
	idp     IdentityProvider
	signIns SignInGateway
	vstore  VerificationStore
	pub     EventPublisher

	resolvers []RoleResolver
	audit     AuditLogger
	observe   func(outcome, reason string)
	now       func() time.Time

	publicBaseURL   string // e.g. https://app.example.com
	verificationTTL time.Duration
	retry           retry.Config
}

type Config struct {
	PublicBaseURL   string
	VerificationTTL time.Duration
	Retry           retry.Config
}

func NewService(
	users UserRepo,
	idp IdentityProvider,
	signIns SignInGateway,
	vstore VerificationStore,
	pub EventPublisher,
	cfg Config,
) *Service {
	ttl := cfg.VerificationTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Service{
		users:     users,
		idp:       idp,
		signIns:   signIns,
		vstore:    vstore,
		pub:       pub,
		resolvers: DefaultResolvers(users),
		audit:     nopAudit{},
		observe:   func(string, string) {},
		now:       time.Now,

		publicBaseURL:   strings.TrimRight(cfg.PublicBaseURL, "/"),
		verificationTTL: ttl,
		retry:           cfg.Retry,
	}
}

func (s *Service) WithAudit(a AuditLogger) *Service {
	if a != nil {
		s.audit = a
	}
	return s
}

// WithObserver registers a callback for every outcome (metrics).
func (s *Service) WithObserver(fn func(outcome, reason string)) *Service {
	if fn != nil {
		s.observe = fn
	}
	return s
}

// WithResolvers replaces the role resolution chain.
func (s *Service) WithResolvers(rs ...RoleResolver) *Service {
	if len(rs) > 0 {
		s.resolvers = rs
	}
	return s
}

// reconcile makes the local record agree with the provider for subjectID.
// Any failure signs sessionID out.
func (s *Service) reconcile(ctx context.Context, subjectID, sessionID, channel string, reg Registration) Outcome {
	log := logger.WithCtx(ctx).With().
		Str("subject_id", subjectID).
		Str("channel", channel).
		Logger()

	if strings.TrimSpace(subjectID) == "" {
		return s.fail(ctx, subjectID, sessionID, ReasonIdentityInvalid)
	}

	var identity domain.Identity
	err := retry.Do(ctx, s.retry, func(ctx context.Context) error {
		var err error
		identity, err = s.idp.GetUser(ctx, subjectID)
		return err
	})
	if err != nil {
		log.Warn().Err(err).Msg("identity lookup failed")
		if domain.KindOf(err) == domain.KindNotFound {
			return s.fail(ctx, subjectID, sessionID, ReasonIdentityInvalid)
		}
		return s.fail(ctx, subjectID, sessionID, ReasonIdentityUnavailable)
	}
	if identity.Email == "" {
		log.Warn().Msg("identity has no email address")
		return s.fail(ctx, subjectID, sessionID, ReasonIdentityInvalid)
	}

	res, ok := resolveRole(ctx, s.resolvers, ResolveInput{Identity: identity, Registration: reg})
	if !ok {
		log.Warn().Msg("no role could be resolved")
		return s.fail(ctx, subjectID, sessionID, ReasonRoleUnresolved)
	}

	var user domain.User
	err = retry.Do(ctx, s.retry, func(ctx context.Context) error {
		var err error
		user, err = s.users.Upsert(ctx, domain.UserUpsert{
			ClerkID:    identity.SubjectID,
			Email:      identity.Email,
			FirstName:  identity.FirstName,
			LastName:   identity.LastName,
			Role:       res.Role,
			Specialty:  res.Specialty,
			TouchLogin: true,
		})
		return err
	})
	if err != nil {
		log.Error().Err(err).Str("role", string(res.Role)).Msg("local record upsert failed")
		return s.fail(ctx, subjectID, sessionID, ReasonSyncFailed)
	}
	if !user.IsActive {
		return s.fail(ctx, subjectID, sessionID, ReasonAccountInactive)
	}

	if res.Source != SourcePublicMetadata {
		s.echoRole(ctx, subjectID, user.Role, user.Specialty)
	}

	evt := domain.UserSyncedEvent{
		SubjectID:  user.ClerkID,
		UserID:     user.ID,
		Email:      user.Email,
		Role:       string(user.Role),
		Specialty:  user.Specialty,
		Source:     res.Source,
		Channel:    channel,
		OccurredAt: s.now().UTC(),
	}
	if err := s.pub.PublishUserSynced(ctx, evt); err != nil {
		log.Warn().Err(err).Msg("publish user synced failed")
	}
	s.audit.UserSynced(ctx, user.ClerkID, user.Email, string(user.Role), res.Source, channel)
	s.observe(OutcomeAuthenticated, "")

	return Authenticated{
		Role:           user.Role,
		RedirectTarget: s.publicBaseURL + domain.RedirectPath(user.Role),
		User:           user,
	}
}

// echoRole writes the resolved role into provider public metadata so later
// sign-ins resolve it without a database lookup. Best effort.
func (s *Service) echoRole(ctx context.Context, subjectID string, role domain.Role, specialty string) {
	if err := s.idp.UpdatePublicMetadata(ctx, subjectID, domain.RoleMetadata(role, specialty)); err != nil {
		logger.WithCtx(ctx).Warn().Err(err).
			Str("subject_id", subjectID).
			Str("role", string(role)).
			Msg("role metadata echo failed")
	}
}

func (s *Service) fail(ctx context.Context, subjectID, sessionID string, reason FailureReason) Outcome {
	if sessionID != "" {
		if err := s.idp.RevokeSession(ctx, sessionID); err != nil {
			logger.WithCtx(ctx).Error().Err(err).
				Str("subject_id", subjectID).
				Str("session_id", sessionID).
				Msg("session revoke failed")
		}
	}
	s.audit.ForcedSignOut(ctx, subjectID, sessionID, string(reason))
	s.observe(OutcomeFailed, string(reason))
	return Failed{Reason: reason, SignOut: true}
}

// newOpaqueToken returns a URL-safe opaque token.
func newOpaqueToken(bytesLen int) (string, error) {
	b := make([]byte, bytesLen)
	if _, err := rand.Read(b); err != nil {
		return "", domain.ErrRandomFailed(err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
