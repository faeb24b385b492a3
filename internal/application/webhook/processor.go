// Package webhook applies identity provider lifecycle events to local user
// records.
package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/baechuer/medimg-identity/internal/domain"
	"github.com/baechuer/medimg-identity/internal/logger"
	"github.com/baechuer/medimg-identity/internal/retry"
)

// Event types handled by the processor.
const (
	EventUserCreated       = "user.created"
	EventUserUpdated       = "user.updated"
	EventUserDeleted       = "user.deleted"
	EventTwoFactorEnabled  = "user.two_factor_enabled"
	EventTwoFactorDisabled = "user.two_factor_disabled"
)

const (
	channelWebhook           = "webhook"
	defaultDeliveryRetention = 24 * time.Hour
)

func known(evType string) bool {
	switch evType {
	case EventUserCreated, EventUserUpdated, EventUserDeleted, EventTwoFactorEnabled, EventTwoFactorDisabled:
		return true
	}
	return false
}

// Event is a verified webhook envelope. ID is the delivery id (svix-id).
type Event struct {
	ID   string          `json:"-"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Result is what the transport writes back. User is nil for 204 and for
// acknowledgements that touched nothing.
type Result struct {
	Status  int
	Message string
	User    *domain.User
}

type Processor struct {
	users   UserRepo
	meta    MetadataWriter
	pub     EventPublisher
	dedupe  DeliveryLog
	audit   AuditLogger
	observe func(eventType, status string)
	now     func() time.Time

	retry     retry.Config
	retention time.Duration
}

type Config struct {
	Retry retry.Config
	// DeliveryRetention is how long processed delivery ids are remembered.
	DeliveryRetention time.Duration
}

func NewProcessor(users UserRepo, meta MetadataWriter, pub EventPublisher, dedupe DeliveryLog, cfg Config) *Processor {
	retention := cfg.DeliveryRetention
	if retention <= 0 {
		retention = defaultDeliveryRetention
	}
	return &Processor{
		users:     users,
		meta:      meta,
		pub:       pub,
		dedupe:    dedupe,
		audit:     nopAudit{},
		observe:   func(string, string) {},
		now:       time.Now,
		retry:     cfg.Retry,
		retention: retention,
	}
}

func (p *Processor) WithAudit(a AuditLogger) *Processor {
	if a != nil {
		p.audit = a
	}
	return p
}

// WithObserver registers a callback for every handled event (metrics).
func (p *Processor) WithObserver(fn func(eventType, status string)) *Processor {
	if fn != nil {
		p.observe = fn
	}
	return p
}

// Handle applies one event. Domain errors carry the status the provider
// should see; anything else is a 500 and the provider will redeliver.
func (p *Processor) Handle(ctx context.Context, ev Event) (res Result, err error) {
	evType := strings.TrimSpace(ev.Type)
	defer func() {
		status := res.Status
		if err != nil {
			status = statusFor(err)
		}
		label := evType
		if !known(label) {
			label = "other"
		}
		p.observe(label, strconv.Itoa(status))
	}()

	if evType == "" {
		return Result{}, domain.ErrMissingField("type")
	}

	log := logger.WithCtx(ctx).With().
		Str("event_type", evType).
		Str("delivery_id", ev.ID).
		Logger()

	if ev.ID != "" && p.dedupe != nil {
		seen, err := p.dedupe.Seen(ctx, ev.ID)
		if err != nil {
			log.Warn().Err(err).Msg("delivery log unavailable, processing anyway")
		} else if seen {
			log.Info().Msg("duplicate delivery skipped")
			return Result{Status: http.StatusOK, Message: "duplicate delivery"}, nil
		}
	}

	switch evType {
	case EventUserCreated:
		res, err = p.userCreated(ctx, ev.Data)
	case EventUserUpdated:
		res, err = p.userUpdated(ctx, ev.Data)
	case EventUserDeleted:
		res, err = p.userDeleted(ctx, ev.Data)
	case EventTwoFactorEnabled, EventTwoFactorDisabled:
		res, err = p.factorChanged(ctx, evType, ev.Data)
	default:
		log.Debug().Msg("ignoring unhandled event type")
		return Result{Status: http.StatusOK, Message: "ignored"}, nil
	}
	if err != nil {
		return Result{}, err
	}

	if ev.ID != "" && p.dedupe != nil {
		if err := p.dedupe.Mark(ctx, ev.ID, p.retention); err != nil {
			log.Warn().Err(err).Msg("delivery log mark failed")
		}
	}
	return res, nil
}

func decodeUser(data json.RawMessage) (domain.ProviderUser, error) {
	var u domain.ProviderUser
	if len(data) == 0 {
		return u, domain.ErrMissingField("data")
	}
	if err := json.Unmarshal(data, &u); err != nil {
		return u, domain.ErrInvalidJSON(err)
	}
	u.ID = strings.TrimSpace(u.ID)
	if u.ID == "" {
		return u, domain.ErrMissingField("data.id")
	}
	return u, nil
}

// roleClaim reads public metadata first, then unsafe metadata. An invalid
// value in either bag is reported rather than skipped. Unsafe metadata is
// client-writable, so a privileged role there counts as no claim.
func roleClaim(ctx context.Context, u domain.ProviderUser) (domain.RoleClaim, error) {
	if c := domain.ParseRoleClaim(u.PublicMetadata); c.Kind != domain.ClaimAbsent {
		if c.Kind == domain.ClaimInvalid {
			return c, domain.ErrInvalidRole(c.Raw)
		}
		return c, nil
	}

	c := domain.ParseRoleClaim(u.UnsafeMetadata)
	switch c.Kind {
	case domain.ClaimInvalid:
		return c, domain.ErrInvalidRole(c.Raw)
	case domain.ClaimValid:
		if !domain.IsSelfServiceRole(c.Role) {
			logger.WithCtx(ctx).Warn().
				Str("subject_id", u.ID).
				Str("role", string(c.Role)).
				Msg("ignoring privileged role in unsafe metadata")
			return domain.RoleClaim{Kind: domain.ClaimAbsent}, nil
		}
	}
	return c, nil
}

func (p *Processor) userCreated(ctx context.Context, data json.RawMessage) (Result, error) {
	pu, err := decodeUser(data)
	if err != nil {
		return Result{}, err
	}
	identity := pu.Identity()
	if identity.Email == "" {
		return Result{}, domain.ErrMissingField("data.email_addresses")
	}

	claim, err := roleClaim(ctx, pu)
	if err != nil {
		return Result{}, err
	}
	source := "webhook_metadata"
	if claim.Kind == domain.ClaimAbsent {
		// The interactive sync may have won the race and already written a
		// role; a late created event must not overwrite it.
		existing, err := p.users.GetBySubject(ctx, identity.SubjectID)
		switch {
		case err == nil:
			claim = domain.RoleClaim{Kind: domain.ClaimValid, Role: existing.Role, Specialty: existing.Specialty}
			source = "webhook_existing"
		case domain.KindOf(err) == domain.KindNotFound:
			// self-service sign-ups land here; only this event defaults a role
			claim = domain.RoleClaim{Kind: domain.ClaimValid, Role: domain.RolePatient}
			source = "webhook_default"
		default:
			return Result{}, err
		}
	}

	var user domain.User
	err = retry.Do(ctx, p.retry, func(ctx context.Context) error {
		var err error
		user, err = p.users.Upsert(ctx, domain.UserUpsert{
			ClerkID:   identity.SubjectID,
			Email:     identity.Email,
			FirstName: identity.FirstName,
			LastName:  identity.LastName,
			Role:      claim.Role,
			Specialty: claim.Specialty,
		})
		return err
	})
	if err != nil {
		return Result{}, err
	}

	if err := p.meta.UpdatePublicMetadata(ctx, user.ClerkID, domain.RoleMetadata(user.Role, user.Specialty)); err != nil {
		logger.WithCtx(ctx).Warn().Err(err).Str("subject_id", user.ClerkID).Msg("role metadata echo failed")
	}
	p.synced(ctx, user, source)

	return Result{Status: http.StatusCreated, Message: "user created", User: &user}, nil
}

func (p *Processor) userUpdated(ctx context.Context, data json.RawMessage) (Result, error) {
	pu, err := decodeUser(data)
	if err != nil {
		return Result{}, err
	}
	claim, err := roleClaim(ctx, pu)
	if err != nil {
		return Result{}, err
	}

	if _, err := p.users.GetBySubject(ctx, pu.ID); err != nil {
		return Result{}, err
	}

	identity := pu.Identity()
	var patch domain.UserPatch
	if identity.Email != "" {
		patch.Email = &identity.Email
	}
	if pu.FirstName != nil {
		patch.FirstName = &identity.FirstName
	}
	if pu.LastName != nil {
		patch.LastName = &identity.LastName
	}
	if claim.Kind == domain.ClaimValid {
		patch.Role = &claim.Role
		if claim.Specialty != "" {
			patch.Specialty = &claim.Specialty
		}
	}

	var user domain.User
	err = retry.Do(ctx, p.retry, func(ctx context.Context) error {
		var err error
		user, err = p.users.Update(ctx, pu.ID, patch)
		return err
	})
	if err != nil {
		return Result{}, err
	}
	p.synced(ctx, user, "webhook_update")

	return Result{Status: http.StatusOK, Message: "user updated", User: &user}, nil
}

func (p *Processor) userDeleted(ctx context.Context, data json.RawMessage) (Result, error) {
	var payload struct {
		ID string `json:"id"`
	}
	if len(data) == 0 {
		return Result{}, domain.ErrMissingField("data")
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return Result{}, domain.ErrInvalidJSON(err)
	}
	subjectID := strings.TrimSpace(payload.ID)
	if subjectID == "" {
		return Result{}, domain.ErrMissingField("data.id")
	}

	var rows int64
	err := retry.Do(ctx, p.retry, func(ctx context.Context) error {
		var err error
		rows, err = p.users.DeleteBySubject(ctx, subjectID)
		return err
	})
	if err != nil {
		return Result{}, err
	}

	if rows > 0 {
		evt := domain.UserDeletedEvent{SubjectID: subjectID, OccurredAt: p.now().UTC()}
		if err := p.pub.PublishUserDeleted(ctx, evt); err != nil {
			logger.WithCtx(ctx).Warn().Err(err).Str("subject_id", subjectID).Msg("publish user deleted failed")
		}
	}
	p.audit.UserDeleted(ctx, subjectID, rows)

	return Result{Status: http.StatusNoContent}, nil
}

func (p *Processor) factorChanged(ctx context.Context, evType string, data json.RawMessage) (Result, error) {
	pu, err := decodeUser(data)
	if err != nil {
		return Result{}, err
	}
	user, err := p.users.GetBySubject(ctx, pu.ID)
	if err != nil {
		return Result{}, err
	}

	logger.WithCtx(ctx).Info().
		Str("subject_id", user.ClerkID).
		Str("event_type", evType).
		Msg("second factor changed")
	p.audit.FactorChanged(ctx, user.ClerkID, evType)

	return Result{Status: http.StatusOK, Message: "factor change recorded"}, nil
}

func (p *Processor) synced(ctx context.Context, user domain.User, source string) {
	evt := domain.UserSyncedEvent{
		SubjectID:  user.ClerkID,
		UserID:     user.ID,
		Email:      user.Email,
		Role:       string(user.Role),
		Specialty:  user.Specialty,
		Source:     source,
		Channel:    channelWebhook,
		OccurredAt: p.now().UTC(),
	}
	if err := p.pub.PublishUserSynced(ctx, evt); err != nil {
		logger.WithCtx(ctx).Warn().Err(err).Str("subject_id", user.ClerkID).Msg("publish user synced failed")
	}
	p.audit.UserSynced(ctx, user.ClerkID, user.Email, string(user.Role), source, channelWebhook)
}

func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindAuth:
		return http.StatusUnauthorized
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
