package reconcile

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/baechuer/medimg-identity/internal/domain"
	"github.com/baechuer/medimg-identity/internal/infrastructure/memory"
	"github.com/baechuer/medimg-identity/internal/retry"
)

/*
Fakes for ports
*/

// fakeUsers wraps the in-memory repo with injectable failures.
type fakeUsers struct {
	*memory.UserRepo

	mu          sync.Mutex
	upsertErrs  []error // consumed one per call
	upsertCalls int
	getErr      error
}

func newFakeUsers() *fakeUsers { return &fakeUsers{UserRepo: memory.NewUserRepo()} }

func (f *fakeUsers) Upsert(ctx context.Context, in domain.UserUpsert) (domain.User, error) {
	f.mu.Lock()
	f.upsertCalls++
	var err error
	if len(f.upsertErrs) > 0 {
		err, f.upsertErrs = f.upsertErrs[0], f.upsertErrs[1:]
	}
	f.mu.Unlock()
	if err != nil {
		return domain.User{}, err
	}
	return f.UserRepo.Upsert(ctx, in)
}

func (f *fakeUsers) GetBySubject(ctx context.Context, id string) (domain.User, error) {
	if f.getErr != nil {
		return domain.User{}, f.getErr
	}
	return f.UserRepo.GetBySubject(ctx, id)
}

type fakeIDP struct {
	mu         sync.Mutex
	identities map[string]domain.Identity
	getErr     error
	echoErr    error

	echoed  map[string]map[string]any
	cleared map[string]map[string]any // unsafe bags written by UpdateMetadata
	revoked []string
}

func newFakeIDP() *fakeIDP {
	return &fakeIDP{
		identities: map[string]domain.Identity{},
		echoed:     map[string]map[string]any{},
		cleared:    map[string]map[string]any{},
	}
}

func (f *fakeIDP) GetUser(ctx context.Context, id string) (domain.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return domain.Identity{}, f.getErr
	}
	ident, ok := f.identities[id]
	if !ok {
		return domain.Identity{}, domain.ErrUserNotFound()
	}
	return ident, nil
}

func (f *fakeIDP) UpdatePublicMetadata(ctx context.Context, id string, meta map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.echoErr != nil {
		return f.echoErr
	}
	f.echoed[id] = meta
	return nil
}

// UpdateMetadata merges into the stored identity the way the provider does,
// so a later GetUser sees the result.
func (f *fakeIDP) UpdateMetadata(ctx context.Context, id string, public, unsafe map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.echoErr != nil {
		return f.echoErr
	}
	ident, ok := f.identities[id]
	if public != nil {
		f.echoed[id] = public
		if ok {
			ident.PublicMetadata = mergeMeta(ident.PublicMetadata, public)
		}
	}
	if unsafe != nil {
		f.cleared[id] = unsafe
		if ok {
			ident.UnsafeMetadata = mergeMeta(ident.UnsafeMetadata, unsafe)
		}
	}
	if ok {
		f.identities[id] = ident
	}
	return nil
}

func mergeMeta(dst, patch map[string]any) map[string]any {
	out := map[string]any{}
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range patch {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}

func (f *fakeIDP) RevokeSession(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked = append(f.revoked, sessionID)
	return nil
}

type fakeSignIns struct {
	mu       sync.Mutex
	signIns  map[string]domain.SignIn
	prepared []domain.Factor
	// attempt answers
	validCode  string
	afterValid domain.SignIn
	attempts   int
}

func newFakeSignIns() *fakeSignIns { return &fakeSignIns{signIns: map[string]domain.SignIn{}} }

func (f *fakeSignIns) GetSignIn(ctx context.Context, id string) (domain.SignIn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	si, ok := f.signIns[id]
	if !ok {
		return domain.SignIn{}, domain.ErrSignInNotFound()
	}
	return si, nil
}

func (f *fakeSignIns) PrepareSecondFactor(ctx context.Context, id string, factor domain.Factor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prepared = append(f.prepared, factor)
	return nil
}

func (f *fakeSignIns) AttemptSecondFactor(ctx context.Context, id, strategy, code string) (domain.SignIn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if _, ok := f.signIns[id]; !ok {
		return domain.SignIn{}, domain.ErrSignInNotFound()
	}
	if code != f.validCode {
		return domain.SignIn{}, domain.ErrInvalidCode()
	}
	return f.afterValid, nil
}

type auditEntry struct {
	action string
	fields map[string]string
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []auditEntry
}

func (a *fakeAudit) add(action string, fields map[string]string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, auditEntry{action: action, fields: fields})
}

func (a *fakeAudit) UserSynced(_ context.Context, subjectID, _, role, source, channel string) {
	a.add("user_synced", map[string]string{"subject_id": subjectID, "role": role, "source": source, "channel": channel})
}

func (a *fakeAudit) ForcedSignOut(_ context.Context, subjectID, sessionID, reason string) {
	a.add("forced_sign_out", map[string]string{"subject_id": subjectID, "session_id": sessionID, "reason": reason})
}

func (a *fakeAudit) RoleChanged(_ context.Context, subjectID, actor, oldRole, newRole string) {
	a.add("role_changed", map[string]string{"subject_id": subjectID, "actor": actor, "old": oldRole, "new": newRole})
}

func (a *fakeAudit) last() auditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.entries) == 0 {
		return auditEntry{}
	}
	return a.entries[len(a.entries)-1]
}

/*
Harness
*/

type harness struct {
	svc      *Service
	users    *fakeUsers
	idp      *fakeIDP
	signIns  *fakeSignIns
	vstore   *memory.VerificationStore
	pub      *memory.NoopPublisher
	audit    *fakeAudit
	outcomes []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		users:   newFakeUsers(),
		idp:     newFakeIDP(),
		signIns: newFakeSignIns(),
		vstore:  memory.NewVerificationStore(),
		pub:     memory.NewNoopPublisher(),
		audit:   &fakeAudit{},
	}
	h.svc = NewService(h.users, h.idp, h.signIns, h.vstore, h.pub, Config{
		PublicBaseURL:   "https://app.example.com/",
		VerificationTTL: 5 * time.Minute,
		Retry:           retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
	}).WithAudit(h.audit).WithObserver(func(outcome, reason string) {
		h.outcomes = append(h.outcomes, outcome+":"+reason)
	})
	return h
}

func (h *harness) addIdentity(id domain.Identity) {
	h.idp.mu.Lock()
	defer h.idp.mu.Unlock()
	h.idp.identities[id.SubjectID] = id
}

func identity(subject string, public, unsafe map[string]any) domain.Identity {
	return domain.Identity{
		SubjectID:      subject,
		Email:          subject + "@example.com",
		EmailVerified:  true,
		FirstName:      "Jane",
		LastName:       "Doe",
		PublicMetadata: public,
		UnsafeMetadata: unsafe,
	}
}

func mustAuthenticated(t *testing.T, out Outcome) Authenticated {
	t.Helper()
	a, ok := out.(Authenticated)
	if !ok {
		t.Fatalf("expected authenticated, got %#v", out)
	}
	return a
}

func mustFailed(t *testing.T, out Outcome, reason FailureReason) Failed {
	t.Helper()
	f, ok := out.(Failed)
	if !ok {
		t.Fatalf("expected failed(%s), got %#v", reason, out)
	}
	if f.Reason != reason {
		t.Fatalf("expected reason %s, got %s", reason, f.Reason)
	}
	if !f.SignOut {
		t.Fatalf("failed outcome must sign out")
	}
	return f
}
