package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/baechuer/medimg-identity/internal/domain"
	"github.com/baechuer/medimg-identity/internal/infrastructure/memory"
)

// ---- fakes ----

type fakeVerifier struct {
	claims domain.SessionClaims
	err    error
	calls  int
	gotTok string
}

func (f *fakeVerifier) Verify(_ context.Context, token string) (domain.SessionClaims, error) {
	f.calls++
	f.gotTok = token
	return f.claims, f.err
}

type writeErrRecorder struct {
	calls int
	last  error
}

func (w *writeErrRecorder) fn(rw http.ResponseWriter, _ *http.Request, err error) {
	w.calls++
	w.last = err
	rw.WriteHeader(http.StatusTeapot)
}

type nextRecorder struct {
	calls      int
	gotSubject string
	gotSession string
	gotRole    string
}

func (n *nextRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n.calls++
	n.gotSubject, _ = SubjectFromContext(r.Context())
	n.gotSession = SessionIDFromContext(r.Context())
	n.gotRole, _ = RoleFromContext(r.Context())
	w.WriteHeader(http.StatusOK)
}

// ---- Auth ----

func TestAuth_HeaderErrors(t *testing.T) {
	cases := []struct {
		name   string
		header string
		code   string
	}{
		{"missing", "", "token_missing"},
		{"wrong scheme", "Basic abc", "token_invalid"},
		{"empty token", "Bearer   ", "token_invalid"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := &fakeVerifier{}
			we := &writeErrRecorder{}
			next := &nextRecorder{}

			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			Auth(v, we.fn)(next).ServeHTTP(httptest.NewRecorder(), req)

			if !domain.Is(we.last, tc.code) {
				t.Fatalf("expected %s, got %v", tc.code, we.last)
			}
			if v.calls != 0 || next.calls != 0 {
				t.Fatalf("verifier/next must not run")
			}
		})
	}
}

func TestAuth_VerifierErrorPropagates(t *testing.T) {
	v := &fakeVerifier{err: domain.ErrTokenExpired()}
	we := &writeErrRecorder{}
	next := &nextRecorder{}

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer tok")
	Auth(v, we.fn)(next).ServeHTTP(httptest.NewRecorder(), req)

	if !domain.Is(we.last, "token_expired") || next.calls != 0 {
		t.Fatalf("unexpected: err=%v next=%d", we.last, next.calls)
	}
}

func TestAuth_InjectsSession(t *testing.T) {
	v := &fakeVerifier{claims: domain.SessionClaims{Subject: "usr_1", SessionID: "sess_1"}}
	we := &writeErrRecorder{}
	next := &nextRecorder{}

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "bearer tok-123")
	Auth(v, we.fn)(next).ServeHTTP(httptest.NewRecorder(), req)

	if we.calls != 0 {
		t.Fatalf("unexpected error: %v", we.last)
	}
	if v.gotTok != "tok-123" {
		t.Fatalf("token: %q", v.gotTok)
	}
	if next.gotSubject != "usr_1" || next.gotSession != "sess_1" {
		t.Fatalf("context: %+v", next)
	}
}

func TestOptionalAuth(t *testing.T) {
	cases := []struct {
		name        string
		header      string
		verifierErr error
		wantNext    bool
		wantSubject string
		code        string
	}{
		{"no header passes through", "", nil, true, "", ""},
		{"valid token injects session", "Bearer tok", nil, true, "usr_1", ""},
		{"bad scheme rejected", "Basic abc", nil, false, "", "token_invalid"},
		{"expired token rejected", "Bearer tok", domain.ErrTokenExpired(), false, "", "token_expired"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := &fakeVerifier{claims: domain.SessionClaims{Subject: "usr_1", SessionID: "sess_1"}, err: tc.verifierErr}
			we := &writeErrRecorder{}
			next := &nextRecorder{}

			req := httptest.NewRequest(http.MethodPost, "/auth/sign-in/complete", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			OptionalAuth(v, we.fn)(next).ServeHTTP(httptest.NewRecorder(), req)

			if (next.calls == 1) != tc.wantNext {
				t.Fatalf("next calls=%d, err=%v", next.calls, we.last)
			}
			if next.gotSubject != tc.wantSubject {
				t.Fatalf("subject: %q", next.gotSubject)
			}
			if tc.code != "" && !domain.Is(we.last, tc.code) {
				t.Fatalf("expected %s, got %v", tc.code, we.last)
			}
		})
	}
}

// ---- RequireSynced / RequireAtLeast ----

func syncedRequest(subject string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	return req.WithContext(WithSession(req.Context(), subject, "sess"))
}

func TestRequireSynced(t *testing.T) {
	users := memory.NewUserRepo()
	ctx := context.Background()
	_, _ = users.Upsert(ctx, domain.UserUpsert{ClerkID: "usr_ok", Email: "ok@example.com", Role: domain.RoleProvider})
	_, _ = users.Upsert(ctx, domain.UserUpsert{ClerkID: "usr_off", Email: "off@example.com", Role: domain.RolePatient})
	off := false
	_, _ = users.Update(ctx, "usr_off", domain.UserPatch{IsActive: &off})

	cases := []struct {
		subject string
		code    string
	}{
		{"usr_missing", "not_synced"},
		{"usr_off", "account_inactive"},
		{"usr_ok", ""},
	}
	for _, tc := range cases {
		t.Run(tc.subject, func(t *testing.T) {
			we := &writeErrRecorder{}
			next := &nextRecorder{}
			RequireSynced(users, we.fn)(next).ServeHTTP(httptest.NewRecorder(), syncedRequest(tc.subject))

			if tc.code == "" {
				if we.calls != 0 || next.gotRole != "PROVIDER" {
					t.Fatalf("expected pass with role, got err=%v role=%q", we.last, next.gotRole)
				}
				return
			}
			if !domain.Is(we.last, tc.code) || next.calls != 0 {
				t.Fatalf("expected %s, got %v", tc.code, we.last)
			}
		})
	}
}

func TestRequireSynced_NoSession(t *testing.T) {
	we := &writeErrRecorder{}
	next := &nextRecorder{}
	RequireSynced(memory.NewUserRepo(), we.fn)(next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
	if !domain.Is(we.last, "token_invalid") {
		t.Fatalf("expected token_invalid, got %v", we.last)
	}
}

func TestRequireAtLeast(t *testing.T) {
	cases := []struct {
		role domain.Role
		min  domain.Role
		pass bool
	}{
		{domain.RoleAdmin, domain.RoleAdmin, true},
		{domain.RoleAdmin, domain.RolePatient, true},
		{domain.RoleProvider, domain.RoleAdmin, false},
		{domain.RolePatient, domain.RoleProvider, false},
	}
	for _, tc := range cases {
		we := &writeErrRecorder{}
		next := &nextRecorder{}
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req = req.WithContext(WithUser(req.Context(), domain.User{ClerkID: "usr", Role: tc.role}))

		RequireAtLeast(tc.min, we.fn)(next).ServeHTTP(httptest.NewRecorder(), req)
		if tc.pass != (next.calls == 1) {
			t.Fatalf("role=%s min=%s: pass=%v err=%v", tc.role, tc.min, next.calls == 1, we.last)
		}
		if !tc.pass && !domain.Is(we.last, "insufficient_role") {
			t.Fatalf("expected insufficient_role, got %v", we.last)
		}
	}
}

func TestRequireAtLeast_MissingRole(t *testing.T) {
	we := &writeErrRecorder{}
	next := &nextRecorder{}
	RequireAtLeast(domain.RolePatient, we.fn)(next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
	if !domain.Is(we.last, "not_synced") {
		t.Fatalf("expected not_synced, got %v", we.last)
	}
}

// ---- InternalAuth ----

func TestInternalAuth(t *testing.T) {
	cases := []struct {
		name   string
		secret string
		header string
		pass   bool
	}{
		{"disabled", "", "anything", false},
		{"wrong", "s3cret", "nope", false},
		{"missing", "s3cret", "", false},
		{"ok", "s3cret", "s3cret", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			we := &writeErrRecorder{}
			next := &nextRecorder{}
			req := httptest.NewRequest(http.MethodGet, "/internal/x", nil)
			if tc.header != "" {
				req.Header.Set(HeaderInternalSecret, tc.header)
			}
			InternalAuth(tc.secret, we.fn)(next).ServeHTTP(httptest.NewRecorder(), req)
			if tc.pass != (next.calls == 1) {
				t.Fatalf("pass=%v err=%v", next.calls == 1, we.last)
			}
		})
	}
}

// ---- RequestID ----

func TestRequestID_GeneratesAndEchoes(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get(HeaderXRequestID)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rr.Header().Get(HeaderXRequestID) == "" || seen != "" {
		t.Fatalf("expected generated id in response only")
	}

	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderXRequestID, "rid-1")
	h.ServeHTTP(rr, req)
	if rr.Header().Get(HeaderXRequestID) != "rid-1" {
		t.Fatalf("expected echo, got %q", rr.Header().Get(HeaderXRequestID))
	}
}
