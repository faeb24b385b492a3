package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/baechuer/medimg-identity/internal/domain"
)

func seedUser(t *testing.T, h *harness, subject string, role domain.Role) {
	t.Helper()
	if _, err := h.users.UserRepo.Upsert(context.Background(), domain.UserUpsert{ClerkID: subject, Email: subject + "@example.com", Role: role}); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestSetRole_UpdatesEchoesAndPublishes(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	seedUser(t, h, "usr_1", domain.RolePatient)

	u, err := h.svc.SetRole(context.Background(), SetRoleInput{ActorID: "usr_admin", SubjectID: "usr_1", Role: "provider", Specialty: "Oncology"})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if u.Role != domain.RoleProvider || u.Specialty != "Oncology" {
		t.Fatalf("unexpected user: %+v", u)
	}
	if h.idp.echoed["usr_1"]["role"] != "PROVIDER" {
		t.Fatalf("echo: %+v", h.idp.echoed["usr_1"])
	}
	if _, _, roles := h.pub.Counts(); roles != 1 {
		t.Fatalf("expected role_changed event, got %d", roles)
	}
	if e := h.audit.last(); e.action != "role_changed" || e.fields["old"] != "PATIENT" || e.fields["new"] != "PROVIDER" {
		t.Fatalf("audit: %+v", e)
	}
}

func TestSetRole_NextSyncKeepsNewRole(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	h.addIdentity(identity("usr_1", nil, map[string]any{"role": "PATIENT"}))

	if _, err := h.svc.Sync(ctx, SyncInput{SubjectID: "usr_1", SessionID: "sess_1"}); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	if _, err := h.svc.SetRole(ctx, SetRoleInput{ActorID: "usr_admin", SubjectID: "usr_1", Role: "PROVIDER", Specialty: "Radiology"}); err != nil {
		t.Fatalf("set role: %v", err)
	}
	if v, ok := h.idp.cleared["usr_1"]["role"]; !ok || v != nil {
		t.Fatalf("sign-up role claim should be cleared: %+v", h.idp.cleared["usr_1"])
	}

	res, err := h.svc.Sync(ctx, SyncInput{SubjectID: "usr_1", SessionID: "sess_2"})
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	a := mustAuthenticated(t, res.Outcome)
	if a.Role != domain.RoleProvider {
		t.Fatalf("role reverted to %s", a.Role)
	}
	u, _ := h.users.GetBySubject(ctx, "usr_1")
	if u.Role != domain.RoleProvider || u.Specialty != "Radiology" {
		t.Fatalf("local record: %+v", u)
	}
	if got := h.idp.echoed["usr_1"]["role"]; got != "PROVIDER" {
		t.Fatalf("public metadata: %v", got)
	}
}

func TestSetRole_DemotionDropsSpecialty(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	if _, err := h.users.UserRepo.Upsert(context.Background(), domain.UserUpsert{ClerkID: "usr_1", Email: "usr_1@example.com", Role: domain.RoleProvider, Specialty: "Oncology"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := h.svc.SetRole(context.Background(), SetRoleInput{SubjectID: "usr_1", Role: "PATIENT"}); err != nil {
		t.Fatalf("err: %v", err)
	}
	meta := h.idp.echoed["usr_1"]
	if v, ok := meta["specialty"]; !ok || v != nil {
		t.Fatalf("specialty should be removed from public metadata: %+v", meta)
	}
}

func TestSetRole_MetadataFailureChangesNothing(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	seedUser(t, h, "usr_1", domain.RolePatient)
	h.idp.echoErr = domain.ErrProviderUnavailable(errors.New("503"))

	if _, err := h.svc.SetRole(context.Background(), SetRoleInput{SubjectID: "usr_1", Role: "ADMIN"}); !domain.IsTransient(err) {
		t.Fatalf("expected provider error, got %v", err)
	}
	u, _ := h.users.GetBySubject(context.Background(), "usr_1")
	if u.Role != domain.RolePatient {
		t.Fatalf("local role changed: %s", u.Role)
	}
	if _, _, roles := h.pub.Counts(); roles != 0 {
		t.Fatalf("no event expected, got %d", roles)
	}
}

func TestSetRole_Rejections(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	seedUser(t, h, "usr_admin", domain.RoleAdmin)
	ctx := context.Background()

	cases := []struct {
		name string
		in   SetRoleInput
		code string
	}{
		{"missing subject", SetRoleInput{Role: "ADMIN"}, "missing_field"},
		{"missing role", SetRoleInput{SubjectID: "usr_1"}, "missing_field"},
		{"invalid role", SetRoleInput{SubjectID: "usr_1", Role: "SUPERUSER"}, "invalid_role"},
		{"self", SetRoleInput{ActorID: "usr_admin", SubjectID: "usr_admin", Role: "PATIENT"}, "cannot_affect_self"},
		{"unknown user", SetRoleInput{ActorID: "usr_admin", SubjectID: "usr_404", Role: "PATIENT"}, "user_not_found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := h.svc.SetRole(ctx, tc.in); !domain.Is(err, tc.code) {
				t.Fatalf("expected %s, got %v", tc.code, err)
			}
		})
	}
}

func TestSetRole_SameRoleDoesNotPublish(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	seedUser(t, h, "usr_1", domain.RolePatient)

	if _, err := h.svc.SetRole(context.Background(), SetRoleInput{SubjectID: "usr_1", Role: "PATIENT"}); err != nil {
		t.Fatalf("err: %v", err)
	}
	if _, _, roles := h.pub.Counts(); roles != 0 {
		t.Fatalf("no event expected, got %d", roles)
	}
}

func TestListUsers_Bounds(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	seedUser(t, h, "usr_1", domain.RolePatient)
	ctx := context.Background()

	if _, err := h.svc.ListUsers(ctx, 0, 0); !domain.Is(err, "invalid_field") {
		t.Fatalf("expected invalid_field, got %v", err)
	}
	if _, err := h.svc.ListUsers(ctx, 101, 0); !domain.Is(err, "invalid_field") {
		t.Fatalf("expected invalid_field, got %v", err)
	}
	if _, err := h.svc.ListUsers(ctx, 10, -1); !domain.Is(err, "invalid_field") {
		t.Fatalf("expected invalid_field, got %v", err)
	}
	users, err := h.svc.ListUsers(ctx, 10, 0)
	if err != nil || len(users) != 1 {
		t.Fatalf("unexpected: %v %v", users, err)
	}
}

func TestLookup(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	seedUser(t, h, "usr_1", domain.RoleProvider)

	u, err := h.svc.Lookup(context.Background(), "usr_1")
	if err != nil || u.Role != domain.RoleProvider {
		t.Fatalf("unexpected: %+v %v", u, err)
	}
	if _, err := h.svc.Lookup(context.Background(), "usr_2"); !domain.Is(err, "user_not_found") {
		t.Fatalf("expected user_not_found, got %v", err)
	}
}
