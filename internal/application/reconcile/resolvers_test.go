package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/baechuer/medimg-identity/internal/domain"
)

func TestResolveRole_Order(t *testing.T) {
	t.Parallel()

	users := newFakeUsers()
	_, _ = users.UserRepo.Upsert(context.Background(), domain.UserUpsert{ClerkID: "usr_local", Email: "l@example.com", Role: domain.RoleAdmin})
	chain := DefaultResolvers(users)

	cases := []struct {
		name   string
		in     ResolveInput
		ok     bool
		role   domain.Role
		source string
	}{
		{
			name:   "unsafe wins over public",
			in:     ResolveInput{Identity: identity("usr_1", map[string]any{"role": "ADMIN"}, map[string]any{"role": "patient"})},
			ok:     true,
			role:   domain.RolePatient,
			source: SourceUnsafeMetadata,
		},
		{
			name:   "invalid unsafe falls through to public",
			in:     ResolveInput{Identity: identity("usr_1", map[string]any{"role": "PROVIDER", "specialty": "Radiology"}, map[string]any{"role": "SUPERUSER"})},
			ok:     true,
			role:   domain.RoleProvider,
			source: SourcePublicMetadata,
		},
		{
			name:   "local record when metadata is empty",
			in:     ResolveInput{Identity: identity("usr_local", nil, nil), Registration: Registration{Role: "PATIENT"}},
			ok:     true,
			role:   domain.RoleAdmin,
			source: SourceLocalRecord,
		},
		{
			name:   "registration last",
			in:     ResolveInput{Identity: identity("usr_new", nil, nil), Registration: Registration{Role: "provider", Specialty: "Cardiology"}},
			ok:     true,
			role:   domain.RoleProvider,
			source: SourceRegistration,
		},
		{
			name: "nothing resolves",
			in:   ResolveInput{Identity: identity("usr_new", map[string]any{"role": 42}, map[string]any{})},
			ok:   false,
		},
		{
			name:   "admin in unsafe metadata is ignored",
			in:     ResolveInput{Identity: identity("usr_1", map[string]any{"role": "PATIENT"}, map[string]any{"role": "ADMIN"})},
			ok:     true,
			role:   domain.RolePatient,
			source: SourcePublicMetadata,
		},
		{
			name: "admin registration is not granted",
			in:   ResolveInput{Identity: identity("usr_new", nil, nil), Registration: Registration{Role: "ADMIN"}},
			ok:   false,
		},
		{
			name: "invalid registration role is not a fallback",
			in:   ResolveInput{Identity: identity("usr_new", nil, nil), Registration: Registration{Role: "SUPERUSER"}},
			ok:   false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, ok := resolveRole(context.Background(), chain, tc.in)
			if ok != tc.ok {
				t.Fatalf("ok=%v, want %v (res=%+v)", ok, tc.ok, res)
			}
			if !ok {
				return
			}
			if res.Role != tc.role || res.Source != tc.source {
				t.Fatalf("got %s from %s, want %s from %s", res.Role, res.Source, tc.role, tc.source)
			}
		})
	}
}

func TestResolveRole_ErrorSkipsToNextStrategy(t *testing.T) {
	t.Parallel()

	users := newFakeUsers()
	users.getErr = domain.ErrDBUnavailable(errors.New("down"))

	res, ok := resolveRole(context.Background(), DefaultResolvers(users), ResolveInput{
		Identity:     identity("usr_1", nil, nil),
		Registration: Registration{Role: "PATIENT"},
	})
	if !ok || res.Source != SourceRegistration {
		t.Fatalf("expected registration fallback, got ok=%v res=%+v", ok, res)
	}
}

func TestRegistrationResolver_DropsSpecialtyForNonProvider(t *testing.T) {
	t.Parallel()

	res, ok, err := registrationResolver{}.Resolve(context.Background(), ResolveInput{
		Registration: Registration{Role: "PATIENT", Specialty: "Radiology"},
	})
	if err != nil || !ok {
		t.Fatalf("unexpected: ok=%v err=%v", ok, err)
	}
	if res.Specialty != "" {
		t.Fatalf("specialty should be dropped, got %q", res.Specialty)
	}
}
