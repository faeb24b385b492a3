package domain

import "strings"

type Role string

const (
	// Patient can view and share their own images and records.
	RolePatient Role = "PATIENT"
	// Provider can view images shared with them and manage their appointments.
	RoleProvider Role = "PROVIDER"
	// Admin manages users and sees analytics across the whole application.
	RoleAdmin Role = "ADMIN"
)

func IsValidRole(r string) bool {
	return r == string(RolePatient) || r == string(RoleProvider) || r == string(RoleAdmin)
}

// ParseRole normalizes case and surrounding whitespace before validating.
func ParseRole(raw string) (Role, error) {
	r := strings.ToUpper(strings.TrimSpace(raw))
	if !IsValidRole(r) {
		return "", ErrInvalidRole(raw)
	}
	return Role(r), nil
}

// IsSelfServiceRole reports whether a role may be chosen by the user
// themselves, at sign-up or through client-writable metadata. ADMIN is only
// ever granted by another admin.
func IsSelfServiceRole(r Role) bool {
	return r == RolePatient || r == RoleProvider
}

// ParseSelfServiceRole is ParseRole restricted to self-service roles.
func ParseSelfServiceRole(raw string) (Role, error) {
	r, err := ParseRole(raw)
	if err != nil {
		return "", err
	}
	if !IsSelfServiceRole(r) {
		return "", ErrRoleNotSelfService(raw)
	}
	return r, nil
}

// RoleRank: bigger => higher privilege
func RoleRank(r string) int {
	switch r {
	case string(RolePatient):
		return 1
	case string(RoleProvider):
		return 2
	case string(RoleAdmin):
		return 3
	default:
		return 0
	}
}

// RedirectPath is the dashboard a role lands on after sign-in.
func RedirectPath(r Role) string {
	switch r {
	case RoleAdmin:
		return "/dashboard/admin"
	case RoleProvider:
		return "/dashboard/provider"
	default:
		return "/dashboard/patient"
	}
}
