package domain

import (
	"fmt"
	"strings"
	"time"
)

// Identity is what the identity provider knows about a subject. Facts only:
// the metadata bags are untrusted until parsed with ParseRoleClaim.
type Identity struct {
	SubjectID      string
	Email          string
	EmailVerified  bool
	FirstName      string
	LastName       string
	PublicMetadata map[string]any
	UnsafeMetadata map[string]any
}

// ClaimKind tags a RoleClaim.
type ClaimKind int

const (
	ClaimAbsent ClaimKind = iota
	ClaimValid
	ClaimInvalid
)

func (k ClaimKind) String() string {
	switch k {
	case ClaimValid:
		return "valid"
	case ClaimInvalid:
		return "invalid"
	default:
		return "absent"
	}
}

// RoleClaim is the parsed form of the role/specialty keys of a metadata bag.
// Role and Specialty are set only for ClaimValid; Raw only for ClaimInvalid.
type RoleClaim struct {
	Kind      ClaimKind
	Role      Role
	Specialty string
	Raw       string
}

const (
	MetaKeyRole      = "role"
	MetaKeySpecialty = "specialty"
)

// ParseRoleClaim reads the role out of a provider metadata bag.
// A missing, null or blank role is absent. Anything else that is not a
// supported role name (numbers, objects, unknown strings) is invalid.
func ParseRoleClaim(meta map[string]any) RoleClaim {
	v, present := meta[MetaKeyRole]
	if !present || v == nil {
		return RoleClaim{Kind: ClaimAbsent}
	}
	raw, ok := v.(string)
	if !ok {
		return RoleClaim{Kind: ClaimInvalid, Raw: fmt.Sprint(v)}
	}
	if strings.TrimSpace(raw) == "" {
		return RoleClaim{Kind: ClaimAbsent}
	}
	role, err := ParseRole(raw)
	if err != nil {
		return RoleClaim{Kind: ClaimInvalid, Raw: raw}
	}

	claim := RoleClaim{Kind: ClaimValid, Role: role}
	if role == RoleProvider {
		if s, ok := meta[MetaKeySpecialty].(string); ok {
			claim.Specialty = strings.TrimSpace(s)
		}
	}
	return claim
}

// RoleMetadata is the bag echoed back into the provider's public metadata.
func RoleMetadata(role Role, specialty string) map[string]any {
	m := map[string]any{MetaKeyRole: string(role)}
	if role == RoleProvider && specialty != "" {
		m[MetaKeySpecialty] = specialty
	}
	return m
}

// RoleOverride is RoleMetadata for a merge patch that must replace an
// earlier claim: a specialty that no longer applies is sent as null so the
// provider drops the key.
func RoleOverride(role Role, specialty string) map[string]any {
	m := RoleMetadata(role, specialty)
	if _, ok := m[MetaKeySpecialty]; !ok {
		m[MetaKeySpecialty] = nil
	}
	return m
}

// ClearedRoleMetadata removes the role keys from a bag via merge patch.
func ClearedRoleMetadata() map[string]any {
	return map[string]any{MetaKeyRole: nil, MetaKeySpecialty: nil}
}

// VerificationSession bridges a sign-in that needs a second factor and the
// code submission that completes it. Stored server side under Token.
type VerificationSession struct {
	Token     string    `json:"-"`
	SignInID  string    `json:"sign_in_id"`
	Email     string    `json:"email"`
	Strategy  string    `json:"strategy"`
	Role      Role      `json:"role,omitempty"`
	Specialty string    `json:"specialty,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionClaims are the verified claims of a provider session token.
type SessionClaims struct {
	Subject   string
	SessionID string
	ExpiresAt time.Time
}
