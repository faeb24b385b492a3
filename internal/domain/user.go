package domain

import (
	"strings"
	"time"
)

// User is the local record for a provider identity. ClerkID is unique.
type User struct {
	ID          string
	ClerkID     string
	Email       string
	FirstName   string
	LastName    string
	Role        Role
	Specialty   string
	IsActive    bool
	LastLoginAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (u User) DisplayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// UserUpsert carries the fields written by reconciliation. Zero-valued
// optional fields keep what is already stored.
type UserUpsert struct {
	ClerkID   string
	Email     string
	FirstName string
	LastName  string
	Role      Role
	Specialty string
	// TouchLogin stamps last_login_at.
	TouchLogin bool
}

// UserPatch is a partial update; nil means unchanged.
type UserPatch struct {
	Email     *string
	FirstName *string
	LastName  *string
	Role      *Role
	Specialty *string
	IsActive  *bool
}

func (p UserPatch) Empty() bool {
	return p.Email == nil && p.FirstName == nil && p.LastName == nil &&
		p.Role == nil && p.Specialty == nil && p.IsActive == nil
}

// Apply returns a copy of u with the patch applied.
func (p UserPatch) Apply(u User) User {
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.FirstName != nil {
		u.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		u.LastName = *p.LastName
	}
	if p.Role != nil {
		u.Role = *p.Role
	}
	if p.Specialty != nil {
		u.Specialty = *p.Specialty
	}
	if p.IsActive != nil {
		u.IsActive = *p.IsActive
	}
	if u.Role != RoleProvider {
		u.Specialty = ""
	}
	return u
}
