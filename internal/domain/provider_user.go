package domain

import "strings"

// ProviderUser is the provider's user object as it appears both in the
// backend API and in webhook payloads.
type ProviderUser struct {
	ID                    string                 `json:"id"`
	FirstName             *string                `json:"first_name"`
	LastName              *string                `json:"last_name"`
	PrimaryEmailAddressID string                 `json:"primary_email_address_id"`
	EmailAddresses        []ProviderEmailAddress `json:"email_addresses"`
	PublicMetadata        map[string]any         `json:"public_metadata"`
	UnsafeMetadata        map[string]any         `json:"unsafe_metadata"`
}

type ProviderEmailAddress struct {
	ID           string `json:"id"`
	EmailAddress string `json:"email_address"`
	Verification *struct {
		Status string `json:"status"`
	} `json:"verification"`
}

func (e ProviderEmailAddress) Verified() bool {
	return e.Verification != nil && e.Verification.Status == "verified"
}

// PrimaryEmail picks the primary address, else the first verified one,
// else the first one listed.
func (u ProviderUser) PrimaryEmail() (ProviderEmailAddress, bool) {
	var firstVerified, first *ProviderEmailAddress
	for i := range u.EmailAddresses {
		e := &u.EmailAddresses[i]
		if strings.TrimSpace(e.EmailAddress) == "" {
			continue
		}
		if e.ID != "" && e.ID == u.PrimaryEmailAddressID {
			return *e, true
		}
		if first == nil {
			first = e
		}
		if firstVerified == nil && e.Verified() {
			firstVerified = e
		}
	}
	if firstVerified != nil {
		return *firstVerified, true
	}
	if first != nil {
		return *first, true
	}
	return ProviderEmailAddress{}, false
}

func (u ProviderUser) Identity() Identity {
	id := Identity{
		SubjectID:      strings.TrimSpace(u.ID),
		PublicMetadata: u.PublicMetadata,
		UnsafeMetadata: u.UnsafeMetadata,
	}
	if u.FirstName != nil {
		id.FirstName = strings.TrimSpace(*u.FirstName)
	}
	if u.LastName != nil {
		id.LastName = strings.TrimSpace(*u.LastName)
	}
	if e, ok := u.PrimaryEmail(); ok {
		id.Email = strings.TrimSpace(e.EmailAddress)
		id.EmailVerified = e.Verified()
	}
	return id
}
