package reconcile

import "github.com/baechuer/medimg-identity/internal/domain"

// Outcome is the result of a reconciliation. It is one of Authenticated,
// NeedsVerification or Failed.
type Outcome interface {
	Kind() string
	sealed()
}

const (
	OutcomeAuthenticated     = "authenticated"
	OutcomeNeedsVerification = "needs_verification"
	OutcomeFailed            = "failed"
)

type Authenticated struct {
	Role           domain.Role
	RedirectTarget string
	User           domain.User
}

type NeedsVerification struct {
	Strategy          string
	VerificationToken string
	// SafeIdentifier is the masked destination of the challenge, if any.
	SafeIdentifier string
}

// Failed always asks the caller to sign the session out.
type Failed struct {
	Reason  FailureReason
	SignOut bool
}

func (Authenticated) Kind() string     { return OutcomeAuthenticated }
func (NeedsVerification) Kind() string { return OutcomeNeedsVerification }
func (Failed) Kind() string            { return OutcomeFailed }

func (Authenticated) sealed()     {}
func (NeedsVerification) sealed() {}
func (Failed) sealed()            {}

type FailureReason string

const (
	ReasonSignInIncomplete    FailureReason = "sign_in_incomplete"
	ReasonIdentityUnavailable FailureReason = "identity_unavailable"
	ReasonIdentityInvalid     FailureReason = "identity_invalid"
	ReasonRoleUnresolved      FailureReason = "role_unresolved"
	ReasonSyncFailed          FailureReason = "sync_failed"
	ReasonAccountInactive     FailureReason = "account_inactive"
)

// Message is the short text shown on the sign-in page.
func (r FailureReason) Message() string {
	switch r {
	case ReasonSignInIncomplete:
		return "sign-in could not be completed"
	case ReasonIdentityUnavailable:
		return "identity service is unavailable, please try again"
	case ReasonRoleUnresolved:
		return "no role is assigned to this account"
	case ReasonSyncFailed:
		return "your account could not be synchronized, please try again"
	case ReasonAccountInactive:
		return "this account is inactive"
	default:
		return "your account could not be verified"
	}
}
