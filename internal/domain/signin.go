package domain

// SignInStatus mirrors the provider's sign-in attempt status.
type SignInStatus string

const (
	SignInComplete            SignInStatus = "complete"
	SignInNeedsFirstFactor    SignInStatus = "needs_first_factor"
	SignInNeedsSecondFactor   SignInStatus = "needs_second_factor"
	SignInMissingRequirements SignInStatus = "missing_requirements"
)

// Second factor strategies the provider can offer.
const (
	StrategyEmailCode  = "email_code"
	StrategyPhoneCode  = "phone_code"
	StrategyTOTP       = "totp"
	StrategyBackupCode = "backup_code"
)

// Factor is one entry of a sign-in's supported factors.
type Factor struct {
	Strategy       string
	EmailAddressID string
	PhoneNumberID  string
	SafeIdentifier string
}

// NeedsPreparation reports whether the provider must send a challenge
// before a code can be attempted.
func (f Factor) NeedsPreparation() bool {
	return f.Strategy == StrategyEmailCode || f.Strategy == StrategyPhoneCode
}

// SignIn is a provider sign-in attempt. UserID and SessionID are set once
// Status is complete.
type SignIn struct {
	ID                     string
	Status                 SignInStatus
	Identifier             string
	UserID                 string
	SessionID              string
	SupportedSecondFactors []Factor
}

var secondFactorPreference = []string{
	StrategyEmailCode,
	StrategyPhoneCode,
	StrategyTOTP,
	StrategyBackupCode,
}

// PickSecondFactor chooses the preferred supported factor. Unknown
// strategies are never picked.
func PickSecondFactor(factors []Factor) (Factor, bool) {
	for _, want := range secondFactorPreference {
		for _, f := range factors {
			if f.Strategy == want {
				return f, true
			}
		}
	}
	return Factor{}, false
}
