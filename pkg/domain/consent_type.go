package domain

import dErrors "helixpass/pkg/domain-errors"

// ConsentType identifies what kind of data-sharing decision a record captures.
// Invariant: the value must be one of the supported consent types.
//
// Usage: construct via ParseConsentType at trust boundaries to enforce the
// allowlist; direct casting bypasses validation.
type ConsentType string

// Supported consent types.
const (
	ConsentTypeResearch        ConsentType = "research_consent"
	ConsentTypeDataSync        ConsentType = "data_sync"
	ConsentTypeGenomicPassport ConsentType = "genomic_passport"
)

// validConsentTypes is the single source of truth for valid consent types.
var validConsentTypes = map[ConsentType]bool{
	ConsentTypeResearch:        true,
	ConsentTypeDataSync:        true,
	ConsentTypeGenomicPassport: true,
}

// ParseConsentType constructs a ConsentType from external input.
//
// Errors: returns CodeValidation when the value is empty or unsupported.
func ParseConsentType(s string) (ConsentType, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeValidation, "consent type cannot be empty")
	}
	t := ConsentType(s)
	if !t.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "invalid consent type")
	}
	return t, nil
}

// IsValid checks if the consent type is one of the supported enum values.
func (t ConsentType) IsValid() bool { return validConsentTypes[t] }

func (t ConsentType) String() string { return string(t) }

// ActionType identifies a rewardable subject action. The incentive rate table
// is keyed by ActionType and owned entirely by the server.
type ActionType string

const (
	ActionDataSync         ActionType = "data_sync"
	ActionResearchConsent  ActionType = "research_consent"
	ActionPassportCreation ActionType = "passport_creation"
)

var validActionTypes = map[ActionType]bool{
	ActionDataSync:         true,
	ActionResearchConsent:  true,
	ActionPassportCreation: true,
}

// IsValid checks if the action type is one of the supported enum values.
func (a ActionType) IsValid() bool { return validActionTypes[a] }

func (a ActionType) String() string { return string(a) }

// ActionForConsent maps a consent type to the action rewarded when that
// consent is granted.
func ActionForConsent(t ConsentType) ActionType {
	switch t {
	case ConsentTypeDataSync:
		return ActionDataSync
	case ConsentTypeGenomicPassport:
		return ActionPassportCreation
	default:
		return ActionResearchConsent
	}
}
