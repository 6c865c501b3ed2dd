// Package domain holds shared domain primitives. Values are constructed via
// Parse* functions at trust boundaries so invalid identifiers cannot travel
// into services; direct casting bypasses validation.
package domain

import (
	"github.com/google/uuid"

	dErrors "helixpass/pkg/domain-errors"
)

// ConsentID identifies one consent decision. Globally unique, immutable;
// a re-grant after revocation always gets a fresh ConsentID.
type ConsentID struct{ uuid.UUID }

// NewConsentID generates a fresh ConsentID.
func NewConsentID() ConsentID {
	return ConsentID{uuid.New()}
}

// ParseConsentID constructs a ConsentID from external input.
func ParseConsentID(s string) (ConsentID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ConsentID{}, dErrors.New(dErrors.CodeValidation, "invalid consent id")
	}
	return ConsentID{u}, nil
}

// IsNil reports whether the ID is the zero value.
func (c ConsentID) IsNil() bool { return c.UUID == uuid.Nil }

func (c ConsentID) String() string { return c.UUID.String() }

// SubjectID is the subject's ledger account identifier. The ledger network
// owns the format; we only require it to be non-empty.
type SubjectID string

// ParseSubjectID constructs a SubjectID from external input.
func ParseSubjectID(s string) (SubjectID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeValidation, "subject id cannot be empty")
	}
	return SubjectID(s), nil
}

func (s SubjectID) String() string { return string(s) }

// TokenID identifies a fungible token class on the ledger.
type TokenID string

func (t TokenID) String() string { return string(t) }

// CollectionID identifies a non-fungible credential collection on the ledger.
type CollectionID string

func (c CollectionID) String() string { return string(c) }
