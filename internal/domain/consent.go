package domain

import (
	"time"

	id "helixpass/pkg/domain"
)

// ConsentStatus is the lifecycle state of a consent record. The store flag is
// the single source of truth for revocation; the ledger is a secondary signal.
type ConsentStatus string

const (
	ConsentPending ConsentStatus = "pending"
	ConsentGranted ConsentStatus = "granted"
	ConsentRevoked ConsentStatus = "revoked"
)

// CredentialRef points at the non-fungible credential issued for a grant.
type CredentialRef struct {
	CollectionID id.CollectionID
	SerialNumber int64
	IssuanceTxID string
}

// Revocation captures why and by whom a consent was revoked. RevocationTxID
// arrives late, after the best-effort consensus-log echo, and is the only
// field of a revoked record that may still change.
type Revocation struct {
	Reason         string
	RevokedBy      id.SubjectID
	RevokedAt      time.Time
	RevocationTxID string
}

// ConsentRecord is the authoritative off-chain record of one consent
// decision.
//
// Invariants:
//   - Status == granted implies CredentialRef is non-nil and its serial was
//     issued to SubjectID.
//   - Once Status == revoked the record is immutable except for the late
//     RevocationTxID patch.
//   - Re-granting a revoked consent type creates a new ConsentID; lineage is
//     preserved, nothing is ever deleted.
type ConsentRecord struct {
	ConsentID   id.ConsentID
	SubjectID   id.SubjectID
	ConsentType id.ConsentType
	DataTypes   []string
	Purposes    []string
	ValidFrom   time.Time
	ValidUntil  *time.Time // nil = non-expiring
	Status      ConsentStatus
	Credential  *CredentialRef
	ContentHash string // digest of the consent payload; never raw personal data
	Revocation  *Revocation
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// WithinWindow reports whether now falls inside [ValidFrom, ValidUntil].
// A nil ValidUntil means open-ended.
func (c ConsentRecord) WithinWindow(now time.Time) bool {
	if now.Before(c.ValidFrom) {
		return false
	}
	return c.ValidUntil == nil || !now.After(*c.ValidUntil)
}
