package domain

import (
	"time"

	"github.com/google/uuid"

	id "helixpass/pkg/domain"
)

// AuditCategory classifies activity entries for compliance review and the
// user-facing history view.
type AuditCategory string

const (
	AuditConsent   AuditCategory = "consent"
	AuditIncentive AuditCategory = "incentive"
	AuditData      AuditCategory = "data"
	AuditAI        AuditCategory = "ai"
)

// AuditEntry is one append-only activity record. Entries are never mutated or
// deleted; they must survive even if a later reconciliation changes
// downstream credential state.
type AuditEntry struct {
	ID         uuid.UUID
	SubjectID  id.SubjectID
	Category   AuditCategory
	Action     string
	Decision   string
	Metadata   map[string]string
	LinkedTxID string
	Timestamp  time.Time
}

// Audit actions emitted by the consent and incentive flows.
const (
	AuditConsentGranted        = "consent_granted"
	AuditConsentGrantFailed    = "consent_grant_failed"
	AuditConsentRevoked        = "consent_revoked"
	AuditConsentRevokeRejected = "consent_revoke_rejected"
	AuditIncentiveAwarded      = "incentive_awarded"
	AuditIncentivePending      = "incentive_needs_association"
	AuditIncentiveFailed       = "incentive_failed"
	AuditReconcileFinding      = "reconciliation_finding"
)
