package domain

import (
	"time"

	id "helixpass/pkg/domain"
)

// AwardStatus is the outcome of one incentive award attempt.
type AwardStatus string

const (
	// AwardGranted means the fungible transfer succeeded.
	AwardGranted AwardStatus = "awarded"
	// AwardNeedsAssociation means the subject has not associated the incentive
	// token; no transfer was attempted. Structured outcome, not an error.
	AwardNeedsAssociation AwardStatus = "needs_association"
	// AwardFailed means the transfer was attempted and the ledger rejected it.
	AwardFailed AwardStatus = "failed"
)

// IncentiveAward records one attempted award. Amount is a pure function of
// ActionType, read from the server-owned rate table; caller-supplied amounts
// are never honored.
type IncentiveAward struct {
	SubjectID       id.SubjectID
	ActionType      id.ActionType
	Amount          int64
	Status          AwardStatus
	TxID            string // empty unless Status == awarded
	LinkedConsentID id.ConsentID
	CreatedAt       time.Time
}
