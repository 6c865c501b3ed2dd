package lifecycle

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	id "helixpass/pkg/domain"
)

// SagaStep names one stage of the grant or revoke saga.
type SagaStep string

const (
	StepValidate            SagaStep = "validate"
	StepAwaitingAssociation SagaStep = "awaiting_association"
	StepMinting             SagaStep = "minting"
	StepTransferring        SagaStep = "transferring"
	StepPersisting          SagaStep = "persisting"
	StepLogging             SagaStep = "best_effort_logging"
	StepAwardingIncentive   SagaStep = "awarding_incentive"
)

// StepStatus is the per-step failure policy made explicit: a step either
// succeeds, fails softly (logged, saga continues), or fails hard (saga
// aborts at this step and attempts nothing later).
type StepStatus string

const (
	StepOK          StepStatus = "ok"
	StepSoftFailure StepStatus = "soft_failure"
	StepHardFailure StepStatus = "hard_failure"
)

// StepResult is the tagged outcome of one saga step. Soft failures carry the
// error for the audit trail but never propagate to the caller.
type StepResult struct {
	Step   SagaStep
	Status StepStatus
	TxID   string
	Err    error
}

func stepOK(step SagaStep, txID string) StepResult {
	return StepResult{Step: step, Status: StepOK, TxID: txID}
}

func stepSoft(step SagaStep, err error) StepResult {
	return StepResult{Step: step, Status: StepSoftFailure, Err: err}
}

// consentPayload is the canonical form hashed into the on-ledger audit echo.
// It carries no raw personal data beyond the ledger account identifier the
// network already sees.
type consentPayload struct {
	SubjectID   string     `json:"subject_id"`
	ConsentType string     `json:"consent_type"`
	DataTypes   []string   `json:"data_types"`
	Purposes    []string   `json:"purposes"`
	ValidFrom   time.Time  `json:"valid_from"`
	ValidUntil  *time.Time `json:"valid_until,omitempty"`
}

// contentHash digests the consent payload for the consensus-log echo.
func contentHash(subjectID id.SubjectID, consentType id.ConsentType, dataTypes, purposes []string, validFrom time.Time, validUntil *time.Time) string {
	payload, _ := json.Marshal(consentPayload{
		SubjectID:   subjectID.String(),
		ConsentType: consentType.String(),
		DataTypes:   dataTypes,
		Purposes:    purposes,
		ValidFrom:   validFrom.UTC(),
		ValidUntil:  validUntil,
	})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// logMessage is the consensus-log echo body. Hashes only, never payloads.
type logMessage struct {
	Event       string `json:"event"`
	ConsentID   string `json:"consent_id"`
	ContentHash string `json:"content_hash"`
}

func encodeLogMessage(event string, consentID id.ConsentID, hash string) []byte {
	msg, _ := json.Marshal(logMessage{Event: event, ConsentID: consentID.String(), ContentHash: hash})
	return msg
}
