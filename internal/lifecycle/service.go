// Package lifecycle orchestrates the grant and revoke sagas. The sagas
// coordinate two systems that share no transaction: the ledger network and the
// consent store. Each step has an explicit failure policy; once a grant saga
// reaches minting it runs to a terminal state even if the caller goes away.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"helixpass/internal/audit"
	"helixpass/internal/consent"
	"helixpass/internal/domain"
	"helixpass/internal/ledger"
	"helixpass/internal/platform/config"
	"helixpass/internal/signing"
	id "helixpass/pkg/domain"
	dErrors "helixpass/pkg/domain-errors"
	"helixpass/pkg/platform/sentinel"
	"helixpass/pkg/requestcontext"
)

// Gateway is the slice of the ledger gateway the sagas drive.
type Gateway interface {
	Associate(ctx context.Context, subjectID id.SubjectID, collectionID id.CollectionID) (string, error)
	Mint(ctx context.Context, collectionID id.CollectionID, metadata []byte) (int64, error)
	Transfer(ctx context.Context, collectionID id.CollectionID, serial int64, to id.SubjectID) (string, error)
	SubmitLog(ctx context.Context, topicID string, message []byte) (string, error)
}

// Awarder issues the incentive for a completed grant.
type Awarder interface {
	Award(ctx context.Context, subjectID id.SubjectID, actionType id.ActionType, linkedConsentID id.ConsentID) (*domain.IncentiveAward, error)
}

// GrantRequest carries a validated-by-the-saga grant intent. Amounts and
// ledger identifiers never come from the request.
type GrantRequest struct {
	SubjectID   id.SubjectID
	ConsentType id.ConsentType
	DataTypes   []string
	Purposes    []string
	ValidFrom   time.Time
	ValidUntil  *time.Time
}

// GrantResult is the terminal state of a completed grant saga.
type GrantResult struct {
	Consent   *domain.ConsentRecord
	Incentive *domain.IncentiveAward // nil when the award itself errored
	Steps     []StepResult
}

// RevokeRequest carries a revocation intent. RevokedBy is the authenticated
// subject, never a request field.
type RevokeRequest struct {
	ConsentID id.ConsentID
	Reason    string
	RevokedBy id.SubjectID
}

// RevokeResult is the terminal state of a revoke saga. RevocationTxID is empty
// when the best-effort consensus-log echo failed.
type RevokeResult struct {
	ConsentID      id.ConsentID
	Status         domain.ConsentStatus
	RevokedAt      time.Time
	RevocationTxID string
}

// Service runs the consent sagas.
type Service struct {
	gateway    Gateway
	store      consent.Store
	audits     *audit.Service
	incentives Awarder
	cfg        config.LedgerConfig
	assocWait  time.Duration
	logger     *slog.Logger
	metrics    *Metrics
	tracer     trace.Tracer
}

func NewService(gateway Gateway, store consent.Store, audits *audit.Service, incentives Awarder, cfg config.Server, logger *slog.Logger, metrics *Metrics) *Service {
	return &Service{
		gateway:    gateway,
		store:      store,
		audits:     audits,
		incentives: incentives,
		cfg:        cfg.Ledger,
		assocWait:  cfg.AssociationTimeout,
		logger:     logger,
		metrics:    metrics,
		tracer:     otel.Tracer("helixpass/lifecycle"),
	}
}

// Grant runs the grant saga:
//
//	validate -> awaiting_association -> minting -> transferring -> persisting
//	         -> best_effort_logging -> awarding_incentive
//
// Validation and association failures happen before any ledger side effect and
// surface as validation / prerequisite errors. From minting onward the saga is
// detached from the caller's cancellation and always reaches a terminal state,
// with exactly one consent audit entry recording it.
func (s *Service) Grant(ctx context.Context, req GrantRequest) (*GrantResult, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "lifecycle.grant", trace.WithAttributes(
		attribute.String("consent.type", req.ConsentType.String()),
	))
	defer span.End()

	if err := s.validateGrant(ctx, req); err != nil {
		span.SetStatus(codes.Error, "rejected before side effects")
		s.metrics.outcome("grant", "rejected", time.Since(start).Seconds())
		return nil, err
	}

	consentID := id.NewConsentID()
	hash := contentHash(req.SubjectID, req.ConsentType, req.DataTypes, req.Purposes, req.ValidFrom, req.ValidUntil)
	span.SetAttributes(attribute.String("consent.id", consentID.String()))
	steps := []StepResult{stepOK(StepValidate, "")}

	fail := func(step SagaStep, err error) (*GrantResult, error) {
		s.metrics.stepFailure(step, StepHardFailure)
		s.metrics.outcome("grant", "failed", time.Since(start).Seconds())
		span.RecordError(err)
		span.SetStatus(codes.Error, string(step))
		entry := audit.ConsentEntry(req.SubjectID, domain.AuditConsentGrantFailed, "failed", consentID, "")
		entry.Metadata["step"] = string(step)
		// The terminal entry must survive a caller that already went away.
		s.append(context.WithoutCancel(ctx), entry)
		return nil, err
	}

	// The subject must associate the collection before a serial can be
	// transferred to them. Subject-signed, so it is the one step bounded by a
	// caller-visible timeout.
	actx, cancel := context.WithTimeout(ctx, s.assocWait)
	assocTx, err := s.gateway.Associate(actx, req.SubjectID, s.cfg.CollectionID)
	cancel()
	if err != nil {
		span.AddEvent("association not completed")
		switch {
		case errors.Is(err, signing.ErrRejected):
			return fail(StepAwaitingAssociation, dErrors.New(dErrors.CodePrerequisiteNotMet, "subject declined the collection association"))
		case errors.Is(err, context.DeadlineExceeded):
			return fail(StepAwaitingAssociation, dErrors.New(dErrors.CodePrerequisiteNotMet, "subject did not sign the association in time"))
		default:
			return fail(StepAwaitingAssociation, dErrors.Wrap(err, dErrors.CodeInternal, "request collection association"))
		}
	}
	steps = append(steps, stepOK(StepAwaitingAssociation, assocTx))
	span.AddEvent("associated")

	// Ledger effects begin here. Detach from the caller so an abandoned
	// request cannot leave a mint without its transfer and store write.
	sctx := context.WithoutCancel(ctx)

	serial, err := s.gateway.Mint(sctx, s.cfg.CollectionID, []byte(hash))
	if err != nil {
		return fail(StepMinting, s.wrapLedger(err, "mint credential"))
	}
	steps = append(steps, stepOK(StepMinting, ""))
	span.AddEvent("minted", trace.WithAttributes(attribute.Int64("credential.serial", serial)))

	issuanceTx, err := s.gateway.Transfer(sctx, s.cfg.CollectionID, serial, req.SubjectID)
	if err != nil {
		// The serial stays with the treasury; the sweeper will surface it.
		s.metrics.strandedSerial()
		s.logger.ErrorContext(sctx, "credential stranded in treasury after failed transfer",
			"consent_id", consentID,
			"serial", serial,
			"error", err,
		)
		return fail(StepTransferring, s.wrapLedger(err, "transfer credential"))
	}
	steps = append(steps, stepOK(StepTransferring, issuanceTx))

	now := requestcontext.Now(ctx)
	record := &domain.ConsentRecord{
		ConsentID:   consentID,
		SubjectID:   req.SubjectID,
		ConsentType: req.ConsentType,
		DataTypes:   req.DataTypes,
		Purposes:    req.Purposes,
		ValidFrom:   req.ValidFrom,
		ValidUntil:  req.ValidUntil,
		Status:      domain.ConsentGranted,
		Credential: &domain.CredentialRef{
			CollectionID: s.cfg.CollectionID,
			SerialNumber: serial,
			IssuanceTxID: issuanceTx,
		},
		ContentHash: hash,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Insert(sctx, record); err != nil {
		// The credential exists on the ledger with no matching record. This is
		// the one state the saga cannot repair; the sweeper reports it.
		s.logger.ErrorContext(sctx, "consent issued on ledger but store write failed",
			"consent_id", consentID,
			"serial", serial,
			"error", err,
		)
		return fail(StepPersisting, dErrors.Wrap(err, dErrors.CodeInconsistentState, "credential issued but consent record not persisted"))
	}
	steps = append(steps, stepOK(StepPersisting, ""))

	// Everything from here on is best-effort; the grant already succeeded.
	logTx := ""
	if tx, err := s.gateway.SubmitLog(sctx, s.cfg.ConsentTopicID, encodeLogMessage("granted", consentID, hash)); err != nil {
		s.metrics.stepFailure(StepLogging, StepSoftFailure)
		s.logger.WarnContext(sctx, "consensus-log echo failed for grant",
			"consent_id", consentID,
			"error", err,
		)
		steps = append(steps, stepSoft(StepLogging, err))
	} else {
		logTx = tx
		steps = append(steps, stepOK(StepLogging, tx))
	}

	award, err := s.incentives.Award(sctx, req.SubjectID, id.ActionForConsent(req.ConsentType), consentID)
	if err != nil {
		s.metrics.stepFailure(StepAwardingIncentive, StepSoftFailure)
		s.logger.ErrorContext(sctx, "incentive award errored; grant stands",
			"consent_id", consentID,
			"error", err,
		)
		steps = append(steps, stepSoft(StepAwardingIncentive, err))
	} else {
		steps = append(steps, stepOK(StepAwardingIncentive, award.TxID))
		s.append(sctx, audit.IncentiveEntry(req.SubjectID, incentiveAction(award.Status), award))
	}

	entry := audit.ConsentEntry(req.SubjectID, domain.AuditConsentGranted, "completed", consentID, issuanceTx)
	entry.Metadata["content_hash"] = hash
	if logTx != "" {
		entry.Metadata["log_tx_id"] = logTx
	}
	s.append(sctx, entry)

	s.metrics.outcome("grant", "completed", time.Since(start).Seconds())
	return &GrantResult{Consent: record, Incentive: award, Steps: steps}, nil
}

// Revoke runs the revoke saga. The store write is the revocation: it happens
// first and alone decides validity. The consensus-log echo and the transaction
// ID patch that follow are best-effort.
func (s *Service) Revoke(ctx context.Context, req RevokeRequest) (*RevokeResult, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "lifecycle.revoke", trace.WithAttributes(
		attribute.String("consent.id", req.ConsentID.String()),
	))
	defer span.End()

	reject := func(decision string, err error) (*RevokeResult, error) {
		s.metrics.outcome("revoke", "rejected", time.Since(start).Seconds())
		span.SetStatus(codes.Error, decision)
		entry := audit.ConsentEntry(req.RevokedBy, domain.AuditConsentRevokeRejected, decision, req.ConsentID, "")
		s.append(context.WithoutCancel(ctx), entry)
		return nil, err
	}

	if req.Reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "revocation reason is required")
	}
	if req.RevokedBy == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "revoking subject is required")
	}

	record, err := s.store.FindByID(ctx, req.ConsentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return reject("not_found", dErrors.New(dErrors.CodePrerequisiteNotMet, "consent not found"))
		}
		return nil, dErrors.Wrap(err, dErrors.CodePersistence, "load consent record")
	}
	if record.SubjectID != req.RevokedBy {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "consent belongs to a different subject")
	}
	if record.Revocation != nil || record.Status == domain.ConsentRevoked {
		return reject("already_revoked", dErrors.New(dErrors.CodePrerequisiteNotMet, "consent already revoked"))
	}

	revokedAt := requestcontext.Now(ctx)
	revocation := domain.Revocation{Reason: req.Reason, RevokedBy: req.RevokedBy, RevokedAt: revokedAt}
	if err := s.store.UpdateStatusToRevoked(ctx, req.ConsentID, revocation, revokedAt); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyRevoked) {
			// Lost the race with a concurrent revoke of the same record.
			return reject("already_revoked", dErrors.New(dErrors.CodePrerequisiteNotMet, "consent already revoked"))
		}
		if errors.Is(err, sentinel.ErrNotFound) {
			return reject("not_found", dErrors.New(dErrors.CodePrerequisiteNotMet, "consent not found"))
		}
		s.metrics.outcome("revoke", "failed", time.Since(start).Seconds())
		span.RecordError(err)
		return nil, dErrors.Wrap(err, dErrors.CodePersistence, "revoke consent record")
	}
	span.AddEvent("revoked in store")

	// The revocation is already effective; nothing below may undo or fail it.
	sctx := context.WithoutCancel(ctx)

	revocationTx := ""
	if tx, err := s.gateway.SubmitLog(sctx, s.cfg.ConsentTopicID, encodeLogMessage("revoked", req.ConsentID, record.ContentHash)); err != nil {
		s.metrics.stepFailure(StepLogging, StepSoftFailure)
		s.logger.WarnContext(sctx, "consensus-log echo failed for revocation",
			"consent_id", req.ConsentID,
			"error", err,
		)
	} else {
		revocationTx = tx
		if err := s.store.AttachRevocationTx(sctx, req.ConsentID, tx); err != nil {
			s.logger.WarnContext(sctx, "could not attach revocation transaction id",
				"consent_id", req.ConsentID,
				"error", err,
			)
		}
	}

	entry := audit.ConsentEntry(req.RevokedBy, domain.AuditConsentRevoked, "completed", req.ConsentID, revocationTx)
	entry.Metadata["reason"] = req.Reason
	s.append(sctx, entry)

	s.metrics.outcome("revoke", "completed", time.Since(start).Seconds())
	return &RevokeResult{
		ConsentID:      req.ConsentID,
		Status:         domain.ConsentRevoked,
		RevokedAt:      revokedAt,
		RevocationTxID: revocationTx,
	}, nil
}

// validateGrant rejects malformed or duplicate grants before any side effect.
func (s *Service) validateGrant(ctx context.Context, req GrantRequest) error {
	switch {
	case req.SubjectID == "":
		return dErrors.New(dErrors.CodeValidation, "subject is required")
	case !req.ConsentType.IsValid():
		return dErrors.New(dErrors.CodeValidation, "unknown consent type")
	case len(req.DataTypes) == 0:
		return dErrors.New(dErrors.CodeValidation, "at least one data type is required")
	case len(req.Purposes) == 0:
		return dErrors.New(dErrors.CodeValidation, "at least one purpose is required")
	case req.ValidFrom.IsZero():
		return dErrors.New(dErrors.CodeValidation, "validFrom is required")
	case req.ValidUntil != nil && !req.ValidUntil.After(req.ValidFrom):
		return dErrors.New(dErrors.CodeValidation, "validUntil must be after validFrom")
	}

	if _, err := s.store.FindActiveByTypeAndSubject(ctx, req.SubjectID, req.ConsentType); err == nil {
		return dErrors.New(dErrors.CodePrerequisiteNotMet, "an active consent of this type already exists")
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodePersistence, "check for active consent")
	}
	return nil
}

func (s *Service) wrapLedger(err error, msg string) error {
	if ledger.IsRetryable(err) {
		return dErrors.Wrap(err, dErrors.CodeLedgerRetryable, msg)
	}
	return dErrors.Wrap(err, dErrors.CodeLedgerTerminal, msg)
}

// append writes an audit entry. Audit persistence problems are logged; they
// never change a saga outcome that already happened.
func (s *Service) append(ctx context.Context, entry *domain.AuditEntry) {
	if err := s.audits.Append(ctx, entry); err != nil {
		s.logger.ErrorContext(ctx, "append audit entry",
			"action", entry.Action,
			"error", err,
		)
	}
}

func incentiveAction(status domain.AwardStatus) string {
	switch status {
	case domain.AwardGranted:
		return domain.AuditIncentiveAwarded
	case domain.AwardNeedsAssociation:
		return domain.AuditIncentivePending
	default:
		return domain.AuditIncentiveFailed
	}
}
