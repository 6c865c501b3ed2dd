// Package incentive awards fungible tokens for subject actions. Amounts come
// from a fixed, server-owned rate table; a caller can never influence them.
package incentive

import (
	"context"
	"errors"
	"log/slog"

	"helixpass/internal/domain"
	"helixpass/internal/ledger"
	"helixpass/internal/platform/config"
	id "helixpass/pkg/domain"
	dErrors "helixpass/pkg/domain-errors"
	"helixpass/pkg/platform/sentinel"
	"helixpass/pkg/requestcontext"
)

// rateTable maps action types to award amounts. Server-owned; request-supplied
// amounts are never honored.
var rateTable = map[id.ActionType]int64{
	id.ActionDataSync:         100,
	id.ActionResearchConsent:  150,
	id.ActionPassportCreation: 200,
}

// AmountFor returns the fixed award amount for an action type.
func AmountFor(action id.ActionType) int64 {
	return rateTable[action]
}

// Gateway is the slice of the ledger gateway this service needs.
type Gateway interface {
	IsAssociated(ctx context.Context, subjectID id.SubjectID, token id.TokenID) (bool, error)
	TransferFungible(ctx context.Context, token id.TokenID, amount int64, to id.SubjectID) (string, error)
}

// Service executes incentive awards, gated by an association check and
// deduplicated per (subject, action, consent) tuple.
type Service struct {
	gateway Gateway
	store   Store
	cfg     config.LedgerConfig
	logger  *slog.Logger
	metrics *Metrics
}

func NewService(gateway Gateway, store Store, cfg config.LedgerConfig, logger *slog.Logger, metrics *Metrics) *Service {
	return &Service{gateway: gateway, store: store, cfg: cfg, logger: logger, metrics: metrics}
}

// Award attempts to transfer the fixed amount for actionType to the subject.
//
// Outcomes:
//   - needs_association when the subject has not associated the incentive
//     token; no transfer is attempted (it would fail on the ledger).
//   - awarded with the transfer transaction ID on success.
//   - failed with the ledger error classification on transfer failure.
//
// A prior successful award for the same (subject, action, consent) tuple
// short-circuits to the stored result so a retried request cannot pay twice.
func (s *Service) Award(ctx context.Context, subjectID id.SubjectID, actionType id.ActionType, linkedConsentID id.ConsentID) (*domain.IncentiveAward, error) {
	if !actionType.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid action type")
	}
	amount := rateTable[actionType]

	if prior, err := s.store.Find(ctx, subjectID, actionType, linkedConsentID); err == nil && prior.Status == domain.AwardGranted {
		s.logger.InfoContext(ctx, "duplicate award attempt short-circuited",
			"subject_id", subjectID,
			"action_type", actionType,
			"consent_id", linkedConsentID,
		)
		return prior, nil
	} else if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodePersistence, "look up prior award")
	}

	award := &domain.IncentiveAward{
		SubjectID:       subjectID,
		ActionType:      actionType,
		Amount:          amount,
		LinkedConsentID: linkedConsentID,
		CreatedAt:       requestcontext.Now(ctx),
	}

	associated, err := s.gateway.IsAssociated(ctx, subjectID, s.cfg.IncentiveTokenID)
	if err != nil {
		// Treat an unreadable association state as not associated: better to
		// defer the award than to burn a doomed transfer.
		s.logger.WarnContext(ctx, "association check failed, deferring award",
			"subject_id", subjectID,
			"error", err,
		)
		associated = false
	}
	if !associated {
		award.Status = domain.AwardNeedsAssociation
		s.record(ctx, award)
		s.metrics.outcome(domain.AwardNeedsAssociation)
		return award, nil
	}

	txID, err := s.gateway.TransferFungible(ctx, s.cfg.IncentiveTokenID, amount, subjectID)
	if err != nil {
		award.Status = domain.AwardFailed
		s.record(ctx, award)
		s.metrics.outcome(domain.AwardFailed)
		s.logger.ErrorContext(ctx, "incentive transfer failed",
			"subject_id", subjectID,
			"action_type", actionType,
			"kind", ledger.KindOf(err),
			"error", err,
		)
		return award, nil
	}

	award.Status = domain.AwardGranted
	award.TxID = txID
	s.record(ctx, award)
	s.metrics.outcome(domain.AwardGranted)
	return award, nil
}

// record persists the attempt. Persistence problems are logged, not fatal:
// the award outcome already happened on the ledger.
func (s *Service) record(ctx context.Context, award *domain.IncentiveAward) {
	if err := s.store.Save(ctx, award); err != nil && !errors.Is(err, sentinel.ErrDuplicate) {
		s.logger.ErrorContext(ctx, "persist incentive award attempt",
			"subject_id", award.SubjectID,
			"error", err,
		)
	}
}
