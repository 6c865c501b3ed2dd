package audit

import (
	"context"

	"github.com/google/uuid"

	"helixpass/internal/domain"
	id "helixpass/pkg/domain"
	dErrors "helixpass/pkg/domain-errors"
	"helixpass/pkg/requestcontext"
)

// Publisher echoes appended entries to a stream for downstream consumers.
// Publication is best-effort; the store append is the fail-closed write.
type Publisher interface {
	Publish(ctx context.Context, entry *domain.AuditEntry)
}

// Service captures structured audit entries. It is append-only and uses the
// store for persistence so tests can swap sinks easily.
type Service struct {
	store     Store
	publisher Publisher
}

func NewService(store Store, publisher Publisher) *Service {
	return &Service{store: store, publisher: publisher}
}

// Append persists an entry, assigning its ID and timestamp when unset, then
// echoes it to the stream. The echo cannot fail the append.
func (s *Service) Append(ctx context.Context, entry *domain.AuditEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = requestcontext.Now(ctx)
	}
	if entry.Metadata == nil {
		entry.Metadata = map[string]string{}
	}
	if ua := requestcontext.UserAgent(ctx); ua != "" {
		entry.Metadata["client"] = ua
	}
	if reqID := requestcontext.RequestID(ctx); reqID != "" {
		entry.Metadata["request_id"] = reqID
	}

	if err := s.store.Append(ctx, entry); err != nil {
		return dErrors.Wrap(err, dErrors.CodePersistence, "append audit entry")
	}
	if s.publisher != nil {
		s.publisher.Publish(ctx, entry)
	}
	return nil
}

// ListBySubject returns the subject's activity history, newest first.
func (s *Service) ListBySubject(ctx context.Context, subjectID id.SubjectID) ([]*domain.AuditEntry, error) {
	entries, err := s.store.ListBySubject(ctx, subjectID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodePersistence, "list audit entries")
	}
	return entries, nil
}

// ConsentEntry builds a category=consent entry for a saga terminal state.
func ConsentEntry(subjectID id.SubjectID, action, decision string, consentID id.ConsentID, linkedTxID string) *domain.AuditEntry {
	return &domain.AuditEntry{
		SubjectID:  subjectID,
		Category:   domain.AuditConsent,
		Action:     action,
		Decision:   decision,
		Metadata:   map[string]string{"consent_id": consentID.String()},
		LinkedTxID: linkedTxID,
	}
}

// IncentiveEntry builds a category=incentive entry for an award outcome.
func IncentiveEntry(subjectID id.SubjectID, action string, award *domain.IncentiveAward) *domain.AuditEntry {
	return &domain.AuditEntry{
		SubjectID: subjectID,
		Category:  domain.AuditIncentive,
		Action:    action,
		Decision:  string(award.Status),
		Metadata: map[string]string{
			"consent_id":  award.LinkedConsentID.String(),
			"action_type": award.ActionType.String(),
		},
		LinkedTxID: award.TxID,
	}
}
