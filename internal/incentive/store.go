package incentive

import (
	"context"

	"helixpass/internal/domain"
	id "helixpass/pkg/domain"
)

// Store persists award attempts keyed by (subject, action, consent).
// Save upserts: a later attempt for the same tuple overwrites a
// needs_association or failed row, but never an awarded one.
type Store interface {
	Save(ctx context.Context, award *domain.IncentiveAward) error
	Find(ctx context.Context, subjectID id.SubjectID, actionType id.ActionType, linkedConsentID id.ConsentID) (*domain.IncentiveAward, error)
}
