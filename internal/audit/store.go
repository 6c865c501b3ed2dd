// Package audit owns the append-only activity log. It is the compliance-grade
// record: entries are never updated or deleted and must survive even if a
// later reconciliation changes downstream credential state.
package audit

import (
	"context"

	"helixpass/internal/domain"
	id "helixpass/pkg/domain"
)

// Store is the persistence contract for audit entries. Append and query only.
type Store interface {
	Append(ctx context.Context, entry *domain.AuditEntry) error
	ListBySubject(ctx context.Context, subjectID id.SubjectID) ([]*domain.AuditEntry, error)
}
