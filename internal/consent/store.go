// Package consent owns the persistent consent record: the authoritative
// off-chain record of every consent decision. The store is append-only per
// subject and type; revocation is the single allowed mutation path, plus the
// late revocation-transaction patch.
package consent

import (
	"context"
	"time"

	"helixpass/internal/domain"
	id "helixpass/pkg/domain"
)

// Store is the persistence contract for consent records.
//
// Implementations return sentinel.ErrNotFound when the record does not exist
// and sentinel.ErrAlreadyRevoked when a revocation targets an already-revoked
// record. No field may be mutated post-grant except through
// UpdateStatusToRevoked and AttachRevocationTx.
type Store interface {
	// Insert writes a new record. The record's ConsentID must be fresh;
	// records are never overwritten.
	Insert(ctx context.Context, record *domain.ConsentRecord) error

	// FindByID loads one record.
	FindByID(ctx context.Context, consentID id.ConsentID) (*domain.ConsentRecord, error)

	// FindActiveByTypeAndSubject returns the granted, non-revoked record for
	// the subject and type, if any.
	FindActiveByTypeAndSubject(ctx context.Context, subjectID id.SubjectID, consentType id.ConsentType) (*domain.ConsentRecord, error)

	// ListBySubject returns the subject's full consent lineage, newest first.
	ListBySubject(ctx context.Context, subjectID id.SubjectID) ([]*domain.ConsentRecord, error)

	// FindByCredential loads the record referencing a credential serial.
	FindByCredential(ctx context.Context, collectionID id.CollectionID, serial int64) (*domain.ConsentRecord, error)

	// ListGranted returns every currently granted record. Used by the
	// reconciliation sweeper.
	ListGranted(ctx context.Context) ([]*domain.ConsentRecord, error)

	// UpdateStatusToRevoked marks a granted record revoked. It is the only
	// status mutation the store allows and is atomic: a concurrent revoke of
	// the same record sees ErrAlreadyRevoked.
	UpdateStatusToRevoked(ctx context.Context, consentID id.ConsentID, revocation domain.Revocation, revokedAt time.Time) error

	// AttachRevocationTx records the late-arriving consensus-log transaction
	// ID on an already-revoked record.
	AttachRevocationTx(ctx context.Context, consentID id.ConsentID, txID string) error
}
