package consent

import (
	"context"
	"sort"
	"sync"
	"time"

	"helixpass/internal/domain"
	id "helixpass/pkg/domain"
	"helixpass/pkg/platform/sentinel"
)

// InMemoryStore keeps consent records in process memory. Used in tests and
// local development; the postgres store is the production implementation.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[id.ConsentID]*domain.ConsentRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[id.ConsentID]*domain.ConsentRecord)}
}

// cloneRecord copies a record including its pointer and slice fields, so a
// caller holding a returned record never aliases store-internal state.
func cloneRecord(record *domain.ConsentRecord) *domain.ConsentRecord {
	clone := *record
	clone.DataTypes = append([]string(nil), record.DataTypes...)
	clone.Purposes = append([]string(nil), record.Purposes...)
	if record.Credential != nil {
		cred := *record.Credential
		clone.Credential = &cred
	}
	if record.Revocation != nil {
		rev := *record.Revocation
		clone.Revocation = &rev
	}
	return &clone
}

func (s *InMemoryStore) Insert(_ context.Context, record *domain.ConsentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.ConsentID]; exists {
		return sentinel.ErrDuplicate
	}
	s.records[record.ConsentID] = cloneRecord(record)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, consentID id.ConsentID) (*domain.ConsentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[consentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneRecord(record), nil
}

func (s *InMemoryStore) FindActiveByTypeAndSubject(_ context.Context, subjectID id.SubjectID, consentType id.ConsentType) (*domain.ConsentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, record := range s.records {
		if record.SubjectID == subjectID && record.ConsentType == consentType && record.Status == domain.ConsentGranted {
			return cloneRecord(record), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) ListBySubject(_ context.Context, subjectID id.SubjectID) ([]*domain.ConsentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.ConsentRecord
	for _, record := range s.records {
		if record.SubjectID == subjectID {
			out = append(out, cloneRecord(record))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) FindByCredential(_ context.Context, collectionID id.CollectionID, serial int64) (*domain.ConsentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, record := range s.records {
		if record.Credential != nil && record.Credential.CollectionID == collectionID && record.Credential.SerialNumber == serial {
			return cloneRecord(record), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) ListGranted(_ context.Context) ([]*domain.ConsentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.ConsentRecord
	for _, record := range s.records {
		if record.Status == domain.ConsentGranted {
			out = append(out, cloneRecord(record))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) UpdateStatusToRevoked(_ context.Context, consentID id.ConsentID, revocation domain.Revocation, revokedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[consentID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if record.Status == domain.ConsentRevoked {
		return sentinel.ErrAlreadyRevoked
	}
	record.Status = domain.ConsentRevoked
	rev := revocation
	rev.RevokedAt = revokedAt
	record.Revocation = &rev
	record.UpdatedAt = revokedAt
	return nil
}

func (s *InMemoryStore) AttachRevocationTx(_ context.Context, consentID id.ConsentID, txID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[consentID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if record.Status != domain.ConsentRevoked || record.Revocation == nil {
		return sentinel.ErrNotFound
	}
	record.Revocation.RevocationTxID = txID
	return nil
}
