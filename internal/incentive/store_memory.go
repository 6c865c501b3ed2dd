package incentive

import (
	"context"
	"sync"

	"helixpass/internal/domain"
	id "helixpass/pkg/domain"
	"helixpass/pkg/platform/sentinel"
)

type awardKey struct {
	subject id.SubjectID
	action  id.ActionType
	consent id.ConsentID
}

// InMemoryStore keeps award attempts in process memory.
type InMemoryStore struct {
	mu     sync.RWMutex
	awards map[awardKey]*domain.IncentiveAward
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{awards: make(map[awardKey]*domain.IncentiveAward)}
}

func (s *InMemoryStore) Save(_ context.Context, award *domain.IncentiveAward) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := awardKey{award.SubjectID, award.ActionType, award.LinkedConsentID}
	if existing, ok := s.awards[key]; ok && existing.Status == domain.AwardGranted {
		return sentinel.ErrDuplicate
	}
	clone := *award
	s.awards[key] = &clone
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, subjectID id.SubjectID, actionType id.ActionType, linkedConsentID id.ConsentID) (*domain.IncentiveAward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	award, ok := s.awards[awardKey{subjectID, actionType, linkedConsentID}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *award
	return &clone, nil
}
