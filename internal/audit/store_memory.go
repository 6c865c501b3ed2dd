package audit

import (
	"context"
	"sync"

	"helixpass/internal/domain"
	id "helixpass/pkg/domain"
)

// InMemoryStore keeps audit entries in process memory.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []*domain.AuditEntry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// cloneEntry copies an entry including its metadata map, so callers cannot
// mutate stored entries through a shared map.
func cloneEntry(entry *domain.AuditEntry) *domain.AuditEntry {
	clone := *entry
	if entry.Metadata != nil {
		clone.Metadata = make(map[string]string, len(entry.Metadata))
		for k, v := range entry.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}

func (s *InMemoryStore) Append(_ context.Context, entry *domain.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, cloneEntry(entry))
	return nil
}

func (s *InMemoryStore) ListBySubject(_ context.Context, subjectID id.SubjectID) ([]*domain.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.AuditEntry
	for _, entry := range s.entries {
		if entry.SubjectID == subjectID {
			out = append(out, cloneEntry(entry))
		}
	}
	return out, nil
}
