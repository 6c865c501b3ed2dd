package ledger

import (
	"context"
	"fmt"
	"sync"

	id "helixpass/pkg/domain"
)

// Sandbox is an in-process ledger used when no network adapter is configured:
// local development, demos, smoke tests. It honors the same semantics real
// adapters must provide (treasury custody of fresh mints, association-gated
// fungible transfers) so the sagas behave identically against it.
type Sandbox struct {
	mu           sync.Mutex
	treasury     id.SubjectID
	nextSerial   int64
	txSeq        int
	owners       map[sandboxSerial]id.SubjectID
	associations map[sandboxAssoc]bool
}

type sandboxSerial struct {
	collection id.CollectionID
	serial     int64
}

type sandboxAssoc struct {
	subject id.SubjectID
	token   id.TokenID
}

func NewSandbox(treasury id.SubjectID) *Sandbox {
	return &Sandbox{
		treasury:     treasury,
		owners:       make(map[sandboxSerial]id.SubjectID),
		associations: make(map[sandboxAssoc]bool),
	}
}

// AssociateToken records a token association for a subject. In sandbox mode
// the signing channel calls this instead of a wallet flow.
func (s *Sandbox) AssociateToken(subject id.SubjectID, token id.TokenID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.associations[sandboxAssoc{subject, token}] = true
}

func (s *Sandbox) nextTx() string {
	s.txSeq++
	return fmt.Sprintf("sandbox-tx-%d", s.txSeq)
}

func (s *Sandbox) SubmitMint(_ context.Context, collection id.CollectionID, _ []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSerial++
	s.owners[sandboxSerial{collection, s.nextSerial}] = s.treasury
	return s.nextSerial, nil
}

func (s *Sandbox) SubmitTransfer(_ context.Context, collection id.CollectionID, serial int64, to id.SubjectID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sandboxSerial{collection, serial}
	if s.owners[key] != s.treasury {
		return "", NewError(KindInvalidAccount, "transfer", fmt.Errorf("serial %d not held by treasury", serial))
	}
	s.owners[key] = to
	return s.nextTx(), nil
}

func (s *Sandbox) SubmitMessage(_ context.Context, _ string, _ []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextTx(), nil
}

func (s *Sandbox) SubmitFungibleTransfer(_ context.Context, token id.TokenID, _ int64, to id.SubjectID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.associations[sandboxAssoc{to, token}] {
		return "", NewError(KindInvalidAccount, "fungible", fmt.Errorf("account %s not associated with %s", to, token))
	}
	return s.nextTx(), nil
}

func (s *Sandbox) NFTOwner(_ context.Context, collection id.CollectionID, serial int64) (id.SubjectID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	owner, ok := s.owners[sandboxSerial{collection, serial}]
	if !ok {
		return "", NewError(KindNotFound, "owner", fmt.Errorf("serial %d unknown", serial))
	}
	return owner, nil
}

func (s *Sandbox) TokenAssociated(_ context.Context, subject id.SubjectID, token id.TokenID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.associations[sandboxAssoc{subject, token}], nil
}

func (s *Sandbox) CollectionSerials(_ context.Context, collection id.CollectionID) (map[int64]id.SubjectID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]id.SubjectID)
	for key, owner := range s.owners {
		if key.collection == collection {
			out[key.serial] = owner
		}
	}
	return out, nil
}

var _ Client = (*Sandbox)(nil)
