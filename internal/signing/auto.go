package signing

import (
	"context"
	"fmt"
	"sync"

	id "helixpass/pkg/domain"
)

// AutoApprove is a Channel that signs every association request immediately.
// Sandbox/local-development use only; real deployments wire a wallet-backed
// channel here.
type AutoApprove struct {
	mu    sync.Mutex
	txSeq int
}

func NewAutoApprove() *AutoApprove { return &AutoApprove{} }

func (a *AutoApprove) RequestAssociation(_ context.Context, _ id.SubjectID, _ id.CollectionID) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.txSeq++
	return fmt.Sprintf("auto-assoc-tx-%d", a.txSeq), nil
}

var _ Channel = (*AutoApprove)(nil)
