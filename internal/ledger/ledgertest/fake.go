// Package ledgertest provides in-memory test doubles for the ledger network
// client and the subject signing channel.
package ledgertest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"helixpass/internal/ledger"
	"helixpass/internal/platform/config"
	"helixpass/internal/signing"
	id "helixpass/pkg/domain"
)

// NewGateway wraps a fake client in a real gateway with a tight retry budget
// suitable for tests.
func NewGateway(client *FakeClient, logger *slog.Logger) *ledger.Gateway {
	cfg := config.LedgerConfig{
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}
	return ledger.NewGateway(client, NewFakeSigner(), cfg, logger, nil)
}

// Treasury is the owner recorded for freshly minted serials.
const Treasury id.SubjectID = "treasury"

type serialKey struct {
	collection id.CollectionID
	serial     int64
}

type assocKey struct {
	subject id.SubjectID
	token   id.TokenID
}

// Message is one consensus-log submission captured by the fake.
type Message struct {
	TopicID string
	Body    []byte
	TxID    string
}

// FungibleTransfer is one incentive transfer captured by the fake.
type FungibleTransfer struct {
	Token  id.TokenID
	Amount int64
	To     id.SubjectID
	TxID   string
}

// FakeClient implements ledger.Client in memory. It records every submission,
// supports scripted failures per operation, and tracks how many operator
// submissions were in flight at once so tests can assert serialization.
type FakeClient struct {
	mu           sync.Mutex
	nextSerial   int64
	txSeq        int
	owners       map[serialKey]id.SubjectID
	associations map[assocKey]bool
	Messages     []Message
	Transfers    []FungibleTransfer
	failures     map[string][]error

	// SubmitDelay makes interleaving observable in concurrency tests.
	SubmitDelay time.Duration

	inFlight      int
	MaxInFlight   int
	submitsByOp   map[string]int
	submitHistory []string
}

func NewFakeClient() *FakeClient {
	return &FakeClient{
		owners:       make(map[serialKey]id.SubjectID),
		associations: make(map[assocKey]bool),
		failures:     make(map[string][]error),
		submitsByOp:  make(map[string]int),
	}
}

// FailNext queues an error for the next call of the named operation
// (mint, transfer, message, fungible, owner, associated, serials).
func (f *FakeClient) FailNext(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = append(f.failures[op], err)
}

// Associate marks the subject as associated with a token.
func (f *FakeClient) Associate(subject id.SubjectID, token id.TokenID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.associations[assocKey{subject, token}] = true
}

// SetOwner overrides the recorded owner of a serial.
func (f *FakeClient) SetOwner(collection id.CollectionID, serial int64, owner id.SubjectID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.owners[serialKey{collection, serial}] = owner
}

// SubmitHistory returns the ordered operation names of all submissions.
func (f *FakeClient) SubmitHistory() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.submitHistory...)
}

// Submits returns how many times the named operation was submitted.
func (f *FakeClient) Submits(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitsByOp[op]
}

func (f *FakeClient) popFailure(op string) error {
	if errs := f.failures[op]; len(errs) > 0 {
		f.failures[op] = errs[1:]
		return errs[0]
	}
	return nil
}

// beginSubmit enters an operator-signed submission. The in-flight gauge is
// what serialization tests assert on.
func (f *FakeClient) beginSubmit(op string) error {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.MaxInFlight {
		f.MaxInFlight = f.inFlight
	}
	f.submitsByOp[op]++
	f.submitHistory = append(f.submitHistory, op)
	err := f.popFailure(op)
	f.mu.Unlock()

	if f.SubmitDelay > 0 {
		time.Sleep(f.SubmitDelay)
	}
	return err
}

func (f *FakeClient) endSubmit() {
	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
}

func (f *FakeClient) nextTx() string {
	f.txSeq++
	return fmt.Sprintf("tx-%d", f.txSeq)
}

func (f *FakeClient) SubmitMint(ctx context.Context, collection id.CollectionID, metadata []byte) (int64, error) {
	if err := f.beginSubmit("mint"); err != nil {
		f.endSubmit()
		return 0, err
	}
	defer f.endSubmit()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextSerial++
	serial := f.nextSerial
	f.owners[serialKey{collection, serial}] = Treasury
	return serial, nil
}

func (f *FakeClient) SubmitTransfer(ctx context.Context, collection id.CollectionID, serial int64, to id.SubjectID) (string, error) {
	if err := f.beginSubmit("transfer"); err != nil {
		f.endSubmit()
		return "", err
	}
	defer f.endSubmit()

	f.mu.Lock()
	defer f.mu.Unlock()
	key := serialKey{collection, serial}
	if f.owners[key] != Treasury {
		return "", ledger.NewError(ledger.KindInvalidAccount, "transfer", fmt.Errorf("serial %d not held by treasury", serial))
	}
	f.owners[key] = to
	return f.nextTx(), nil
}

func (f *FakeClient) SubmitMessage(ctx context.Context, topicID string, message []byte) (string, error) {
	if err := f.beginSubmit("message"); err != nil {
		f.endSubmit()
		return "", err
	}
	defer f.endSubmit()

	f.mu.Lock()
	defer f.mu.Unlock()
	tx := f.nextTx()
	f.Messages = append(f.Messages, Message{TopicID: topicID, Body: append([]byte(nil), message...), TxID: tx})
	return tx, nil
}

func (f *FakeClient) SubmitFungibleTransfer(ctx context.Context, token id.TokenID, amount int64, to id.SubjectID) (string, error) {
	if err := f.beginSubmit("fungible"); err != nil {
		f.endSubmit()
		return "", err
	}
	defer f.endSubmit()

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.associations[assocKey{to, token}] {
		return "", ledger.NewError(ledger.KindInvalidAccount, "fungible", fmt.Errorf("account %s not associated with %s", to, token))
	}
	tx := f.nextTx()
	f.Transfers = append(f.Transfers, FungibleTransfer{Token: token, Amount: amount, To: to, TxID: tx})
	return tx, nil
}

func (f *FakeClient) NFTOwner(ctx context.Context, collection id.CollectionID, serial int64) (id.SubjectID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.popFailure("owner"); err != nil {
		return "", err
	}
	owner, ok := f.owners[serialKey{collection, serial}]
	if !ok {
		return "", ledger.NewError(ledger.KindNotFound, "owner", fmt.Errorf("serial %d unknown", serial))
	}
	return owner, nil
}

func (f *FakeClient) TokenAssociated(ctx context.Context, subject id.SubjectID, token id.TokenID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.popFailure("associated"); err != nil {
		return false, err
	}
	return f.associations[assocKey{subject, token}], nil
}

func (f *FakeClient) CollectionSerials(ctx context.Context, collection id.CollectionID) (map[int64]id.SubjectID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.popFailure("serials"); err != nil {
		return nil, err
	}
	out := make(map[int64]id.SubjectID)
	for key, owner := range f.owners {
		if key.collection == collection {
			out[key.serial] = owner
		}
	}
	return out, nil
}

var _ ledger.Client = (*FakeClient)(nil)

// FakeSigner implements signing.Channel. By default every association request
// is signed immediately.
type FakeSigner struct {
	mu sync.Mutex
	// Reject makes the next request fail with signing.ErrRejected.
	Reject bool
	// Hang makes requests block until the context expires.
	Hang bool

	txSeq    int
	Requests []id.SubjectID
}

func NewFakeSigner() *FakeSigner { return &FakeSigner{} }

func (s *FakeSigner) RequestAssociation(ctx context.Context, subjectID id.SubjectID, collectionID id.CollectionID) (string, error) {
	s.mu.Lock()
	s.Requests = append(s.Requests, subjectID)
	reject, hang := s.Reject, s.Hang
	s.txSeq++
	tx := fmt.Sprintf("assoc-tx-%d", s.txSeq)
	s.mu.Unlock()

	if hang {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if reject {
		return "", signing.ErrRejected
	}
	return tx, nil
}

var _ signing.Channel = (*FakeSigner)(nil)
