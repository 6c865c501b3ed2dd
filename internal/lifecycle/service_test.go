package lifecycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helixpass/internal/audit"
	"helixpass/internal/consent"
	"helixpass/internal/domain"
	"helixpass/internal/incentive"
	"helixpass/internal/ledger"
	"helixpass/internal/ledger/ledgertest"
	"helixpass/internal/platform/config"
	id "helixpass/pkg/domain"
	dErrors "helixpass/pkg/domain-errors"
)

const (
	collection     id.CollectionID = "0.0.9001"
	incentiveToken id.TokenID      = "0.0.5005"
	topicID                        = "0.0.7001"
	subject        id.SubjectID    = "0.0.4521"
)

type fixture struct {
	client  *ledgertest.FakeClient
	signer  *ledgertest.FakeSigner
	store   *consent.InMemoryStore
	audits  *audit.InMemoryStore
	service *Service
}

func buildService(t *testing.T, client *ledgertest.FakeClient, signer *ledgertest.FakeSigner, store consent.Store, auditStore audit.Store) *Service {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	lcfg := config.LedgerConfig{
		CollectionID:     collection,
		IncentiveTokenID: incentiveToken,
		ConsentTopicID:   topicID,
		MaxRetries:       2,
		InitialBackoff:   time.Millisecond,
		MaxBackoff:       2 * time.Millisecond,
	}
	gateway := ledger.NewGateway(client, signer, lcfg, logger, nil)
	audits := audit.NewService(auditStore, nil)
	incentives := incentive.NewService(gateway, incentive.NewInMemoryStore(), lcfg, logger, nil)

	cfg := config.Server{Ledger: lcfg, AssociationTimeout: 50 * time.Millisecond}
	return NewService(gateway, store, audits, incentives, cfg, logger, nil)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := ledgertest.NewFakeClient()
	signer := ledgertest.NewFakeSigner()
	store := consent.NewInMemoryStore()
	auditStore := audit.NewInMemoryStore()
	return &fixture{
		client:  client,
		signer:  signer,
		store:   store,
		audits:  auditStore,
		service: buildService(t, client, signer, store, auditStore),
	}
}

// ctxAuditStore refuses writes once the caller's context is done, the way a
// database-backed store does.
type ctxAuditStore struct {
	*audit.InMemoryStore
}

func (s *ctxAuditStore) Append(ctx context.Context, entry *domain.AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.InMemoryStore.Append(ctx, entry)
}

// failingInsertStore makes every Insert fail after the ledger work succeeded.
type failingInsertStore struct {
	*consent.InMemoryStore
	insertErr error
}

func (s *failingInsertStore) Insert(context.Context, *domain.ConsentRecord) error {
	return s.insertErr
}

func grantRequest(consentType id.ConsentType) GrantRequest {
	return GrantRequest{
		SubjectID:   subject,
		ConsentType: consentType,
		DataTypes:   []string{"heart_rate", "sleep"},
		Purposes:    []string{"research"},
		ValidFrom:   time.Now().Add(-time.Minute),
	}
}

func auditActions(t *testing.T, f *fixture, subjectID id.SubjectID) []string {
	t.Helper()
	entries, err := f.audits.ListBySubject(context.Background(), subjectID)
	require.NoError(t, err)
	out := make([]string, len(entries))
	for i, entry := range entries {
		out[i] = entry.Action
	}
	return out
}

func TestGrantHappyPath(t *testing.T) {
	f := newFixture(t)
	f.client.Associate(subject, incentiveToken)

	result, err := f.service.Grant(context.Background(), grantRequest(id.ConsentTypeResearch))
	require.NoError(t, err)

	record := result.Consent
	assert.Equal(t, domain.ConsentGranted, record.Status)
	require.NotNil(t, record.Credential)
	assert.Equal(t, collection, record.Credential.CollectionID)
	assert.Equal(t, int64(1), record.Credential.SerialNumber)
	assert.NotEmpty(t, record.Credential.IssuanceTxID)
	assert.Len(t, record.ContentHash, 64)

	require.NotNil(t, result.Incentive)
	assert.Equal(t, domain.AwardGranted, result.Incentive.Status)
	assert.Equal(t, int64(150), result.Incentive.Amount)

	assert.Equal(t, 1, f.client.Submits("mint"))
	assert.Equal(t, 1, f.client.Submits("transfer"))
	assert.Equal(t, 1, f.client.Submits("message"))
	assert.Equal(t, 1, f.client.Submits("fungible"))
	assert.Equal(t, []id.SubjectID{subject}, f.signer.Requests)

	owner, err := f.client.NFTOwner(context.Background(), collection, 1)
	require.NoError(t, err)
	assert.Equal(t, subject, owner)

	stored, err := f.store.FindByID(context.Background(), record.ConsentID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConsentGranted, stored.Status)

	assert.Equal(t, []string{domain.AuditIncentiveAwarded, domain.AuditConsentGranted}, auditActions(t, f, subject))
}

func TestGrantWithoutAssociationDefersIncentive(t *testing.T) {
	f := newFixture(t)

	result, err := f.service.Grant(context.Background(), grantRequest(id.ConsentTypeDataSync))
	require.NoError(t, err)

	require.NotNil(t, result.Incentive)
	assert.Equal(t, domain.AwardNeedsAssociation, result.Incentive.Status)
	assert.Equal(t, int64(100), result.Incentive.Amount)
	assert.Empty(t, result.Incentive.TxID)
	assert.Equal(t, 0, f.client.Submits("fungible"))

	assert.Contains(t, auditActions(t, f, subject), domain.AuditIncentivePending)
}

func TestGrantValidation(t *testing.T) {
	f := newFixture(t)

	cases := map[string]func(*GrantRequest){
		"missing subject":  func(r *GrantRequest) { r.SubjectID = "" },
		"bad consent type": func(r *GrantRequest) { r.ConsentType = "mind_reading" },
		"no data types":    func(r *GrantRequest) { r.DataTypes = nil },
		"no purposes":      func(r *GrantRequest) { r.Purposes = nil },
		"zero validFrom":   func(r *GrantRequest) { r.ValidFrom = time.Time{} },
		"inverted window":  func(r *GrantRequest) { until := r.ValidFrom.Add(-time.Hour); r.ValidUntil = &until },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := grantRequest(id.ConsentTypeDataSync)
			mutate(&req)
			_, err := f.service.Grant(context.Background(), req)
			assert.True(t, dErrors.Is(err, dErrors.CodeValidation), "expected validation error, got %v", err)
		})
	}

	// No side effect of any kind before validation passes.
	assert.Empty(t, f.signer.Requests)
	assert.Equal(t, 0, f.client.Submits("mint"))
}

func TestGrantRejectsDuplicateActiveConsent(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Grant(context.Background(), grantRequest(id.ConsentTypeDataSync))
	require.NoError(t, err)

	_, err = f.service.Grant(context.Background(), grantRequest(id.ConsentTypeDataSync))
	assert.True(t, dErrors.Is(err, dErrors.CodePrerequisiteNotMet))
	assert.Equal(t, 1, f.client.Submits("mint"))
}

func TestGrantAssociationRejected(t *testing.T) {
	f := newFixture(t)
	f.signer.Reject = true

	_, err := f.service.Grant(context.Background(), grantRequest(id.ConsentTypeDataSync))
	assert.True(t, dErrors.Is(err, dErrors.CodePrerequisiteNotMet))
	assert.Equal(t, 0, f.client.Submits("mint"))

	entries, listErr := f.audits.ListBySubject(context.Background(), subject)
	require.NoError(t, listErr)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.AuditConsentGrantFailed, entries[0].Action)
	assert.Equal(t, string(StepAwaitingAssociation), entries[0].Metadata["step"])
}

func TestGrantAssociationTimeout(t *testing.T) {
	f := newFixture(t)
	f.signer.Hang = true

	_, err := f.service.Grant(context.Background(), grantRequest(id.ConsentTypeDataSync))
	assert.True(t, dErrors.Is(err, dErrors.CodePrerequisiteNotMet))
	assert.Equal(t, 0, f.client.Submits("mint"))
}

func TestGrantMintFailureAborts(t *testing.T) {
	f := newFixture(t)
	f.client.FailNext("mint", ledger.NewError(ledger.KindSignatureRejected, "mint", errors.New("bad operator key")))

	_, err := f.service.Grant(context.Background(), grantRequest(id.ConsentTypeDataSync))
	assert.True(t, dErrors.Is(err, dErrors.CodeLedgerTerminal))
	assert.Equal(t, 0, f.client.Submits("transfer"))

	_, storeErr := f.store.FindActiveByTypeAndSubject(context.Background(), subject, id.ConsentTypeDataSync)
	assert.Error(t, storeErr, "no record may exist for a failed grant")

	assert.Equal(t, []string{domain.AuditConsentGrantFailed}, auditActions(t, f, subject))
}

func TestGrantTransferFailureStrandsSerial(t *testing.T) {
	f := newFixture(t)
	f.client.FailNext("transfer", ledger.NewError(ledger.KindInvalidAccount, "transfer", errors.New("frozen account")))

	_, err := f.service.Grant(context.Background(), grantRequest(id.ConsentTypeDataSync))
	assert.True(t, dErrors.Is(err, dErrors.CodeLedgerTerminal))

	// The minted serial stays with the treasury for the sweeper to find.
	owner, ownerErr := f.client.NFTOwner(context.Background(), collection, 1)
	require.NoError(t, ownerErr)
	assert.Equal(t, ledgertest.Treasury, owner)

	_, storeErr := f.store.FindActiveByTypeAndSubject(context.Background(), subject, id.ConsentTypeDataSync)
	assert.Error(t, storeErr)
}

func TestGrantFailureAuditSurvivesAbandonedCaller(t *testing.T) {
	client := ledgertest.NewFakeClient()
	auditStore := &ctxAuditStore{audit.NewInMemoryStore()}
	svc := buildService(t, client, ledgertest.NewFakeSigner(), consent.NewInMemoryStore(), auditStore)

	client.FailNext("transfer", ledger.NewError(ledger.KindInvalidAccount, "transfer", errors.New("frozen account")))

	// The caller is already gone when the saga hits its hard failure.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Grant(ctx, grantRequest(id.ConsentTypeDataSync))
	assert.True(t, dErrors.Is(err, dErrors.CodeLedgerTerminal))
	assert.Equal(t, 1, client.Submits("mint"))

	entries, listErr := auditStore.ListBySubject(context.Background(), subject)
	require.NoError(t, listErr)
	require.Len(t, entries, 1, "the terminal entry must be written even though the caller cancelled")
	assert.Equal(t, domain.AuditConsentGrantFailed, entries[0].Action)
	assert.Equal(t, string(StepTransferring), entries[0].Metadata["step"])
}

func TestGrantPersistFailureIsInconsistentState(t *testing.T) {
	client := ledgertest.NewFakeClient()
	store := &failingInsertStore{consent.NewInMemoryStore(), errors.New("connection reset")}
	auditStore := audit.NewInMemoryStore()
	svc := buildService(t, client, ledgertest.NewFakeSigner(), store, auditStore)

	_, err := svc.Grant(context.Background(), grantRequest(id.ConsentTypeDataSync))
	assert.True(t, dErrors.Is(err, dErrors.CodeInconsistentState),
		"a store failure after ledger effects must not look like a clean abort")

	// The credential had already left the treasury when the write failed.
	owner, ownerErr := client.NFTOwner(context.Background(), collection, 1)
	require.NoError(t, ownerErr)
	assert.Equal(t, subject, owner)

	assert.Equal(t, 0, client.Submits("message"), "best-effort steps do not run after a hard failure")
	assert.Equal(t, 0, client.Submits("fungible"))

	entries, listErr := auditStore.ListBySubject(context.Background(), subject)
	require.NoError(t, listErr)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.AuditConsentGrantFailed, entries[0].Action)
	assert.Equal(t, string(StepPersisting), entries[0].Metadata["step"])
}

func TestGrantLogFailureIsSoft(t *testing.T) {
	f := newFixture(t)
	f.client.FailNext("message", ledger.NewError(ledger.KindSignatureRejected, "message", errors.New("topic deleted")))

	result, err := f.service.Grant(context.Background(), grantRequest(id.ConsentTypeDataSync))
	require.NoError(t, err, "the consensus-log echo must never fail a grant")
	assert.Equal(t, domain.ConsentGranted, result.Consent.Status)

	var logStep *StepResult
	for i := range result.Steps {
		if result.Steps[i].Step == StepLogging {
			logStep = &result.Steps[i]
		}
	}
	require.NotNil(t, logStep)
	assert.Equal(t, StepSoftFailure, logStep.Status)

	entries, listErr := f.audits.ListBySubject(context.Background(), subject)
	require.NoError(t, listErr)
	for _, entry := range entries {
		if entry.Action == domain.AuditConsentGranted {
			assert.NotContains(t, entry.Metadata, "log_tx_id")
		}
	}
}

func TestRevokeHappyPath(t *testing.T) {
	f := newFixture(t)
	granted, err := f.service.Grant(context.Background(), grantRequest(id.ConsentTypeDataSync))
	require.NoError(t, err)

	result, err := f.service.Revoke(context.Background(), RevokeRequest{
		ConsentID: granted.Consent.ConsentID,
		Reason:    "user request",
		RevokedBy: subject,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ConsentRevoked, result.Status)
	assert.NotEmpty(t, result.RevocationTxID)

	stored, err := f.store.FindByID(context.Background(), granted.Consent.ConsentID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConsentRevoked, stored.Status)
	require.NotNil(t, stored.Revocation)
	assert.Equal(t, "user request", stored.Revocation.Reason)
	assert.Equal(t, result.RevocationTxID, stored.Revocation.RevocationTxID)

	// Revocation never burns the credential; the ledger still shows ownership.
	owner, err := f.client.NFTOwner(context.Background(), collection, granted.Consent.Credential.SerialNumber)
	require.NoError(t, err)
	assert.Equal(t, subject, owner)

	assert.Contains(t, auditActions(t, f, subject), domain.AuditConsentRevoked)
}

func TestRevokeAlreadyRevokedIsRejected(t *testing.T) {
	f := newFixture(t)
	granted, err := f.service.Grant(context.Background(), grantRequest(id.ConsentTypeDataSync))
	require.NoError(t, err)

	req := RevokeRequest{ConsentID: granted.Consent.ConsentID, Reason: "user request", RevokedBy: subject}
	_, err = f.service.Revoke(context.Background(), req)
	require.NoError(t, err)

	_, err = f.service.Revoke(context.Background(), req)
	assert.True(t, dErrors.Is(err, dErrors.CodePrerequisiteNotMet))

	revoked, rejected := 0, 0
	for _, action := range auditActions(t, f, subject) {
		switch action {
		case domain.AuditConsentRevoked:
			revoked++
		case domain.AuditConsentRevokeRejected:
			rejected++
		}
	}
	assert.Equal(t, 1, revoked, "exactly one revocation entry")
	assert.Equal(t, 1, rejected, "the repeat attempt leaves only a rejection record")
}

func TestRevokeUnknownConsent(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Revoke(context.Background(), RevokeRequest{
		ConsentID: id.NewConsentID(),
		Reason:    "user request",
		RevokedBy: subject,
	})
	assert.True(t, dErrors.Is(err, dErrors.CodePrerequisiteNotMet))
}

func TestRevokeBySomeoneElse(t *testing.T) {
	f := newFixture(t)
	granted, err := f.service.Grant(context.Background(), grantRequest(id.ConsentTypeDataSync))
	require.NoError(t, err)

	_, err = f.service.Revoke(context.Background(), RevokeRequest{
		ConsentID: granted.Consent.ConsentID,
		Reason:    "hostile",
		RevokedBy: "0.0.6666",
	})
	assert.True(t, dErrors.Is(err, dErrors.CodeUnauthorized))

	stored, err := f.store.FindByID(context.Background(), granted.Consent.ConsentID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConsentGranted, stored.Status)
}

func TestRevokeLogFailureStillRevokes(t *testing.T) {
	f := newFixture(t)
	granted, err := f.service.Grant(context.Background(), grantRequest(id.ConsentTypeDataSync))
	require.NoError(t, err)

	f.client.FailNext("message", ledger.NewError(ledger.KindSignatureRejected, "message", errors.New("topic deleted")))
	result, err := f.service.Revoke(context.Background(), RevokeRequest{
		ConsentID: granted.Consent.ConsentID,
		Reason:    "user request",
		RevokedBy: subject,
	})
	require.NoError(t, err, "the store write alone decides revocation")
	assert.Equal(t, domain.ConsentRevoked, result.Status)
	assert.Empty(t, result.RevocationTxID)

	stored, err := f.store.FindByID(context.Background(), granted.Consent.ConsentID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConsentRevoked, stored.Status)
	assert.Empty(t, stored.Revocation.RevocationTxID)
}

func TestRegrantAfterRevocationCreatesNewLineageEntry(t *testing.T) {
	f := newFixture(t)
	first, err := f.service.Grant(context.Background(), grantRequest(id.ConsentTypeDataSync))
	require.NoError(t, err)
	_, err = f.service.Revoke(context.Background(), RevokeRequest{
		ConsentID: first.Consent.ConsentID,
		Reason:    "pause",
		RevokedBy: subject,
	})
	require.NoError(t, err)

	second, err := f.service.Grant(context.Background(), grantRequest(id.ConsentTypeDataSync))
	require.NoError(t, err)
	assert.NotEqual(t, first.Consent.ConsentID, second.Consent.ConsentID)
	assert.NotEqual(t, first.Consent.Credential.SerialNumber, second.Consent.Credential.SerialNumber)

	lineage, err := f.store.ListBySubject(context.Background(), subject)
	require.NoError(t, err)
	assert.Len(t, lineage, 2)
}

func TestConcurrentGrantsSerializeOperatorSubmissions(t *testing.T) {
	f := newFixture(t)
	f.client.SubmitDelay = 2 * time.Millisecond

	subjects := []id.SubjectID{"0.0.1", "0.0.2", "0.0.3", "0.0.4", "0.0.5", "0.0.6"}
	var wg sync.WaitGroup
	for _, sub := range subjects {
		sub := sub
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := grantRequest(id.ConsentTypeDataSync)
			req.SubjectID = sub
			_, err := f.service.Grant(context.Background(), req)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, len(subjects), f.client.Submits("mint"))
	assert.Equal(t, len(subjects), f.client.Submits("transfer"))
	assert.Equal(t, 1, f.client.MaxInFlight, "operator-signed submissions must never interleave")
}
