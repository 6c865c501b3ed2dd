package consent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helixpass/internal/domain"
	id "helixpass/pkg/domain"
	"helixpass/pkg/platform/sentinel"
)

func grantedRecord(subject id.SubjectID, consentType id.ConsentType) *domain.ConsentRecord {
	now := time.Now()
	return &domain.ConsentRecord{
		ConsentID:   id.NewConsentID(),
		SubjectID:   subject,
		ConsentType: consentType,
		DataTypes:   []string{"genome"},
		Purposes:    []string{"research"},
		ValidFrom:   now.Add(-time.Hour),
		Status:      domain.ConsentGranted,
		Credential:  &domain.CredentialRef{CollectionID: "0.0.9001", SerialNumber: 7, IssuanceTxID: "tx123"},
		ContentHash: "deadbeef",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestInsertAndFind(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	record := grantedRecord("0.0.4521", id.ConsentTypeDataSync)

	require.NoError(t, store.Insert(ctx, record))

	found, err := store.FindByID(ctx, record.ConsentID)
	require.NoError(t, err)
	assert.Equal(t, record.ConsentID, found.ConsentID)
	assert.Equal(t, domain.ConsentGranted, found.Status)

	_, err = store.FindByID(ctx, id.NewConsentID())
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestInsertDuplicateID(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	record := grantedRecord("0.0.4521", id.ConsentTypeDataSync)

	require.NoError(t, store.Insert(ctx, record))
	assert.ErrorIs(t, store.Insert(ctx, record), sentinel.ErrDuplicate)
}

func TestFindActiveByTypeAndSubject(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	record := grantedRecord("0.0.4521", id.ConsentTypeDataSync)
	require.NoError(t, store.Insert(ctx, record))

	found, err := store.FindActiveByTypeAndSubject(ctx, "0.0.4521", id.ConsentTypeDataSync)
	require.NoError(t, err)
	assert.Equal(t, record.ConsentID, found.ConsentID)

	_, err = store.FindActiveByTypeAndSubject(ctx, "0.0.4521", id.ConsentTypeResearch)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	_, err = store.FindActiveByTypeAndSubject(ctx, "0.0.9999", id.ConsentTypeDataSync)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestRevokeIsSingleWinner(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	record := grantedRecord("0.0.4521", id.ConsentTypeDataSync)
	require.NoError(t, store.Insert(ctx, record))

	revocation := domain.Revocation{Reason: "user request", RevokedBy: "0.0.4521"}

	const racers = 16
	var wg sync.WaitGroup
	errs := make(chan error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- store.UpdateStatusToRevoked(ctx, record.ConsentID, revocation, time.Now())
		}()
	}
	wg.Wait()
	close(errs)

	var wins, losses int
	for err := range errs {
		switch {
		case err == nil:
			wins++
		default:
			assert.ErrorIs(t, err, sentinel.ErrAlreadyRevoked)
			losses++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, racers-1, losses)

	found, err := store.FindByID(ctx, record.ConsentID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConsentRevoked, found.Status)
	require.NotNil(t, found.Revocation)
	assert.Equal(t, "user request", found.Revocation.Reason)
}

func TestAttachRevocationTx(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	record := grantedRecord("0.0.4521", id.ConsentTypeDataSync)
	require.NoError(t, store.Insert(ctx, record))

	// Not revoked yet: nothing to attach to.
	assert.ErrorIs(t, store.AttachRevocationTx(ctx, record.ConsentID, "tx999"), sentinel.ErrNotFound)

	require.NoError(t, store.UpdateStatusToRevoked(ctx, record.ConsentID,
		domain.Revocation{Reason: "user request", RevokedBy: "0.0.4521"}, time.Now()))
	require.NoError(t, store.AttachRevocationTx(ctx, record.ConsentID, "tx999"))

	found, err := store.FindByID(ctx, record.ConsentID)
	require.NoError(t, err)
	assert.Equal(t, "tx999", found.Revocation.RevocationTxID)
}

func TestReturnedRecordsDoNotAliasStoreState(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	record := grantedRecord("0.0.4521", id.ConsentTypeDataSync)
	require.NoError(t, store.Insert(ctx, record))

	// Mutating the caller's copy must leave the stored record untouched.
	record.DataTypes[0] = "tampered"
	record.Credential.SerialNumber = 999

	snapshot, err := store.FindByID(ctx, record.ConsentID)
	require.NoError(t, err)
	assert.Equal(t, []string{"genome"}, snapshot.DataTypes)
	assert.Equal(t, int64(7), snapshot.Credential.SerialNumber)

	// Same in the other direction: a returned snapshot is not a window into
	// the store.
	snapshot.Purposes[0] = "tampered"
	snapshot.Credential.IssuanceTxID = "forged"
	fresh, err := store.FindByID(ctx, record.ConsentID)
	require.NoError(t, err)
	assert.Equal(t, []string{"research"}, fresh.Purposes)
	assert.Equal(t, "tx123", fresh.Credential.IssuanceTxID)
}

func TestAttachRevocationTxDoesNotReachOlderSnapshots(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	record := grantedRecord("0.0.4521", id.ConsentTypeDataSync)
	require.NoError(t, store.Insert(ctx, record))
	require.NoError(t, store.UpdateStatusToRevoked(ctx, record.ConsentID,
		domain.Revocation{Reason: "user request", RevokedBy: "0.0.4521"}, time.Now()))

	before, err := store.FindByID(ctx, record.ConsentID)
	require.NoError(t, err)
	require.NotNil(t, before.Revocation)
	require.Empty(t, before.Revocation.RevocationTxID)

	require.NoError(t, store.AttachRevocationTx(ctx, record.ConsentID, "tx999"))

	assert.Empty(t, before.Revocation.RevocationTxID,
		"a snapshot taken before the patch must not change underneath its holder")
	after, err := store.FindByID(ctx, record.ConsentID)
	require.NoError(t, err)
	assert.Equal(t, "tx999", after.Revocation.RevocationTxID)
}

func TestListBySubjectKeepsLineage(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	first := grantedRecord("0.0.4521", id.ConsentTypeDataSync)
	first.CreatedAt = time.Now().Add(-time.Hour)
	require.NoError(t, store.Insert(ctx, first))
	require.NoError(t, store.UpdateStatusToRevoked(ctx, first.ConsentID,
		domain.Revocation{Reason: "user request", RevokedBy: "0.0.4521"}, time.Now()))

	second := grantedRecord("0.0.4521", id.ConsentTypeDataSync)
	require.NoError(t, store.Insert(ctx, second))

	records, err := store.ListBySubject(ctx, "0.0.4521")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, second.ConsentID, records[0].ConsentID)
	assert.Equal(t, domain.ConsentRevoked, records[1].Status)
	assert.NotEqual(t, records[0].ConsentID, records[1].ConsentID)
}
