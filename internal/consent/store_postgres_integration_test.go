//go:build integration

package consent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helixpass/internal/domain"
	id "helixpass/pkg/domain"
	"helixpass/pkg/platform/sentinel"
	"helixpass/pkg/testutil/containers"
)

func newPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	pg := containers.NewPostgresContainer(t)
	store := NewPostgresStore(pg.Pool)
	require.NoError(t, store.EnsureSchema(context.Background()))
	return store
}

func pgGrantedRecord(subjectID id.SubjectID, serial int64) *domain.ConsentRecord {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.ConsentRecord{
		ConsentID:   id.NewConsentID(),
		SubjectID:   subjectID,
		ConsentType: id.ConsentTypeDataSync,
		DataTypes:   []string{"heart_rate"},
		Purposes:    []string{"research"},
		ValidFrom:   now.Add(-time.Hour),
		Status:      domain.ConsentGranted,
		Credential:  &domain.CredentialRef{CollectionID: "0.0.9001", SerialNumber: serial, IssuanceTxID: "tx123"},
		ContentHash: "deadbeef",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestPostgresStoreRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	store := newPostgresStore(t)
	ctx := context.Background()

	record := pgGrantedRecord("0.0.4521", 7)
	require.NoError(t, store.Insert(ctx, record))

	loaded, err := store.FindByID(ctx, record.ConsentID)
	require.NoError(t, err)
	assert.Equal(t, record.SubjectID, loaded.SubjectID)
	assert.Equal(t, record.DataTypes, loaded.DataTypes)
	require.NotNil(t, loaded.Credential)
	assert.Equal(t, int64(7), loaded.Credential.SerialNumber)
	assert.Equal(t, "tx123", loaded.Credential.IssuanceTxID)

	byCred, err := store.FindByCredential(ctx, "0.0.9001", 7)
	require.NoError(t, err)
	assert.Equal(t, record.ConsentID, byCred.ConsentID)

	active, err := store.FindActiveByTypeAndSubject(ctx, record.SubjectID, id.ConsentTypeDataSync)
	require.NoError(t, err)
	assert.Equal(t, record.ConsentID, active.ConsentID)

	granted, err := store.ListGranted(ctx)
	require.NoError(t, err)
	assert.Len(t, granted, 1)
}

func TestPostgresStoreRevokeIsSingleWinner(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	store := newPostgresStore(t)
	ctx := context.Background()

	record := pgGrantedRecord("0.0.4521", 7)
	require.NoError(t, store.Insert(ctx, record))

	const racers = 8
	var wg sync.WaitGroup
	results := make(chan error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- store.UpdateStatusToRevoked(ctx, record.ConsentID,
				domain.Revocation{Reason: "user request", RevokedBy: record.SubjectID}, time.Now().UTC())
		}()
	}
	wg.Wait()
	close(results)

	wins, losses := 0, 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, sentinel.ErrAlreadyRevoked):
			losses++
		default:
			t.Fatalf("unexpected revoke error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, racers-1, losses)

	require.NoError(t, store.AttachRevocationTx(ctx, record.ConsentID, "tx456"))
	loaded, err := store.FindByID(ctx, record.ConsentID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConsentRevoked, loaded.Status)
	require.NotNil(t, loaded.Revocation)
	assert.Equal(t, "tx456", loaded.Revocation.RevocationTxID)
}

func TestPostgresStoreLineageOrdering(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	store := newPostgresStore(t)
	ctx := context.Background()

	older := pgGrantedRecord("0.0.4521", 7)
	older.CreatedAt = older.CreatedAt.Add(-time.Minute)
	require.NoError(t, store.Insert(ctx, older))

	newer := pgGrantedRecord("0.0.4521", 8)
	newer.ConsentType = id.ConsentTypeResearch
	require.NoError(t, store.Insert(ctx, newer))

	lineage, err := store.ListBySubject(ctx, "0.0.4521")
	require.NoError(t, err)
	require.Len(t, lineage, 2)
	assert.Equal(t, newer.ConsentID, lineage[0].ConsentID)
	assert.Equal(t, older.ConsentID, lineage[1].ConsentID)
}
