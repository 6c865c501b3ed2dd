//go:build integration

package incentive

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helixpass/internal/domain"
	id "helixpass/pkg/domain"
	"helixpass/pkg/platform/sentinel"
	"helixpass/pkg/testutil/containers"
)

func TestPostgresAwardStoreNeverOverwritesAwarded(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pg := containers.NewPostgresContainer(t)
	store := NewPostgresStore(pg.Pool)
	ctx := context.Background()
	require.NoError(t, store.EnsureSchema(ctx))

	consentID := id.NewConsentID()
	award := &domain.IncentiveAward{
		SubjectID:       "0.0.4521",
		ActionType:      id.ActionDataSync,
		Amount:          100,
		Status:          domain.AwardNeedsAssociation,
		LinkedConsentID: consentID,
		CreatedAt:       time.Now().UTC(),
	}
	require.NoError(t, store.Save(ctx, award))

	// The deferred award later succeeds and upgrades the row.
	award.Status = domain.AwardGranted
	award.TxID = "tx789"
	require.NoError(t, store.Save(ctx, award))

	loaded, err := store.Find(ctx, award.SubjectID, award.ActionType, consentID)
	require.NoError(t, err)
	assert.Equal(t, domain.AwardGranted, loaded.Status)
	assert.Equal(t, "tx789", loaded.TxID)

	// A repeat attempt cannot downgrade or double-pay.
	repeat := *award
	repeat.Status = domain.AwardFailed
	repeat.TxID = ""
	err = store.Save(ctx, &repeat)
	assert.ErrorIs(t, err, sentinel.ErrDuplicate)

	loaded, err = store.Find(ctx, award.SubjectID, award.ActionType, consentID)
	require.NoError(t, err)
	assert.Equal(t, domain.AwardGranted, loaded.Status)
}
