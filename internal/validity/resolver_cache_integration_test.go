//go:build integration

package validity

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helixpass/internal/consent"
	"helixpass/internal/domain"
	"helixpass/internal/ledger/ledgertest"
	"helixpass/internal/platform/config"
	"helixpass/internal/platform/redis"
	"helixpass/pkg/testutil/containers"
)

func TestOwnershipCacheServesRepeatedResolves(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := containers.NewRedisContainer(t)
	cache, err := redis.New(config.RedisConfig{
		URL:          rc.URL,
		PoolSize:     2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	require.NoError(t, err)
	require.NotNil(t, cache)
	defer cache.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := consent.NewInMemoryStore()
	client := ledgertest.NewFakeClient()
	resolver := NewResolver(store, ledgertest.NewGateway(client, logger), cache, time.Minute, logger, nil)

	record := seedRecord(t, store, domain.ConsentGranted, 7)
	client.SetOwner(collection, 7, record.SubjectID)

	ctx := context.Background()
	res, err := resolver.Resolve(ctx, record.ConsentID)
	require.NoError(t, err)
	assert.True(t, res.EffectiveValid)

	// The second resolve is served from the cache: flipping the ledger owner
	// does not change the verdict until the TTL expires.
	client.SetOwner(collection, 7, "0.0.9999")
	res, err = resolver.Resolve(ctx, record.ConsentID)
	require.NoError(t, err)
	assert.True(t, res.LedgerValid, "cached owner should still answer within the TTL")

	keys, err := cache.Keys(ctx, "nftowner:*").Result()
	require.NoError(t, err)
	assert.NotEmpty(t, keys)
}
