// Package validity answers "is this consent currently valid" by reconciling
// three independent signals: the store status flag, credential ownership on
// the ledger, and the validity time window. The store flag is authoritative
// for revocation; credentials are never burned, so a revoked consent can
// still show ledger ownership.
package validity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"helixpass/internal/consent"
	"helixpass/internal/domain"
	"helixpass/internal/platform/redis"
	id "helixpass/pkg/domain"
	dErrors "helixpass/pkg/domain-errors"
	"helixpass/pkg/platform/sentinel"
	"helixpass/pkg/requestcontext"
)

// Resolution is the component-wise validity verdict for one consent.
type Resolution struct {
	ConsentID      id.ConsentID
	EffectiveValid bool
	DBActive       bool
	LedgerValid    bool
	WithinWindow   bool
}

// Gateway is the slice of the ledger gateway the resolver needs.
type Gateway interface {
	QueryOwnership(ctx context.Context, collectionID id.CollectionID, serial int64) (id.SubjectID, error)
}

// Resolver combines store, ledger, and clock signals into one verdict.
type Resolver struct {
	store    consent.Store
	gateway  Gateway
	cache    *redis.Client // nil disables caching
	cacheTTL time.Duration
	logger   *slog.Logger
	metrics  *Metrics
}

func NewResolver(store consent.Store, gateway Gateway, cache *redis.Client, cacheTTL time.Duration, logger *slog.Logger, metrics *Metrics) *Resolver {
	return &Resolver{
		store:    store,
		gateway:  gateway,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger,
		metrics:  metrics,
	}
}

// Resolve computes the verdict for one consent.
//
// EffectiveValid = DBActive AND LedgerValid AND WithinWindow. Ledger read
// errors degrade LedgerValid to false rather than failing the call: validity
// checks must stay answerable when the ledger is not.
func (r *Resolver) Resolve(ctx context.Context, consentID id.ConsentID) (*Resolution, error) {
	record, err := r.store.FindByID(ctx, consentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "consent not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodePersistence, "load consent record")
	}
	return r.resolveRecord(ctx, record), nil
}

// ResolveSubject computes verdicts for the subject's whole lineage, querying
// the ledger concurrently with a bounded group.
func (r *Resolver) ResolveSubject(ctx context.Context, subjectID id.SubjectID) ([]*Resolution, error) {
	records, err := r.store.ListBySubject(ctx, subjectID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodePersistence, "list consent records")
	}

	out := make([]*Resolution, len(records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, record := range records {
		i, record := i, record
		g.Go(func() error {
			out[i] = r.resolveRecord(gctx, record)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Resolver) resolveRecord(ctx context.Context, record *domain.ConsentRecord) *Resolution {
	res := &Resolution{
		ConsentID:    record.ConsentID,
		DBActive:     record.Status == domain.ConsentGranted,
		WithinWindow: record.WithinWindow(requestcontext.Now(ctx)),
	}
	res.LedgerValid = r.ledgerValid(ctx, record)
	res.EffectiveValid = res.DBActive && res.LedgerValid && res.WithinWindow
	r.metrics.resolved(res.EffectiveValid)
	return res
}

// ledgerValid checks that the credential serial is still owned by the
// subject. Unknown (no credential, read error) is treated as false for
// safety.
func (r *Resolver) ledgerValid(ctx context.Context, record *domain.ConsentRecord) bool {
	cred := record.Credential
	if cred == nil {
		return false
	}

	owner, err := r.cachedOwner(ctx, cred.CollectionID, cred.SerialNumber)
	if err != nil {
		r.logger.WarnContext(ctx, "ownership query failed, degrading ledger validity",
			"consent_id", record.ConsentID,
			"error", err,
		)
		return false
	}
	return owner == record.SubjectID
}

func (r *Resolver) cachedOwner(ctx context.Context, collectionID id.CollectionID, serial int64) (id.SubjectID, error) {
	key := fmt.Sprintf("nftowner:%s:%d", collectionID, serial)
	if r.cache != nil {
		if cached, err := r.cache.Get(ctx, key).Result(); err == nil {
			r.metrics.cacheHit()
			return id.SubjectID(cached), nil
		} else if !errors.Is(err, goredis.Nil) {
			r.logger.DebugContext(ctx, "ownership cache read failed", "error", err)
		}
		r.metrics.cacheMiss()
	}

	owner, err := r.gateway.QueryOwnership(ctx, collectionID, serial)
	if err != nil {
		return "", err
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, key, owner.String(), r.cacheTTL).Err(); err != nil {
			r.logger.DebugContext(ctx, "ownership cache write failed", "error", err)
		}
	}
	return owner, nil
}
