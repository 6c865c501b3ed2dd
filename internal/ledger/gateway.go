// Package ledger wraps all ledger network operations behind idempotent,
// retryable calls. The gateway owns no durable state; it is a stateless
// façade whose one shared resource is the treasury/operator signing identity.
package ledger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"helixpass/internal/platform/config"
	"helixpass/internal/signing"
	id "helixpass/pkg/domain"
)

// Gateway fronts the ledger network client. Every operator-signed mutation
// (mint, transfer, log submission, incentive transfer) is serialized through a
// single mutex so concurrent sagas never interleave submissions for the
// operator identity. Reads bypass the mutex.
type Gateway struct {
	client  Client
	signer  signing.Channel
	cfg     config.LedgerConfig
	logger  *slog.Logger
	metrics *Metrics

	// operatorMu serializes transaction issuance for the operator identity.
	operatorMu sync.Mutex
}

func NewGateway(client Client, signer signing.Channel, cfg config.LedgerConfig, logger *slog.Logger, metrics *Metrics) *Gateway {
	return &Gateway{
		client:  client,
		signer:  signer,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
	}
}

// Associate asks the subject to sign an association between their account and
// the credential collection. This is subject-signed, so it does not take the
// operator mutex. The error is signing.ErrRejected or a context error on
// timeout; callers decide how to surface it.
func (g *Gateway) Associate(ctx context.Context, subjectID id.SubjectID, collectionID id.CollectionID) (string, error) {
	return g.signer.RequestAssociation(ctx, subjectID, collectionID)
}

// Mint creates the next credential serial in the collection, held by the
// treasury until transferred.
func (g *Gateway) Mint(ctx context.Context, collectionID id.CollectionID, metadata []byte) (int64, error) {
	return submitAsOperator(g, ctx, "mint", func(ctx context.Context) (int64, error) {
		return g.client.SubmitMint(ctx, collectionID, metadata)
	})
}

// Transfer moves a credential serial from the treasury to the subject.
func (g *Gateway) Transfer(ctx context.Context, collectionID id.CollectionID, serial int64, to id.SubjectID) (string, error) {
	return submitAsOperator(g, ctx, "transfer", func(ctx context.Context) (string, error) {
		return g.client.SubmitTransfer(ctx, collectionID, serial, to)
	})
}

// SubmitLog appends a message to the consensus topic. Callers treat this as
// fire-and-forget; the saga never fails on a log error.
func (g *Gateway) SubmitLog(ctx context.Context, topicID string, message []byte) (string, error) {
	return submitAsOperator(g, ctx, "submit_log", func(ctx context.Context) (string, error) {
		return g.client.SubmitMessage(ctx, topicID, message)
	})
}

// TransferFungible moves incentive tokens from the treasury to the subject.
func (g *Gateway) TransferFungible(ctx context.Context, token id.TokenID, amount int64, to id.SubjectID) (string, error) {
	return submitAsOperator(g, ctx, "transfer_fungible", func(ctx context.Context) (string, error) {
		return g.client.SubmitFungibleTransfer(ctx, token, amount, to)
	})
}

// QueryOwnership returns the current owner of a credential serial. Pure read,
// safe to call concurrently.
func (g *Gateway) QueryOwnership(ctx context.Context, collectionID id.CollectionID, serial int64) (id.SubjectID, error) {
	return g.client.NFTOwner(ctx, collectionID, serial)
}

// IsAssociated reports whether the subject has associated the token. Pure
// read, safe to call concurrently.
func (g *Gateway) IsAssociated(ctx context.Context, subjectID id.SubjectID, token id.TokenID) (bool, error) {
	return g.client.TokenAssociated(ctx, subjectID, token)
}

// ListCollectionSerials returns every minted serial and its owner. Pure read;
// used by the reconciliation sweeper.
func (g *Gateway) ListCollectionSerials(ctx context.Context, collectionID id.CollectionID) (map[int64]id.SubjectID, error) {
	return g.client.CollectionSerials(ctx, collectionID)
}

// submitAsOperator serializes an operator-signed submission and retries
// transient failures with bounded exponential backoff. Terminal failures
// (signature rejected, insufficient balance, invalid account) abort
// immediately.
func submitAsOperator[T any](g *Gateway, ctx context.Context, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	g.operatorMu.Lock()
	defer g.operatorMu.Unlock()

	start := time.Now()
	defer func() { g.metrics.observe(op, time.Since(start).Seconds()) }()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = g.cfg.InitialBackoff
	bo.MaxInterval = g.cfg.MaxBackoff

	result, err := backoff.RetryWithData(func() (T, error) {
		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		if !IsRetryable(err) {
			return out, backoff.Permanent(err)
		}
		g.metrics.retry(op)
		g.logger.WarnContext(ctx, "transient ledger failure, retrying",
			"op", op,
			"error", err,
		)
		return out, err
	}, backoff.WithContext(backoff.WithMaxRetries(bo, g.cfg.MaxRetries), ctx))

	if err != nil {
		g.metrics.failure(op, KindOf(err))
	}
	return result, err
}
