package incentive

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helixpass/internal/domain"
	"helixpass/internal/ledger"
	"helixpass/internal/ledger/ledgertest"
	"helixpass/internal/platform/config"
	id "helixpass/pkg/domain"
)

const incentiveToken id.TokenID = "0.0.5005"

func newService(t *testing.T, client *ledgertest.FakeClient) *Service {
	t.Helper()
	cfg := config.LedgerConfig{
		IncentiveTokenID: incentiveToken,
		MaxRetries:       2,
		InitialBackoff:   time.Millisecond,
		MaxBackoff:       2 * time.Millisecond,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw := ledger.NewGateway(client, ledgertest.NewFakeSigner(), cfg, logger, nil)
	return NewService(gw, NewInMemoryStore(), cfg, logger, nil)
}

func TestAmountIsServerOwned(t *testing.T) {
	assert.Equal(t, int64(100), AmountFor(id.ActionDataSync))
	assert.Equal(t, int64(150), AmountFor(id.ActionResearchConsent))
	assert.Equal(t, int64(200), AmountFor(id.ActionPassportCreation))
}

func TestAwardNeedsAssociation(t *testing.T) {
	client := ledgertest.NewFakeClient()
	svc := newService(t, client)

	award, err := svc.Award(context.Background(), "0.0.4521", id.ActionDataSync, id.NewConsentID())
	require.NoError(t, err)
	assert.Equal(t, domain.AwardNeedsAssociation, award.Status)
	assert.Equal(t, int64(100), award.Amount)
	assert.Empty(t, award.TxID)
	assert.Equal(t, 0, client.Submits("fungible"), "no transfer may be attempted without association")
}

func TestAwardSucceedsWhenAssociated(t *testing.T) {
	client := ledgertest.NewFakeClient()
	client.Associate("0.0.4521", incentiveToken)
	svc := newService(t, client)

	award, err := svc.Award(context.Background(), "0.0.4521", id.ActionResearchConsent, id.NewConsentID())
	require.NoError(t, err)
	assert.Equal(t, domain.AwardGranted, award.Status)
	assert.Equal(t, int64(150), award.Amount)
	assert.NotEmpty(t, award.TxID)
	require.Len(t, client.Transfers, 1)
	assert.Equal(t, int64(150), client.Transfers[0].Amount)
}

func TestAwardFailedOnLedgerError(t *testing.T) {
	client := ledgertest.NewFakeClient()
	client.Associate("0.0.4521", incentiveToken)
	client.FailNext("fungible", ledger.NewError(ledger.KindInsufficientBalance, "fungible", errors.New("treasury empty")))
	svc := newService(t, client)

	award, err := svc.Award(context.Background(), "0.0.4521", id.ActionDataSync, id.NewConsentID())
	require.NoError(t, err)
	assert.Equal(t, domain.AwardFailed, award.Status)
	assert.Empty(t, award.TxID)
}

func TestDuplicateAwardShortCircuits(t *testing.T) {
	client := ledgertest.NewFakeClient()
	client.Associate("0.0.4521", incentiveToken)
	svc := newService(t, client)
	consentID := id.NewConsentID()

	first, err := svc.Award(context.Background(), "0.0.4521", id.ActionDataSync, consentID)
	require.NoError(t, err)
	require.Equal(t, domain.AwardGranted, first.Status)

	second, err := svc.Award(context.Background(), "0.0.4521", id.ActionDataSync, consentID)
	require.NoError(t, err)
	assert.Equal(t, domain.AwardGranted, second.Status)
	assert.Equal(t, first.TxID, second.TxID)
	assert.Equal(t, 1, client.Submits("fungible"), "a retried request must not pay twice")
}

func TestRetryAfterNeedsAssociation(t *testing.T) {
	client := ledgertest.NewFakeClient()
	svc := newService(t, client)
	consentID := id.NewConsentID()

	first, err := svc.Award(context.Background(), "0.0.4521", id.ActionDataSync, consentID)
	require.NoError(t, err)
	require.Equal(t, domain.AwardNeedsAssociation, first.Status)

	// Subject associates and the award is retried.
	client.Associate("0.0.4521", incentiveToken)
	second, err := svc.Award(context.Background(), "0.0.4521", id.ActionDataSync, consentID)
	require.NoError(t, err)
	assert.Equal(t, domain.AwardGranted, second.Status)
	assert.NotEmpty(t, second.TxID)
}

func TestInvalidActionType(t *testing.T) {
	svc := newService(t, ledgertest.NewFakeClient())
	_, err := svc.Award(context.Background(), "0.0.4521", "free_money", id.NewConsentID())
	require.Error(t, err)
}
