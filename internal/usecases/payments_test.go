package usecases

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bluecarbon/mrv-registry/backend/internal/entities"
	"github.com/bluecarbon/mrv-registry/backend/internal/ledger"
)

func newTestPayments() (*PaymentsService, *memTransfers, *fakeLedger) {
	transfers := newMemTransfers()
	chain := newFakeLedger()
	chain.balances[ownerWallet] = ledger.CreditsToUnits(10_000)
	service := NewPaymentsService(testLogger(), transfers, chain, 30*time.Minute)
	return service, transfers, chain
}

func TestTransferHappyPath(t *testing.T) {
	service, _, chain := newTestPayments()
	ctx := context.Background()

	transfer, err := service.Transfer(ctx, entities.Transfer{
		FromWallet: ownerWallet,
		ToWallet:   buyerWallet,
		Amount:     125.5,
		Purpose:    "revenue share",
	})
	require.NoError(t, err)
	require.Equal(t, entities.TransferCompleted, transfer.Status)
	require.Equal(t, "0xxfer", transfer.TxHash)
	require.NotEmpty(t, transfer.TransferID)
	require.NotEmpty(t, transfer.IdempotencyKey, "a key is generated when the caller omits one")
	require.Equal(t, 1, chain.transferCalls)
}

func TestTransferValidation(t *testing.T) {
	service, _, _ := newTestPayments()
	ctx := context.Background()

	cases := []entities.Transfer{
		{ToWallet: buyerWallet, Amount: 10},
		{FromWallet: ownerWallet, Amount: 10},
		{FromWallet: ownerWallet, ToWallet: ownerWallet, Amount: 10},
		{FromWallet: ownerWallet, ToWallet: buyerWallet, Amount: 0},
		{FromWallet: ownerWallet, ToWallet: buyerWallet, Amount: -5},
	}

	for _, req := range cases {
		_, err := service.Transfer(ctx, req)
		var validationErr *entities.ValidationError
		require.ErrorAs(t, err, &validationErr)
	}
}

func TestTransferInsufficientBalance(t *testing.T) {
	service, _, chain := newTestPayments()
	ctx := context.Background()

	chain.balances[ownerWallet] = ledger.CreditsToUnits(1)

	_, err := service.Transfer(ctx, entities.Transfer{
		FromWallet: ownerWallet,
		ToWallet:   buyerWallet,
		Amount:     50,
	})
	var validationErr *entities.ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Zero(t, chain.transferCalls)
}

func TestTransferIdempotencyKeyPreventsDoubleSpend(t *testing.T) {
	service, _, chain := newTestPayments()
	ctx := context.Background()

	req := entities.Transfer{
		FromWallet:     ownerWallet,
		ToWallet:       buyerWallet,
		Amount:         100,
		IdempotencyKey: "settle-2026-08-30",
	}

	first, err := service.Transfer(ctx, req)
	require.NoError(t, err)

	// Retried request with the same key returns the original outcome and
	// never reaches the ledger again.
	second, err := service.Transfer(ctx, req)
	require.NoError(t, err)
	require.Equal(t, first.TransferID, second.TransferID)
	require.Equal(t, first.TxHash, second.TxHash)
	require.Equal(t, 1, chain.transferCalls)
}

func TestTransferFailedAttemptIsRetryableUnderSameKey(t *testing.T) {
	service, transfers, chain := newTestPayments()
	ctx := context.Background()

	chain.transferResult = entities.WriteResult{Err: &entities.NetworkError{Op: "send"}}

	req := entities.Transfer{
		FromWallet:     ownerWallet,
		ToWallet:       buyerWallet,
		Amount:         100,
		IdempotencyKey: "settle-retry",
	}

	failed, err := service.Transfer(ctx, req)
	require.Error(t, err)
	require.Equal(t, entities.TransferFailed, failed.Status)

	// The outage clears; the retry reuses the same row instead of paying
	// twice.
	chain.transferResult = entities.WriteResult{Success: true, TxHash: "0xretry"}

	completed, err := service.Transfer(ctx, req)
	require.NoError(t, err)
	require.Equal(t, failed.TransferID, completed.TransferID)
	require.Equal(t, entities.TransferCompleted, completed.Status)

	stored, err := transfers.FindTransferByIdempotencyKey(ctx, "settle-retry")
	require.NoError(t, err)
	require.Equal(t, entities.TransferCompleted, stored.Status)
	require.Equal(t, 2, chain.transferCalls)
}

func TestTransferStuckPendingExpiresAndRetries(t *testing.T) {
	service, transfers, chain := newTestPayments()
	ctx := context.Background()

	// A crash between insert and submit left a pending row with no tx
	// hash, far older than any in-flight submission could be.
	stale := entities.Transfer{
		TransferID:     "xfer-stuck",
		FromWallet:     ownerWallet,
		ToWallet:       buyerWallet,
		Amount:         40,
		TokenType:      "carbon_credit",
		Status:         entities.TransferPending,
		IdempotencyKey: "settle-stuck",
		CreatedAt:      time.Now().UTC().Add(-2 * time.Hour),
	}
	require.NoError(t, transfers.InsertTransfer(ctx, &stale))

	completed, err := service.Transfer(ctx, entities.Transfer{
		FromWallet:     ownerWallet,
		ToWallet:       buyerWallet,
		Amount:         40,
		IdempotencyKey: "settle-stuck",
	})
	require.NoError(t, err)
	require.Equal(t, "xfer-stuck", completed.TransferID, "the expired row is reused, not duplicated")
	require.Equal(t, entities.TransferCompleted, completed.Status)
	require.Equal(t, 1, chain.transferCalls)
}

func TestTransferFreshPendingIsNotResubmitted(t *testing.T) {
	service, transfers, chain := newTestPayments()
	ctx := context.Background()

	fresh := entities.Transfer{
		TransferID:     "xfer-inflight",
		FromWallet:     ownerWallet,
		ToWallet:       buyerWallet,
		Amount:         40,
		TokenType:      "carbon_credit",
		Status:         entities.TransferPending,
		IdempotencyKey: "settle-inflight",
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, transfers.InsertTransfer(ctx, &fresh))

	got, err := service.Transfer(ctx, entities.Transfer{
		FromWallet:     ownerWallet,
		ToWallet:       buyerWallet,
		Amount:         40,
		IdempotencyKey: "settle-inflight",
	})
	require.NoError(t, err)
	require.Equal(t, entities.TransferPending, got.Status)
	require.Zero(t, chain.transferCalls, "a submission may still be in flight")
}

func TestTransferHistoryFiltersByWallet(t *testing.T) {
	service, _, _ := newTestPayments()
	ctx := context.Background()

	_, err := service.Transfer(ctx, entities.Transfer{FromWallet: ownerWallet, ToWallet: buyerWallet, Amount: 10})
	require.NoError(t, err)
	_, err = service.Transfer(ctx, entities.Transfer{FromWallet: ownerWallet, ToWallet: "0xcc", Amount: 20})
	require.NoError(t, err)

	history, err := service.History(ctx, buyerWallet)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, 10.0, history[0].Amount)
}
