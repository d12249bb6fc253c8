package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bluecarbon/mrv-registry/backend/internal/core/ports"
	"github.com/bluecarbon/mrv-registry/backend/internal/entities"
	"github.com/bluecarbon/mrv-registry/backend/internal/ledger"
)

type TransfersRepository interface {
	FindTransfer(ctx context.Context, transferID string) (*entities.Transfer, error)
	FindTransferByIdempotencyKey(ctx context.Context, key string) (*entities.Transfer, error)
	FindTransfersByWallet(ctx context.Context, wallet string) ([]entities.Transfer, error)
	InsertTransfer(ctx context.Context, transfer *entities.Transfer) error
	UpdateTransfer(ctx context.Context, transfer *entities.Transfer) error
}

const defaultTransferPendingTimeout = 30 * time.Minute

// PaymentsService moves credit tokens between wallets for revenue sharing.
// Submission is idempotent: a transfer that already produced a tx hash is
// never resubmitted, no matter how often the request is retried.
type PaymentsService struct {
	logger         *slog.Logger
	transfers      TransfersRepository
	ledger         ports.LedgerClient
	pendingTimeout time.Duration
}

func NewPaymentsService(logger *slog.Logger, transfers TransfersRepository, ledgerClient ports.LedgerClient, pendingTimeout time.Duration) *PaymentsService {
	if pendingTimeout <= 0 {
		pendingTimeout = defaultTransferPendingTimeout
	}
	return &PaymentsService{logger: logger, transfers: transfers, ledger: ledgerClient, pendingTimeout: pendingTimeout}
}

// Transfer validates, dedupes by idempotency key, checks the source
// balance and submits the token transfer. The pending row is written
// before the ledger call so a crash mid-submit leaves a record to
// reconcile instead of a silent double spend.
func (ps *PaymentsService) Transfer(ctx context.Context, req entities.Transfer) (*entities.Transfer, error) {
	if err := validateTransfer(&req); err != nil {
		return nil, err
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.NewString()
	}

	existing, err := ps.transfers.FindTransferByIdempotencyKey(ctx, req.IdempotencyKey)
	if err != nil && !errors.Is(err, entities.ErrNotFound) {
		return nil, fmt.Errorf("failed to check idempotency key: %w", err)
	}
	if existing != nil {
		// A prior attempt reached the ledger (or is still completing):
		// return it rather than paying twice.
		if existing.TxHash != "" || existing.Status == entities.TransferCompleted {
			ps.logger.Info("Duplicate transfer request, returning prior result",
				"idempotency_key", req.IdempotencyKey, "transfer_id", existing.TransferID)
			return existing, nil
		}
		if existing.Status == entities.TransferPending {
			if time.Since(existing.CreatedAt) < ps.pendingTimeout {
				return existing, nil
			}
			// Stuck pending with no tx hash for longer than any submit
			// could take: the crash happened before the ledger saw it.
			ps.logger.Warn("Expiring stuck pending transfer",
				"transfer_id", existing.TransferID, "age", time.Since(existing.CreatedAt))
		}
		// Failed (or expired) before submission: retry under the same key.
		req.TransferID = existing.TransferID
	}

	units := ledger.CreditsToUnits(req.Amount)

	balance, err := ps.ledger.BalanceOf(ctx, req.FromWallet)
	if err != nil {
		return nil, &entities.NetworkError{Op: "balance check", Err: err}
	}
	if balance.Cmp(units) < 0 {
		return nil, &entities.ValidationError{Field: "amount", Reason: "insufficient balance in source wallet"}
	}

	now := time.Now().UTC()
	transfer := &entities.Transfer{
		TransferID:     req.TransferID,
		FromWallet:     req.FromWallet,
		ToWallet:       req.ToWallet,
		Amount:         req.Amount,
		TokenType:      req.TokenType,
		Purpose:        req.Purpose,
		Status:         entities.TransferPending,
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if transfer.TokenType == "" {
		transfer.TokenType = "carbon_credit"
	}

	if transfer.TransferID == "" {
		transfer.TransferID = uuid.NewString()
		if err := ps.transfers.InsertTransfer(ctx, transfer); err != nil {
			return nil, fmt.Errorf("failed to insert pending transfer: %w", err)
		}
	} else {
		if err := ps.transfers.UpdateTransfer(ctx, transfer); err != nil {
			return nil, fmt.Errorf("failed to reset failed transfer: %w", err)
		}
	}

	result := ps.ledger.Transfer(ctx, req.ToWallet, units)

	if !result.Success {
		transfer.Status = entities.TransferFailed
		transfer.UpdatedAt = time.Now().UTC()
		if updateErr := ps.transfers.UpdateTransfer(ctx, transfer); updateErr != nil {
			ps.logger.Error("Failed to mark transfer failed",
				"transfer_id", transfer.TransferID, "error", updateErr)
		}

		ps.logger.Error("Token transfer failed",
			"transfer_id", transfer.TransferID, "error", result.ErrorMessage())
		return transfer, result.Err
	}

	transfer.Status = entities.TransferCompleted
	transfer.TxHash = result.TxHash
	transfer.UpdatedAt = time.Now().UTC()
	if err := ps.transfers.UpdateTransfer(ctx, transfer); err != nil {
		return transfer, fmt.Errorf("failed to record completed transfer: %w", err)
	}

	ps.logger.Info("Token transfer completed",
		"transfer_id", transfer.TransferID, "tx_hash", result.TxHash,
		"from", transfer.FromWallet, "to", transfer.ToWallet, "amount", transfer.Amount)

	return transfer, nil
}

// History returns transfers touching the wallet, newest first.
func (ps *PaymentsService) History(ctx context.Context, wallet string) ([]entities.Transfer, error) {
	if wallet == "" {
		return nil, &entities.ValidationError{Field: "wallet", Reason: "required"}
	}
	return ps.transfers.FindTransfersByWallet(ctx, wallet)
}

func validateTransfer(req *entities.Transfer) error {
	switch {
	case req.FromWallet == "":
		return &entities.ValidationError{Field: "from_wallet", Reason: "required"}
	case req.ToWallet == "":
		return &entities.ValidationError{Field: "to_wallet", Reason: "required"}
	case req.FromWallet == req.ToWallet:
		return &entities.ValidationError{Field: "to_wallet", Reason: "source and destination are the same wallet"}
	case req.Amount <= 0:
		return &entities.ValidationError{Field: "amount", Reason: "must be positive"}
	}
	return nil
}
