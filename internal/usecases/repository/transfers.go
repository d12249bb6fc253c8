package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	tx "github.com/Thiht/transactor/pgx"
	"github.com/jackc/pgx/v5"

	"github.com/bluecarbon/mrv-registry/backend/internal/entities"
	"github.com/bluecarbon/mrv-registry/backend/pkg/database"
)

const transferColumns = "transfer_id, from_wallet, to_wallet, amount, token_type, purpose, status, tx_hash, idempotency_key, created_at, updated_at"

type TransfersRepository struct {
	logger *slog.Logger

	db tx.DBGetter
}

func NewTransfersRepository(logger *slog.Logger, pg *database.Postgres) *TransfersRepository {
	return &TransfersRepository{logger: logger, db: pg.DBGetter}
}

func (r *TransfersRepository) FindTransfer(ctx context.Context, transferID string) (*entities.Transfer, error) {
	return r.findOne(ctx, "transfer_id = $1", transferID)
}

func (r *TransfersRepository) FindTransferByIdempotencyKey(ctx context.Context, key string) (*entities.Transfer, error) {
	return r.findOne(ctx, "idempotency_key = $1", key)
}

func (r *TransfersRepository) findOne(ctx context.Context, where, arg string) (*entities.Transfer, error) {
	rows, err := r.db(ctx).Query(ctx,
		"SELECT "+transferColumns+" FROM transfers WHERE "+where, arg)
	if err != nil {
		return nil, err
	}

	transfer, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[entities.Transfer])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("transfer %s: %w", arg, entities.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("Failed to collect transfer row", "error", err)
		return nil, err
	}

	return &transfer, nil
}

func (r *TransfersRepository) FindTransfersByWallet(ctx context.Context, wallet string) ([]entities.Transfer, error) {
	rows, err := r.db(ctx).Query(ctx,
		"SELECT "+transferColumns+" FROM transfers WHERE from_wallet = $1 OR to_wallet = $1 ORDER BY created_at DESC", wallet)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	transfers, err := pgx.CollectRows(rows, pgx.RowToStructByName[entities.Transfer])
	if err != nil {
		r.logger.Error("Failed to collect transfer rows", "wallet", wallet, "error", err)
		return nil, err
	}

	return transfers, nil
}

func (r *TransfersRepository) InsertTransfer(ctx context.Context, transfer *entities.Transfer) error {
	_, err := r.db(ctx).Exec(ctx, `
		INSERT INTO transfers (transfer_id, from_wallet, to_wallet, amount, token_type, purpose, status, tx_hash, idempotency_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		transfer.TransferID, transfer.FromWallet, transfer.ToWallet, transfer.Amount,
		transfer.TokenType, transfer.Purpose, transfer.Status, transfer.TxHash,
		transfer.IdempotencyKey, transfer.CreatedAt, transfer.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert transfer: %w", err)
	}

	r.logger.Info("Transfer recorded",
		"transfer_id", transfer.TransferID, "idempotency_key", transfer.IdempotencyKey)
	return nil
}

func (r *TransfersRepository) UpdateTransfer(ctx context.Context, transfer *entities.Transfer) error {
	tag, err := r.db(ctx).Exec(ctx, `
		UPDATE transfers
		   SET status = $2, tx_hash = $3, updated_at = $4
		 WHERE transfer_id = $1`,
		transfer.TransferID, transfer.Status, transfer.TxHash, transfer.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update transfer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transfer %s: %w", transfer.TransferID, entities.ErrNotFound)
	}

	return nil
}
