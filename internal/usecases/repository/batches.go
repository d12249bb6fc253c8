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

type BatchesRepository struct {
	logger *slog.Logger

	db tx.DBGetter
}

func NewBatchesRepository(logger *slog.Logger, pg *database.Postgres) *BatchesRepository {
	return &BatchesRepository{logger: logger, db: pg.DBGetter}
}

func (r *BatchesRepository) FindBatch(ctx context.Context, batchID string) (*entities.CreditBatch, error) {
	rows, err := r.db(ctx).Query(ctx, `
		SELECT batch_id, project_id, amount, minted_tx_hash, owner_wallet, status, minted_at
		  FROM credit_batches
		 WHERE batch_id = $1`, batchID)
	if err != nil {
		return nil, err
	}

	batch, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[entities.CreditBatch])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("batch %s: %w", batchID, entities.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("Failed to collect batch row", "batch_id", batchID, "error", err)
		return nil, err
	}

	return &batch, nil
}

func (r *BatchesRepository) FindBatches(ctx context.Context, projectID string) ([]entities.CreditBatch, error) {
	rows, err := r.db(ctx).Query(ctx, `
		SELECT batch_id, project_id, amount, minted_tx_hash, owner_wallet, status, minted_at
		  FROM credit_batches
		 WHERE project_id = $1
		 ORDER BY minted_at`, projectID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	batches, err := pgx.CollectRows(rows, pgx.RowToStructByName[entities.CreditBatch])
	if err != nil {
		r.logger.Error("Failed to collect batch rows", "project_id", projectID, "error", err)
		return nil, err
	}

	return batches, nil
}

func (r *BatchesRepository) InsertBatch(ctx context.Context, batch *entities.CreditBatch) error {
	_, err := r.db(ctx).Exec(ctx, `
		INSERT INTO credit_batches (batch_id, project_id, amount, minted_tx_hash, owner_wallet, status, minted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		batch.BatchID, batch.ProjectID, batch.Amount, batch.MintedTx, batch.OwnerWallet, batch.Status, batch.MintedAt)
	if err != nil {
		return fmt.Errorf("failed to insert credit batch: %w", err)
	}

	r.logger.Info("Credit batch recorded",
		"batch_id", batch.BatchID, "project_id", batch.ProjectID,
		"amount", batch.Amount, "status", batch.Status)
	return nil
}

func (r *BatchesRepository) UpdateBatch(ctx context.Context, batch *entities.CreditBatch) error {
	tag, err := r.db(ctx).Exec(ctx, `
		UPDATE credit_batches
		   SET amount = $2, minted_tx_hash = $3, status = $4, minted_at = $5
		 WHERE batch_id = $1`,
		batch.BatchID, batch.Amount, batch.MintedTx, batch.Status, batch.MintedAt)
	if err != nil {
		return fmt.Errorf("failed to update credit batch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("batch %s: %w", batch.BatchID, entities.ErrNotFound)
	}

	return nil
}
