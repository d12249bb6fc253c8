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

type RegistrationsRepository struct {
	logger *slog.Logger

	db tx.DBGetter
}

func NewRegistrationsRepository(logger *slog.Logger, pg *database.Postgres) *RegistrationsRepository {
	return &RegistrationsRepository{logger: logger, db: pg.DBGetter}
}

// FindLatestByProject returns the most recent registration attempt for the
// project, entities.ErrNotFound when none exists.
func (r *RegistrationsRepository) FindLatestByProject(ctx context.Context, projectID string) (*entities.Registration, error) {
	rows, err := r.db(ctx).Query(ctx, `
		SELECT id, project_id, chain_id, tx_hash, block_number, contract_address, status, created_at, updated_at
		  FROM registrations
		 WHERE project_id = $1
		 ORDER BY id DESC
		 LIMIT 1`, projectID)
	if err != nil {
		return nil, err
	}

	registration, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[entities.Registration])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("registration for project %s: %w", projectID, entities.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("Failed to collect registration row", "project_id", projectID, "error", err)
		return nil, err
	}

	return &registration, nil
}

func (r *RegistrationsRepository) InsertRegistration(ctx context.Context, registration *entities.Registration) (int, error) {
	var id int
	err := r.db(ctx).QueryRow(ctx, `
		INSERT INTO registrations (project_id, chain_id, tx_hash, block_number, contract_address, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		registration.ProjectID, registration.ChainID, registration.TxHash, registration.BlockNumber,
		registration.ContractAddress, registration.Status, registration.CreatedAt, registration.UpdatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert registration: %w", err)
	}

	r.logger.Info("Registration attempt recorded",
		"project_id", registration.ProjectID, "status", registration.Status)
	return id, nil
}

func (r *RegistrationsRepository) UpdateRegistration(ctx context.Context, registration *entities.Registration) error {
	tag, err := r.db(ctx).Exec(ctx, `
		UPDATE registrations
		   SET tx_hash = $2, block_number = $3, status = $4, updated_at = $5
		 WHERE id = $1`,
		registration.ID, registration.TxHash, registration.BlockNumber,
		registration.Status, registration.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update registration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("registration %d: %w", registration.ID, entities.ErrNotFound)
	}

	return nil
}
