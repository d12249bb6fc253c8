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

type VerificationsRepository struct {
	logger *slog.Logger

	db tx.DBGetter
}

func NewVerificationsRepository(logger *slog.Logger, pg *database.Postgres) *VerificationsRepository {
	return &VerificationsRepository{logger: logger, db: pg.DBGetter}
}

func (r *VerificationsRepository) FindRecords(ctx context.Context, projectID string) ([]entities.VerificationRecord, error) {
	rows, err := r.db(ctx).Query(ctx, `
		SELECT id, project_id, stage, completed, score, decision, actor, comments, override, created_at
		  FROM verification_records
		 WHERE project_id = $1
		 ORDER BY id`, projectID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	records, err := pgx.CollectRows(rows, pgx.RowToStructByName[entities.VerificationRecord])
	if err != nil {
		r.logger.Error("Failed to collect verification rows", "project_id", projectID, "error", err)
		return nil, err
	}

	return records, nil
}

func (r *VerificationsRepository) InsertRecord(ctx context.Context, record *entities.VerificationRecord) error {
	err := r.db(ctx).QueryRow(ctx, `
		INSERT INTO verification_records (project_id, stage, completed, score, decision, actor, comments, override, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		record.ProjectID, record.Stage, record.Completed, record.Score, record.Decision,
		record.Actor, record.Comments, record.Override, record.CreatedAt).Scan(&record.ID)
	if err != nil {
		return fmt.Errorf("failed to insert verification record: %w", err)
	}

	r.logger.Info("Verification record stored",
		"project_id", record.ProjectID, "stage", record.Stage, "actor", record.Actor)
	return nil
}
