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

type AuditRepository struct {
	logger *slog.Logger

	db tx.DBGetter
}

func NewAuditRepository(logger *slog.Logger, pg *database.Postgres) *AuditRepository {
	return &AuditRepository{logger: logger, db: pg.DBGetter}
}

func (r *AuditRepository) FindEntries(ctx context.Context, projectID string) ([]entities.AuditEntry, error) {
	rows, err := r.db(ctx).Query(ctx, `
		SELECT id, project_id, from_status, to_status, actor, evidence_ref, created_at
		  FROM audit_entries
		 WHERE project_id = $1
		 ORDER BY created_at`, projectID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	entries, err := pgx.CollectRows(rows, pgx.RowToStructByName[entities.AuditEntry])
	if err != nil {
		r.logger.Error("Failed to collect audit rows", "project_id", projectID, "error", err)
		return nil, err
	}

	return entries, nil
}

func (r *AuditRepository) InsertEntry(ctx context.Context, entry *entities.AuditEntry) error {
	_, err := r.db(ctx).Exec(ctx, `
		INSERT INTO audit_entries (id, project_id, from_status, to_status, actor, evidence_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.ProjectID, entry.FromStatus, entry.ToStatus,
		entry.Actor, entry.EvidenceRef, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}

	return nil
}
