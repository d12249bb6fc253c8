package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	tx "github.com/Thiht/transactor/pgx"
	"github.com/jackc/pgx/v5"

	"github.com/bluecarbon/mrv-registry/backend/internal/entities"
	"github.com/bluecarbon/mrv-registry/backend/internal/usecases"
	"github.com/bluecarbon/mrv-registry/backend/pkg/database"
)

const projectColumns = `id, name, ecosystem_type, area_hectares, location, status, verification_score,
	estimated_credits, issued_credits, owner_wallet, media_refs, retry_eligible, rescore_flagged,
	created_at, updated_at`

type ProjectsRepository struct {
	logger *slog.Logger

	db tx.DBGetter
}

func NewProjectsRepository(logger *slog.Logger, pg *database.Postgres) *ProjectsRepository {
	return &ProjectsRepository{logger: logger, db: pg.DBGetter}
}

func (r *ProjectsRepository) FindProject(ctx context.Context, projectID string) (*entities.Project, error) {
	rows, err := r.db(ctx).Query(ctx,
		"SELECT "+projectColumns+" FROM projects WHERE id = $1", projectID)
	if err != nil {
		return nil, err
	}

	project, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[entities.Project])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("project %s: %w", projectID, entities.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("Failed to collect project row", "project_id", projectID, "error", err)
		return nil, err
	}

	return &project, nil
}

// FindProjects lists projects narrowed by the optional filter fields.
func (r *ProjectsRepository) FindProjects(ctx context.Context, filter usecases.ProjectFilter) ([]entities.Project, error) {
	builder := sq.Select(projectColumns).
		From("projects").
		OrderBy("created_at DESC").
		PlaceholderFormat(sq.Dollar)

	if filter.Status != "" {
		builder = builder.Where(sq.Eq{"status": filter.Status})
	}
	if filter.EcosystemType != "" {
		builder = builder.Where(sq.Eq{"ecosystem_type": filter.EcosystemType})
	}
	if filter.OwnerWallet != "" {
		builder = builder.Where(sq.Eq{"owner_wallet": filter.OwnerWallet})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build projects query: %w", err)
	}

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	projects, err := pgx.CollectRows(rows, pgx.RowToStructByName[entities.Project])
	if err != nil {
		r.logger.Error("Failed to collect project rows", "error", err)
		return nil, err
	}

	return projects, nil
}

func (r *ProjectsRepository) FindProjectsByStatuses(ctx context.Context, statuses []entities.ProjectStatus) ([]entities.Project, error) {
	query, args, err := sq.Select(projectColumns).
		From("projects").
		Where(sq.Eq{"status": statuses}).
		OrderBy("created_at").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build projects-by-status query: %w", err)
	}

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	projects, err := pgx.CollectRows(rows, pgx.RowToStructByName[entities.Project])
	if err != nil {
		r.logger.Error("Failed to collect project rows", "error", err)
		return nil, err
	}

	return projects, nil
}

func (r *ProjectsRepository) InsertProject(ctx context.Context, project *entities.Project) error {
	_, err := r.db(ctx).Exec(ctx, `
		INSERT INTO projects (id, name, ecosystem_type, area_hectares, location, status, verification_score,
			estimated_credits, issued_credits, owner_wallet, media_refs, retry_eligible, rescore_flagged,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		project.ID, project.Name, project.EcosystemType, project.AreaHectares, project.Location,
		project.Status, project.VerificationScore, project.EstimatedCredits, project.IssuedCredits,
		project.OwnerWallet, project.MediaRefs, project.RetryEligible, project.RescoreFlagged,
		project.CreatedAt, project.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert project: %w", err)
	}

	r.logger.Info("Project inserted", "project_id", project.ID, "name", project.Name)
	return nil
}

func (r *ProjectsRepository) UpdateProject(ctx context.Context, project *entities.Project) error {
	tag, err := r.db(ctx).Exec(ctx, `
		UPDATE projects
		   SET name = $2, ecosystem_type = $3, area_hectares = $4, location = $5, status = $6,
		       verification_score = $7, estimated_credits = $8, issued_credits = $9, owner_wallet = $10,
		       media_refs = $11, retry_eligible = $12, rescore_flagged = $13, updated_at = $14
		 WHERE id = $1`,
		project.ID, project.Name, project.EcosystemType, project.AreaHectares, project.Location,
		project.Status, project.VerificationScore, project.EstimatedCredits, project.IssuedCredits,
		project.OwnerWallet, project.MediaRefs, project.RetryEligible, project.RescoreFlagged,
		project.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("project %s: %w", project.ID, entities.ErrNotFound)
	}

	return nil
}
