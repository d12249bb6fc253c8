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

const listingColumns = "listing_id, project_id, credits_available, price_per_credit, seller_wallet, status, created_at, updated_at"

type ListingsRepository struct {
	logger *slog.Logger

	db tx.DBGetter
}

func NewListingsRepository(logger *slog.Logger, pg *database.Postgres) *ListingsRepository {
	return &ListingsRepository{logger: logger, db: pg.DBGetter}
}

func (r *ListingsRepository) FindListing(ctx context.Context, listingID string) (*entities.Listing, error) {
	rows, err := r.db(ctx).Query(ctx,
		"SELECT "+listingColumns+" FROM listings WHERE listing_id = $1", listingID)
	if err != nil {
		return nil, err
	}

	listing, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[entities.Listing])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("listing %s: %w", listingID, entities.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("Failed to collect listing row", "listing_id", listingID, "error", err)
		return nil, err
	}

	return &listing, nil
}

func (r *ListingsRepository) FindActiveListings(ctx context.Context) ([]entities.Listing, error) {
	rows, err := r.db(ctx).Query(ctx,
		"SELECT "+listingColumns+" FROM listings WHERE status = 'active' ORDER BY created_at DESC")
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	listings, err := pgx.CollectRows(rows, pgx.RowToStructByName[entities.Listing])
	if err != nil {
		r.logger.Error("Failed to collect listing rows", "error", err)
		return nil, err
	}

	return listings, nil
}

func (r *ListingsRepository) FindListingsByProject(ctx context.Context, projectID string) ([]entities.Listing, error) {
	rows, err := r.db(ctx).Query(ctx,
		"SELECT "+listingColumns+" FROM listings WHERE project_id = $1 ORDER BY created_at DESC", projectID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	listings, err := pgx.CollectRows(rows, pgx.RowToStructByName[entities.Listing])
	if err != nil {
		r.logger.Error("Failed to collect listing rows", "project_id", projectID, "error", err)
		return nil, err
	}

	return listings, nil
}

func (r *ListingsRepository) InsertListing(ctx context.Context, listing *entities.Listing) error {
	_, err := r.db(ctx).Exec(ctx, `
		INSERT INTO listings (listing_id, project_id, credits_available, price_per_credit, seller_wallet, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		listing.ListingID, listing.ProjectID, listing.CreditsAvailable, listing.PricePerCredit,
		listing.SellerWallet, listing.Status, listing.CreatedAt, listing.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert listing: %w", err)
	}

	return nil
}

// DecrementListingCredits atomically reduces availability. The WHERE guard
// rejects overselling: zero rows affected means the listing was inactive
// or had fewer credits than requested.
func (r *ListingsRepository) DecrementListingCredits(ctx context.Context, listingID string, quantity float64) (int64, error) {
	tag, err := r.db(ctx).Exec(ctx, `
		UPDATE listings
		   SET credits_available = credits_available - $2,
		       status = CASE WHEN credits_available - $2 <= 0 THEN 'sold' ELSE status END,
		       updated_at = NOW()
		 WHERE listing_id = $1
		   AND status = 'active'
		   AND credits_available >= $2`,
		listingID, quantity)
	if err != nil {
		return 0, fmt.Errorf("failed to decrement listing credits: %w", err)
	}

	return tag.RowsAffected(), nil
}

func (r *ListingsRepository) UpdateListingStatus(ctx context.Context, listingID string, status entities.ListingStatus) error {
	tag, err := r.db(ctx).Exec(ctx,
		"UPDATE listings SET status = $2, updated_at = NOW() WHERE listing_id = $1", listingID, status)
	if err != nil {
		return fmt.Errorf("failed to update listing status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("listing %s: %w", listingID, entities.ErrNotFound)
	}

	return nil
}
