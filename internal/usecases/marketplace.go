package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bluecarbon/mrv-registry/backend/internal/core/ports"
	"github.com/bluecarbon/mrv-registry/backend/internal/entities"
	"github.com/bluecarbon/mrv-registry/backend/internal/ledger"
)

type ListingsRepository interface {
	FindListing(ctx context.Context, listingID string) (*entities.Listing, error)
	FindActiveListings(ctx context.Context) ([]entities.Listing, error)
	FindListingsByProject(ctx context.Context, projectID string) ([]entities.Listing, error)
	InsertListing(ctx context.Context, listing *entities.Listing) error
	// DecrementListingCredits atomically takes quantity credits off an
	// active listing, marking it sold when it hits zero. Returns the number
	// of rows changed: zero means the listing was missing, inactive, or
	// underfunded.
	DecrementListingCredits(ctx context.Context, listingID string, quantity float64) (int64, error)
	UpdateListingStatus(ctx context.Context, listingID string, status entities.ListingStatus) error
}

// Transactor runs a function inside one database transaction; repository
// calls made with the inner ctx join it.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// MarketplaceEngine sells tokenized credits. It never sets project status
// directly; listing-related transitions go through the lifecycle service.
type MarketplaceEngine struct {
	logger     *slog.Logger
	listings   ListingsRepository
	projects   ProjectsRepository
	lifecycle  *LifecycleService
	ledger     ports.LedgerClient
	transactor Transactor
}

func NewMarketplaceEngine(
	logger *slog.Logger,
	listings ListingsRepository,
	projects ProjectsRepository,
	lifecycle *LifecycleService,
	ledgerClient ports.LedgerClient,
	transactor Transactor,
) *MarketplaceEngine {
	return &MarketplaceEngine{
		logger:     logger,
		listings:   listings,
		projects:   projects,
		lifecycle:  lifecycle,
		ledger:     ledgerClient,
		transactor: transactor,
	}
}

// CreateListing puts part of a tokenized project's issued credits on sale.
// The total across active listings can never exceed what was minted.
func (me *MarketplaceEngine) CreateListing(ctx context.Context, projectID string, credits, price float64, seller string) (*entities.Listing, error) {
	if credits <= 0 {
		return nil, &entities.ValidationError{Field: "credits", Reason: "must be positive"}
	}
	if price <= 0 {
		return nil, &entities.ValidationError{Field: "price_per_credit", Reason: "must be positive"}
	}

	project, err := me.projects.FindProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	if project.Status != entities.StatusTokenized && project.Status != entities.StatusListed {
		return nil, &entities.StateError{ProjectID: projectID, Status: project.Status, Operation: "create listing"}
	}
	if seller != project.OwnerWallet {
		return nil, &entities.ValidationError{Field: "seller_wallet", Reason: "only the project owner can list its credits"}
	}

	existing, err := me.listings.FindListingsByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load project listings: %w", err)
	}

	var committed float64
	for i := range existing {
		if existing[i].Status == entities.ListingActive {
			committed += existing[i].CreditsAvailable
		}
	}
	if committed+credits > project.IssuedCredits {
		return nil, &entities.ValidationError{
			Field:  "credits",
			Reason: fmt.Sprintf("exceeds unlisted issued credits (%.2f available)", project.IssuedCredits-committed),
		}
	}

	now := time.Now().UTC()
	listing := &entities.Listing{
		ListingID:        uuid.NewString(),
		ProjectID:        projectID,
		CreditsAvailable: credits,
		PricePerCredit:   price,
		SellerWallet:     seller,
		Status:           entities.ListingActive,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := me.listings.InsertListing(ctx, listing); err != nil {
		return nil, fmt.Errorf("failed to insert listing: %w", err)
	}

	if project.Status == entities.StatusTokenized {
		if err := me.lifecycle.MarkListed(ctx, projectID, seller); err != nil {
			me.logger.Error("Failed to mark project listed", "project_id", projectID, "error", err)
		}
	}

	me.logger.Info("Listing created",
		"listing_id", listing.ListingID, "project_id", projectID, "credits", credits, "price", price)

	return listing, nil
}

// ActiveListings returns everything currently for sale.
func (me *MarketplaceEngine) ActiveListings(ctx context.Context) ([]entities.Listing, error) {
	return me.listings.FindActiveListings(ctx)
}

// ProjectListings returns all listings for one project, any status.
func (me *MarketplaceEngine) ProjectListings(ctx context.Context, projectID string) ([]entities.Listing, error) {
	return me.listings.FindListingsByProject(ctx, projectID)
}

// CancelListing takes an active listing off the market.
func (me *MarketplaceEngine) CancelListing(ctx context.Context, listingID, actor string) error {
	listing, err := me.listings.FindListing(ctx, listingID)
	if err != nil {
		return err
	}
	if listing.Status != entities.ListingActive {
		return &entities.ValidationError{Field: "listing_id", Reason: "only active listings can be cancelled"}
	}
	if err := me.listings.UpdateListingStatus(ctx, listingID, entities.ListingCancelled); err != nil {
		return fmt.Errorf("failed to cancel listing: %w", err)
	}
	return me.settleProjectListings(ctx, listing.ProjectID, actor)
}

// Purchase takes quantity credits off a listing and moves the tokens to
// the buyer. Decrement and ledger transfer happen inside one database
// transaction: if the transfer fails the decrement rolls back, so
// availability is never reduced without tokens moving.
func (me *MarketplaceEngine) Purchase(ctx context.Context, listingID string, quantity float64, buyerWallet string) (entities.WriteResult, error) {
	if quantity <= 0 {
		return entities.WriteResult{}, &entities.ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	if buyerWallet == "" {
		return entities.WriteResult{}, &entities.ValidationError{Field: "buyer_wallet", Reason: "required"}
	}

	listing, err := me.listings.FindListing(ctx, listingID)
	if err != nil {
		return entities.WriteResult{}, err
	}
	if listing.Status != entities.ListingActive {
		return entities.WriteResult{}, &entities.ValidationError{Field: "listing_id", Reason: "listing is not active"}
	}
	if quantity > listing.CreditsAvailable {
		return entities.WriteResult{}, &entities.ValidationError{
			Field:  "quantity",
			Reason: fmt.Sprintf("only %.2f credits available", listing.CreditsAvailable),
		}
	}

	var result entities.WriteResult
	err = me.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		rows, err := me.listings.DecrementListingCredits(ctx, listingID, quantity)
		if err != nil {
			return fmt.Errorf("failed to decrement listing: %w", err)
		}
		if rows == 0 {
			return &entities.ValidationError{Field: "quantity", Reason: "listing no longer has enough credits"}
		}

		result = me.ledger.Transfer(ctx, buyerWallet, ledger.CreditsToUnits(quantity))
		if !result.Success {
			return result.Err
		}
		return nil
	})
	if err != nil {
		me.logger.Error("Purchase failed, decrement rolled back",
			"listing_id", listingID, "quantity", quantity, "error", err)
		if result.Err != nil {
			return result, err
		}
		return entities.WriteResult{Err: err}, err
	}

	me.logger.Info("Purchase settled",
		"listing_id", listingID, "quantity", quantity, "buyer", buyerWallet, "tx_hash", result.TxHash)

	if err := me.settleProjectListings(ctx, listing.ProjectID, buyerWallet); err != nil {
		me.logger.Error("Failed to update project after purchase",
			"project_id", listing.ProjectID, "error", err)
	}

	return result, nil
}

// settleProjectListings re-derives the project's listing-related status
// after a listing changed: settled when every issued credit was sold,
// back to tokenized when listings remain but none are active.
func (me *MarketplaceEngine) settleProjectListings(ctx context.Context, projectID, actor string) error {
	listings, err := me.listings.FindListingsByProject(ctx, projectID)
	if err != nil {
		return err
	}

	var activeRemaining, unsold float64
	anyActive := false
	for i := range listings {
		switch listings[i].Status {
		case entities.ListingActive:
			anyActive = true
			activeRemaining += listings[i].CreditsAvailable
		case entities.ListingCancelled:
			unsold += listings[i].CreditsAvailable
		}
	}

	if anyActive {
		return nil
	}

	project, err := me.projects.FindProject(ctx, projectID)
	if err != nil {
		return err
	}
	if project.Status != entities.StatusListed {
		return nil
	}

	if unsold == 0 && activeRemaining == 0 && project.IssuedCredits > 0 {
		return me.lifecycle.MarkSettled(ctx, projectID, actor)
	}
	return me.lifecycle.MarkDelisted(ctx, projectID, actor)
}
