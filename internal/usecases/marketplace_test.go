package usecases

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bluecarbon/mrv-registry/backend/internal/entities"
)

func newTestMarketplace(t *testing.T) (*MarketplaceEngine, *LifecycleService, *memProjects, *memListings, *fakeLedger, string) {
	t.Helper()

	service, projects, _, _, _, _, chain := newTestLifecycle()
	projectID := registeredProject(t, service, 1000)
	_, err := service.MintCredits(context.Background(), projectID, 1000, "")
	require.NoError(t, err)

	listings := newMemListings()
	engine := NewMarketplaceEngine(testLogger(), listings, projects, service, chain, &fakeTransactor{listings: listings})
	return engine, service, projects, listings, chain, projectID
}

const ownerWallet = "0x00000000000000000000000000000000000000aa"
const buyerWallet = "0x00000000000000000000000000000000000000bb"

func TestCreateListingRequiresTokenizedProject(t *testing.T) {
	service, projects, _, _, _, _, chain := newTestLifecycle()
	ctx := context.Background()

	projectID := approvedProject(t, service, 1000)
	listings := newMemListings()
	engine := NewMarketplaceEngine(testLogger(), listings, projects, service, chain, &fakeTransactor{listings: listings})

	_, err := engine.CreateListing(ctx, projectID, 100, 12.5, ownerWallet)
	var stateErr *entities.StateError
	require.ErrorAs(t, err, &stateErr)
}

func TestCreateListingMarksProjectListed(t *testing.T) {
	engine, _, projects, _, _, projectID := newTestMarketplace(t)
	ctx := context.Background()

	listing, err := engine.CreateListing(ctx, projectID, 600, 12.5, ownerWallet)
	require.NoError(t, err)
	require.Equal(t, entities.ListingActive, listing.Status)
	require.Equal(t, 600.0, listing.CreditsAvailable)

	stored, err := projects.FindProject(ctx, projectID)
	require.NoError(t, err)
	require.Equal(t, entities.StatusListed, stored.Status)
}

func TestCreateListingCannotExceedIssuedCredits(t *testing.T) {
	engine, _, _, _, _, projectID := newTestMarketplace(t)
	ctx := context.Background()

	_, err := engine.CreateListing(ctx, projectID, 800, 12.5, ownerWallet)
	require.NoError(t, err)

	_, err = engine.CreateListing(ctx, projectID, 300, 12.5, ownerWallet)
	var validationErr *entities.ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestCreateListingRejectsNonOwner(t *testing.T) {
	engine, _, _, _, _, projectID := newTestMarketplace(t)

	_, err := engine.CreateListing(context.Background(), projectID, 100, 12.5, buyerWallet)
	var validationErr *entities.ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestPurchaseDecrementsAndTransfers(t *testing.T) {
	engine, _, _, listings, chain, projectID := newTestMarketplace(t)
	ctx := context.Background()

	listing, err := engine.CreateListing(ctx, projectID, 600, 12.5, ownerWallet)
	require.NoError(t, err)

	result, err := engine.Purchase(ctx, listing.ListingID, 250, buyerWallet)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 1, chain.transferCalls)

	stored, err := listings.FindListing(ctx, listing.ListingID)
	require.NoError(t, err)
	require.Equal(t, 350.0, stored.CreditsAvailable)
	require.Equal(t, entities.ListingActive, stored.Status)
}

func TestPurchaseFailedTransferRollsBackDecrement(t *testing.T) {
	engine, _, _, listings, chain, projectID := newTestMarketplace(t)
	ctx := context.Background()

	listing, err := engine.CreateListing(ctx, projectID, 600, 12.5, ownerWallet)
	require.NoError(t, err)

	chain.transferResult = entities.WriteResult{Err: &entities.ContractRevertError{Reason: "paused"}}

	_, err = engine.Purchase(ctx, listing.ListingID, 250, buyerWallet)
	require.Error(t, err)

	// Availability must be untouched: credits never disappear without
	// tokens moving.
	stored, findErr := listings.FindListing(ctx, listing.ListingID)
	require.NoError(t, findErr)
	require.Equal(t, 600.0, stored.CreditsAvailable)
	require.Equal(t, entities.ListingActive, stored.Status)
}

func TestPurchaseCannotOversell(t *testing.T) {
	engine, _, _, _, chain, projectID := newTestMarketplace(t)
	ctx := context.Background()

	listing, err := engine.CreateListing(ctx, projectID, 100, 12.5, ownerWallet)
	require.NoError(t, err)

	_, err = engine.Purchase(ctx, listing.ListingID, 150, buyerWallet)
	var validationErr *entities.ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Zero(t, chain.transferCalls, "ledger is never touched for an oversell")
}

func TestPurchaseExhaustingAllListingsSettlesProject(t *testing.T) {
	engine, _, projects, listings, _, projectID := newTestMarketplace(t)
	ctx := context.Background()

	listing, err := engine.CreateListing(ctx, projectID, 1000, 12.5, ownerWallet)
	require.NoError(t, err)

	_, err = engine.Purchase(ctx, listing.ListingID, 1000, buyerWallet)
	require.NoError(t, err)

	stored, err := listings.FindListing(ctx, listing.ListingID)
	require.NoError(t, err)
	require.Equal(t, entities.ListingSold, stored.Status)

	project, err := projects.FindProject(ctx, projectID)
	require.NoError(t, err)
	require.Equal(t, entities.StatusSettled, project.Status)
}

func TestCancelListingReturnsProjectToTokenized(t *testing.T) {
	engine, _, projects, _, _, projectID := newTestMarketplace(t)
	ctx := context.Background()

	listing, err := engine.CreateListing(ctx, projectID, 500, 12.5, ownerWallet)
	require.NoError(t, err)

	require.NoError(t, engine.CancelListing(ctx, listing.ListingID, ownerWallet))

	project, err := projects.FindProject(ctx, projectID)
	require.NoError(t, err)
	require.Equal(t, entities.StatusTokenized, project.Status)
}
