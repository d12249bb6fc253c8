package handlers

import (
	"context"

	"github.com/bluecarbon/mrv-registry/backend/internal/entities"
	"github.com/bluecarbon/mrv-registry/backend/internal/usecases"
)

type LifecycleService interface {
	Submit(ctx context.Context, project *entities.Project, actor string) error
	RecordAIScore(ctx context.Context, projectID string, score float64, actor string) error
	RecordThirdPartyReport(ctx context.Context, projectID string, report entities.ThirdPartyReport) error
	AdminDecide(ctx context.Context, projectID, decision, comments string, creditsAwarded *float64, override bool, actor string) error
	RegisterOnChain(ctx context.Context, projectID string) (entities.WriteResult, error)
	MintCredits(ctx context.Context, projectID string, amount float64, batchID string) (entities.WriteResult, error)
	GetProject(ctx context.Context, projectID string) (*entities.Project, error)
	ListProjects(ctx context.Context, filter usecases.ProjectFilter) ([]entities.Project, error)
	AuditTrail(ctx context.Context, projectID string) ([]entities.AuditEntry, error)
	VerificationStatus(ctx context.Context, projectID string) (*entities.VerificationStatusView, error)
}

type MarketplaceService interface {
	CreateListing(ctx context.Context, projectID string, credits, price float64, seller string) (*entities.Listing, error)
	ActiveListings(ctx context.Context) ([]entities.Listing, error)
	ProjectListings(ctx context.Context, projectID string) ([]entities.Listing, error)
	CancelListing(ctx context.Context, listingID, actor string) error
	Purchase(ctx context.Context, listingID string, quantity float64, buyerWallet string) (entities.WriteResult, error)
}

type PaymentsService interface {
	Transfer(ctx context.Context, req entities.Transfer) (*entities.Transfer, error)
	History(ctx context.Context, wallet string) ([]entities.Transfer, error)
}

type ReconciliationService interface {
	Reconcile(ctx context.Context, projectID string) error
	ReconcileAll(ctx context.Context) error
}

var (
	_ LifecycleService      = (*usecases.LifecycleService)(nil)
	_ MarketplaceService    = (*usecases.MarketplaceEngine)(nil)
	_ PaymentsService       = (*usecases.PaymentsService)(nil)
	_ ReconciliationService = (*usecases.Reconciler)(nil)
)
