package ports

import (
	"context"
	"io"
	"math/big"

	"github.com/bluecarbon/mrv-registry/backend/internal/entities"
)

// LedgerClient wraps every on-chain operation. It knows nothing about
// project business rules. Writes return a WriteResult instead of an error
// so callers can persist partial failure without aborting the pipeline.
type LedgerClient interface {
	Connect(ctx context.Context) error
	Connected() bool
	OperatorAddress() string
	ChainID() int64

	RegisterProject(ctx context.Context, projectID, owner string, areaHectares float64) entities.WriteResult
	ApproveProject(ctx context.Context, projectID string) entities.WriteResult
	Mint(ctx context.Context, to string, amount *big.Int, projectID, batchID string) entities.WriteResult
	Transfer(ctx context.Context, to string, amount *big.Int) entities.WriteResult

	GetProject(ctx context.Context, projectID string) (*entities.LedgerProject, error)
	BalanceOf(ctx context.Context, address string) (*big.Int, error)
	TotalSupply(ctx context.Context) (*big.Int, error)
	TotalProjects(ctx context.Context) (*big.Int, error)
	LatestBlock(ctx context.Context) (uint64, error)

	// SubscribeEvents starts a long-lived poller delivering contract events
	// until ctx is cancelled. Delivery is at-least-once; consumers must
	// deduplicate by tx hash.
	SubscribeEvents(ctx context.Context) (<-chan entities.LedgerEvent, error)
}

// StorageGateway accepts a binary blob plus metadata and returns a content
// hash and retrieval URL. Pinning internals are external to this system.
type StorageGateway interface {
	Upload(ctx context.Context, file io.Reader, filename, fileType, projectID string, metadata map[string]string) (*entities.StoredObject, error)
}

// LifecycleService owns project status. All mutations go through it.
type LifecycleService interface {
	Submit(ctx context.Context, project *entities.Project, actor string) error
	RecordAIScore(ctx context.Context, projectID string, score float64, actor string) error
	RecordThirdPartyReport(ctx context.Context, projectID string, report entities.ThirdPartyReport) error
	AdminDecide(ctx context.Context, projectID, decision, comments string, creditsAwarded *float64, override bool, actor string) error
	RegisterOnChain(ctx context.Context, projectID string) (entities.WriteResult, error)
	MintCredits(ctx context.Context, projectID string, amount float64, batchID string) (entities.WriteResult, error)
}

// ReconciliationService repairs drift between the backend's belief about a
// project's ledger state and the ledger's actual state.
type ReconciliationService interface {
	Reconcile(ctx context.Context, projectID string) error
	ReconcileAll(ctx context.Context) error
}

// MarketplaceService lists tokenized credit batches and executes atomic
// purchase decrements.
type MarketplaceService interface {
	CreateListing(ctx context.Context, projectID string, credits, price float64, seller string) (*entities.Listing, error)
	ActiveListings(ctx context.Context) ([]entities.Listing, error)
	Purchase(ctx context.Context, listingID string, quantity float64, buyerWallet string) (entities.WriteResult, error)
}

// PaymentService moves token balances between wallets with idempotent
// submission.
type PaymentService interface {
	Transfer(ctx context.Context, req entities.Transfer) (*entities.Transfer, error)
}
