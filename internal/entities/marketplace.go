package entities

import "time"

// ListingStatus tracks a marketplace listing.
type ListingStatus string

const (
	ListingActive    ListingStatus = "active"
	ListingSold      ListingStatus = "sold"
	ListingCancelled ListingStatus = "cancelled"
)

// Listing offers a tokenized credit batch for sale. CreditsAvailable only
// decreases and never goes negative.
type Listing struct {
	ListingID        string        `db:"listing_id" json:"listing_id"`
	ProjectID        string        `db:"project_id" json:"project_id"`
	CreditsAvailable float64       `db:"credits_available" json:"credits_available"`
	PricePerCredit   float64       `db:"price_per_credit" json:"price_per_credit"`
	SellerWallet     string        `db:"seller_wallet" json:"seller_wallet"`
	Status           ListingStatus `db:"status" json:"status"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time     `db:"updated_at" json:"updated_at"`
}

// TransferStatus tracks a payment transfer.
type TransferStatus string

const (
	TransferPending   TransferStatus = "pending"
	TransferCompleted TransferStatus = "completed"
	TransferFailed    TransferStatus = "failed"
)

// Transfer moves ledger tokens between wallets for revenue sharing. A
// transfer with a given idempotency key is submitted to the ledger at most
// once regardless of retry count.
type Transfer struct {
	TransferID     string         `db:"transfer_id" json:"transfer_id"`
	FromWallet     string         `db:"from_wallet" json:"from_wallet"`
	ToWallet       string         `db:"to_wallet" json:"to_wallet"`
	Amount         float64        `db:"amount" json:"amount"`
	TokenType      string         `db:"token_type" json:"token_type"`
	Purpose        string         `db:"purpose" json:"purpose"`
	Status         TransferStatus `db:"status" json:"status"`
	TxHash         string         `db:"tx_hash" json:"tx_hash"`
	IdempotencyKey string         `db:"idempotency_key" json:"idempotency_key"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}
