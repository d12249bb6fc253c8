package entities

import "time"

// RegistrationStatus tracks a ledger registration attempt.
type RegistrationStatus string

const (
	RegistrationPending   RegistrationStatus = "pending"
	RegistrationConfirmed RegistrationStatus = "confirmed"
	RegistrationFailed    RegistrationStatus = "failed"
	RegistrationConflict  RegistrationStatus = "conflict"
)

// Registration is the backend's durable record of an on-chain project
// registration. At most one confirmed registration may exist per project;
// a pending one must resolve before a new attempt is allowed.
type Registration struct {
	ID              int                `db:"id" json:"id"`
	ProjectID       string             `db:"project_id" json:"project_id"`
	ChainID         int64              `db:"chain_id" json:"chain_id"`
	TxHash          string             `db:"tx_hash" json:"tx_hash"`
	BlockNumber     int64              `db:"block_number" json:"block_number"`
	ContractAddress string             `db:"contract_address" json:"contract_address"`
	Status          RegistrationStatus `db:"status" json:"status"`
	CreatedAt       time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time          `db:"updated_at" json:"updated_at"`
}

// BatchStatus tracks a mint attempt. The row is written before the ledger
// call so a crash mid-mint leaves a pending record instead of an
// untracked on-chain batch.
type BatchStatus string

const (
	BatchPending BatchStatus = "pending"
	BatchMinted  BatchStatus = "minted"
	BatchFailed  BatchStatus = "failed"
)

// CreditBatch is one discrete minting event for a project. The sum of
// batch amounts never exceeds the project's estimated credits; pending
// batches reserve their amount until the attempt resolves.
type CreditBatch struct {
	BatchID     string      `db:"batch_id" json:"batch_id"`
	ProjectID   string      `db:"project_id" json:"project_id"`
	Amount      float64     `db:"amount" json:"amount"`
	MintedTx    string      `db:"minted_tx_hash" json:"minted_tx_hash"`
	OwnerWallet string      `db:"owner_wallet" json:"owner_wallet"`
	Status      BatchStatus `db:"status" json:"status"`
	MintedAt    time.Time   `db:"minted_at" json:"minted_at"`
}
