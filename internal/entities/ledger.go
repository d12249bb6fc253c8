package entities

import "time"

// LedgerEventType identifies an event emitted by the registry or token
// contract.
type LedgerEventType string

const (
	EventProjectRegistered  LedgerEventType = "project_registered"
	EventProjectApproved    LedgerEventType = "project_approved"
	EventCreditsMinted      LedgerEventType = "credits_minted"
	EventCreditsTransferred LedgerEventType = "credits_transferred"
)

// LedgerEvent is one contract event observed on chain. Delivery is
// at-least-once; consumers deduplicate by TxHash before applying.
type LedgerEvent struct {
	Type        LedgerEventType `json:"type"`
	TxHash      string          `json:"tx_hash"`
	ProjectID   string          `json:"project_id,omitempty"`
	BatchID     string          `json:"batch_id,omitempty"`
	Wallet      string          `json:"wallet,omitempty"`
	Amount      string          `json:"amount,omitempty"` // token units, decimal string
	BlockNumber uint64          `json:"block_number"`
	ObservedAt  time.Time       `json:"observed_at"`
}

// LedgerProject is the chain's view of a registered project.
type LedgerProject struct {
	ProjectID   string
	Owner       string
	Approved    bool
	TxHash      string
	BlockNumber uint64
}

// WriteResult is the uniform outcome of every ledger write. The ledger
// client reports failure here instead of panicking so callers can persist
// "attempt failed, retry-eligible" and move on.
type WriteResult struct {
	Success     bool   `json:"success"`
	TxHash      string `json:"tx_hash,omitempty"`
	BlockNumber uint64 `json:"block_number,omitempty"`
	Err         error  `json:"-"`
}

// ErrorMessage returns the failure reason, empty on success.
func (r WriteResult) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// StoredObject is the result of a storage-gateway upload.
type StoredObject struct {
	Hash       string `json:"ipfs_hash"`
	GatewayURL string `json:"gateway_url"`
	Size       int64  `json:"size"`
}
