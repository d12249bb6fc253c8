package entities

import (
	"errors"
	"fmt"
)

// Ledger session errors. None of these advance or corrupt project state;
// the operation is simply not performed.
var (
	// ErrWalletUnavailable means no signing key could be derived.
	ErrWalletUnavailable = errors.New("wallet unavailable")
	// ErrUserRejected means the caller aborted the operation before the
	// transaction was submitted.
	ErrUserRejected = errors.New("user rejected")
	// ErrWrongNetwork means the RPC endpoint serves a different chain than
	// configured. Retryable after reconnecting to the right network.
	ErrWrongNetwork = errors.New("wrong network")
	// ErrNotFound is returned by repositories for missing rows.
	ErrNotFound = errors.New("not found")
)

// ValidationError rejects malformed or incomplete input at a service
// boundary. It never reaches the ledger.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// StateError rejects an operation attempted from an illegal lifecycle
// state.
type StateError struct {
	ProjectID string
	Status    ProjectStatus
	Operation string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("project %s: cannot %s in status %q", e.ProjectID, e.Operation, e.Status)
}

// NetworkError wraps a transient RPC or connectivity failure. Safe to
// retry because writes are checked for a prior tx hash before
// resubmission.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ContractRevertError means the chain explicitly rejected the
// transaction. Not retried automatically.
type ContractRevertError struct {
	Reason string
}

func (e *ContractRevertError) Error() string {
	return fmt.Sprintf("contract reverted: %s", e.Reason)
}

// ConflictError flags a backend/ledger disagreement discovered during
// reconciliation. Requires manual resolution, never auto-merged.
type ConflictError struct {
	ProjectID string
	BackendTx string
	LedgerTx  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("project %s: backend tx %s disagrees with ledger tx %s",
		e.ProjectID, e.BackendTx, e.LedgerTx)
}

// Retryable reports whether err is worth retrying with backoff.
func Retryable(err error) bool {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, ErrWrongNetwork)
}
