package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bluecarbon/mrv-registry/backend/internal/core/ports"
	"github.com/bluecarbon/mrv-registry/backend/internal/entities"
)

// Reconciler repairs drift between the backend's registration records and
// the ledger's actual state. It adopts ledger registrations the backend
// missed, times out stuck pending attempts, and flags tx-hash
// disagreements as conflicts. Conflicts are never auto-merged.
type Reconciler struct {
	logger         *slog.Logger
	projects       ProjectsRepository
	registrations  RegistrationsRepository
	audit          AuditRepository
	ledger         ports.LedgerClient
	pendingTimeout time.Duration
}

func NewReconciler(
	logger *slog.Logger,
	projects ProjectsRepository,
	registrations RegistrationsRepository,
	audit AuditRepository,
	ledgerClient ports.LedgerClient,
	pendingTimeout time.Duration,
) *Reconciler {
	return &Reconciler{
		logger:         logger,
		projects:       projects,
		registrations:  registrations,
		audit:          audit,
		ledger:         ledgerClient,
		pendingTimeout: pendingTimeout,
	}
}

// ledgerStatuses are the project states with an on-chain footprint worth
// checking.
var ledgerStatuses = []entities.ProjectStatus{
	entities.StatusApproved,
	entities.StatusBlockchainPending,
	entities.StatusBlockchainRegistered,
	entities.StatusTokenized,
	entities.StatusListed,
}

// ReconcileAll sweeps every project the ledger could know about. One
// failing project does not stop the sweep; the first error is reported
// after all projects were attempted.
func (r *Reconciler) ReconcileAll(ctx context.Context) error {
	projects, err := r.projects.FindProjectsByStatuses(ctx, ledgerStatuses)
	if err != nil {
		return fmt.Errorf("failed to load projects for reconciliation: %w", err)
	}

	var firstErr error
	for i := range projects {
		if err := r.Reconcile(ctx, projects[i].ID); err != nil {
			r.logger.Error("Reconciliation failed", "project_id", projects[i].ID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	r.logger.Info("Reconciliation sweep finished", "projects", len(projects))
	return firstErr
}

// Reconcile compares one project's backend registration record against the
// ledger and repairs the backend side where the repair is unambiguous.
func (r *Reconciler) Reconcile(ctx context.Context, projectID string) error {
	project, err := r.projects.FindProject(ctx, projectID)
	if err != nil {
		return err
	}

	registration, err := r.registrations.FindLatestByProject(ctx, projectID)
	if err != nil && !errors.Is(err, entities.ErrNotFound) {
		return fmt.Errorf("failed to load registration: %w", err)
	}

	ledgerView, err := r.ledger.GetProject(ctx, projectID)
	if err != nil && !errors.Is(err, entities.ErrNotFound) {
		return &entities.NetworkError{Op: "reconcile", Err: err}
	}

	switch {
	case registration == nil && ledgerView != nil:
		return r.adoptLedgerRegistration(ctx, project, ledgerView)

	case registration == nil && ledgerView == nil:
		return nil

	case registration.Status == entities.RegistrationPending:
		return r.resolvePending(ctx, project, registration, ledgerView)

	case registration.Status == entities.RegistrationFailed:
		return r.resolveFailed(ctx, project, registration, ledgerView)

	case registration.Status == entities.RegistrationConfirmed:
		if ledgerView != nil && ledgerView.TxHash != "" && registration.TxHash != "" &&
			ledgerView.TxHash != registration.TxHash {
			return r.flagConflict(ctx, registration, ledgerView.TxHash)
		}
		return nil

	case registration.Status == entities.RegistrationConflict:
		// Already flagged; wait for manual resolution.
		return &entities.ConflictError{ProjectID: projectID, BackendTx: registration.TxHash}
	}

	return nil
}

// adoptLedgerRegistration covers the crash-between-submit-and-persist
// case: the ledger has the project but the backend has no record of the
// attempt. The ledger's record is adopted as confirmed.
func (r *Reconciler) adoptLedgerRegistration(ctx context.Context, project *entities.Project, view *entities.LedgerProject) error {
	now := time.Now().UTC()
	registration := &entities.Registration{
		ProjectID:   project.ID,
		ChainID:     r.ledger.ChainID(),
		TxHash:      view.TxHash,
		BlockNumber: int64(view.BlockNumber),
		Status:      entities.RegistrationConfirmed,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := r.registrations.InsertRegistration(ctx, registration); err != nil {
		return fmt.Errorf("failed to adopt ledger registration: %w", err)
	}

	r.logger.Warn("Adopted ledger registration unknown to backend",
		"project_id", project.ID, "tx_hash", view.TxHash)

	if project.Status == entities.StatusApproved || project.Status == entities.StatusBlockchainPending {
		return r.setStatus(ctx, project, entities.StatusBlockchainRegistered, view.TxHash)
	}
	return nil
}

func (r *Reconciler) resolvePending(ctx context.Context, project *entities.Project, registration *entities.Registration, view *entities.LedgerProject) error {
	// Ledger confirms the same tx: settle the pending record.
	if view != nil && view.TxHash != "" {
		if registration.TxHash == "" || registration.TxHash == view.TxHash {
			registration.TxHash = view.TxHash
			registration.BlockNumber = int64(view.BlockNumber)
			registration.Status = entities.RegistrationConfirmed
			registration.UpdatedAt = time.Now().UTC()
			if err := r.registrations.UpdateRegistration(ctx, registration); err != nil {
				return fmt.Errorf("failed to confirm registration: %w", err)
			}

			r.logger.Info("Pending registration confirmed by ledger",
				"project_id", project.ID, "tx_hash", view.TxHash)

			if project.Status == entities.StatusBlockchainPending {
				return r.setStatus(ctx, project, entities.StatusBlockchainRegistered, view.TxHash)
			}
			return nil
		}
		return r.flagConflict(ctx, registration, view.TxHash)
	}

	// Ledger has nothing. Keep waiting unless the attempt is stale.
	if time.Since(registration.CreatedAt) < r.pendingTimeout {
		return nil
	}

	registration.Status = entities.RegistrationFailed
	registration.UpdatedAt = time.Now().UTC()
	if err := r.registrations.UpdateRegistration(ctx, registration); err != nil {
		return fmt.Errorf("failed to expire pending registration: %w", err)
	}

	r.logger.Warn("Pending registration timed out",
		"project_id", project.ID, "age", time.Since(registration.CreatedAt))

	project.RetryEligible = true
	if project.Status == entities.StatusBlockchainPending {
		return r.setStatus(ctx, project, entities.StatusApproved, "registration timed out")
	}

	project.UpdatedAt = time.Now().UTC()
	return r.projects.UpdateProject(ctx, project)
}

// resolveFailed covers a write that landed despite the reported failure:
// the client errored (say, a timeout waiting for the send) but the ledger
// has the project. The failed record is revived as confirmed so the retry
// path does not submit a duplicate registration.
func (r *Reconciler) resolveFailed(ctx context.Context, project *entities.Project, registration *entities.Registration, view *entities.LedgerProject) error {
	if view == nil {
		// Genuinely failed; the retry path stays open.
		return nil
	}
	if registration.TxHash != "" && view.TxHash != "" && registration.TxHash != view.TxHash {
		return r.flagConflict(ctx, registration, view.TxHash)
	}

	registration.TxHash = view.TxHash
	registration.BlockNumber = int64(view.BlockNumber)
	registration.Status = entities.RegistrationConfirmed
	registration.UpdatedAt = time.Now().UTC()
	if err := r.registrations.UpdateRegistration(ctx, registration); err != nil {
		return fmt.Errorf("failed to revive failed registration: %w", err)
	}

	r.logger.Warn("Failed registration found on ledger, adopted as confirmed",
		"project_id", project.ID, "tx_hash", view.TxHash)

	project.RetryEligible = false
	if project.Status == entities.StatusApproved || project.Status == entities.StatusBlockchainPending {
		return r.setStatus(ctx, project, entities.StatusBlockchainRegistered, view.TxHash)
	}

	project.UpdatedAt = time.Now().UTC()
	return r.projects.UpdateProject(ctx, project)
}

func (r *Reconciler) flagConflict(ctx context.Context, registration *entities.Registration, ledgerTx string) error {
	conflict := &entities.ConflictError{
		ProjectID: registration.ProjectID,
		BackendTx: registration.TxHash,
		LedgerTx:  ledgerTx,
	}

	registration.Status = entities.RegistrationConflict
	registration.UpdatedAt = time.Now().UTC()
	if err := r.registrations.UpdateRegistration(ctx, registration); err != nil {
		return fmt.Errorf("failed to persist registration conflict: %w", err)
	}

	r.logger.Error("Registration conflict, manual resolution required",
		"project_id", registration.ProjectID,
		"backend_tx", registration.TxHash, "ledger_tx", ledgerTx)

	return conflict
}

// setStatus is the reconciler's narrow status repair. It bypasses the
// transition table on purpose: reconciliation restores the status the
// ledger proves, and every repair is audited under the reconciler actor.
func (r *Reconciler) setStatus(ctx context.Context, project *entities.Project, to entities.ProjectStatus, evidenceRef string) error {
	from := project.Status
	project.Status = to
	project.UpdatedAt = time.Now().UTC()
	if err := r.projects.UpdateProject(ctx, project); err != nil {
		project.Status = from
		return fmt.Errorf("failed to repair project status: %w", err)
	}

	entry := &entities.AuditEntry{
		ID:          uuid.NewString(),
		ProjectID:   project.ID,
		FromStatus:  from,
		ToStatus:    to,
		Actor:       "reconciler",
		EvidenceRef: evidenceRef,
		CreatedAt:   time.Now().UTC(),
	}
	if err := r.audit.InsertEntry(ctx, entry); err != nil {
		return fmt.Errorf("failed to audit status repair: %w", err)
	}
	return nil
}
