package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bluecarbon/mrv-registry/backend/internal/core/ports"
	"github.com/bluecarbon/mrv-registry/backend/internal/entities"
	"github.com/bluecarbon/mrv-registry/backend/internal/ledger"
)

// ProjectFilter narrows project listing queries. Zero values mean "any".
type ProjectFilter struct {
	Status        entities.ProjectStatus
	EcosystemType entities.EcosystemType
	OwnerWallet   string
}

type ProjectsRepository interface {
	FindProject(ctx context.Context, projectID string) (*entities.Project, error)
	FindProjects(ctx context.Context, filter ProjectFilter) ([]entities.Project, error)
	FindProjectsByStatuses(ctx context.Context, statuses []entities.ProjectStatus) ([]entities.Project, error)
	InsertProject(ctx context.Context, project *entities.Project) error
	UpdateProject(ctx context.Context, project *entities.Project) error
}

type VerificationsRepository interface {
	FindRecords(ctx context.Context, projectID string) ([]entities.VerificationRecord, error)
	InsertRecord(ctx context.Context, record *entities.VerificationRecord) error
}

type RegistrationsRepository interface {
	FindLatestByProject(ctx context.Context, projectID string) (*entities.Registration, error)
	InsertRegistration(ctx context.Context, registration *entities.Registration) (int, error)
	UpdateRegistration(ctx context.Context, registration *entities.Registration) error
}

type BatchesRepository interface {
	FindBatch(ctx context.Context, batchID string) (*entities.CreditBatch, error)
	FindBatches(ctx context.Context, projectID string) ([]entities.CreditBatch, error)
	InsertBatch(ctx context.Context, batch *entities.CreditBatch) error
	UpdateBatch(ctx context.Context, batch *entities.CreditBatch) error
}

type AuditRepository interface {
	FindEntries(ctx context.Context, projectID string) ([]entities.AuditEntry, error)
	InsertEntry(ctx context.Context, entry *entities.AuditEntry) error
}

// allowedTransitions is the only place legal status moves are defined.
var allowedTransitions = map[entities.ProjectStatus][]entities.ProjectStatus{
	entities.StatusDraft:                {entities.StatusSubmitted},
	entities.StatusSubmitted:            {entities.StatusAIVerifying},
	entities.StatusAIVerifying:          {entities.StatusRequiresThirdParty, entities.StatusAdminReview},
	entities.StatusRequiresThirdParty:   {entities.StatusAdminReview},
	entities.StatusAdminReview:          {entities.StatusApproved, entities.StatusRejected, entities.StatusRequiresRevision},
	entities.StatusRequiresRevision:     {entities.StatusSubmitted},
	entities.StatusApproved:             {entities.StatusBlockchainPending},
	entities.StatusBlockchainPending:    {entities.StatusBlockchainRegistered, entities.StatusApproved},
	entities.StatusBlockchainRegistered: {entities.StatusTokenized},
	entities.StatusTokenized:            {entities.StatusListed},
	entities.StatusListed:               {entities.StatusTokenized, entities.StatusSettled},
	entities.StatusRejected:             nil,
	entities.StatusSettled:              nil,
}

func canTransition(from, to entities.ProjectStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// projectLocks hands out one mutex per project ID so concurrent operations
// on the same project serialize while unrelated projects proceed.
type projectLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newProjectLocks() *projectLocks {
	return &projectLocks{locks: make(map[string]*sync.Mutex)}
}

func (pl *projectLocks) get(projectID string) *sync.Mutex {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	lock, ok := pl.locks[projectID]
	if !ok {
		lock = &sync.Mutex{}
		pl.locks[projectID] = lock
	}
	return lock
}

// LifecycleService is the single owner of project status. Every mutation
// goes through transition(), which enforces the transition table and
// writes an audit entry.
type LifecycleService struct {
	logger        *slog.Logger
	projects      ProjectsRepository
	verifications VerificationsRepository
	registrations RegistrationsRepository
	batches       BatchesRepository
	audit         AuditRepository
	ledger        ports.LedgerClient
	transactor    Transactor
	locks         *projectLocks
}

func NewLifecycleService(
	logger *slog.Logger,
	projects ProjectsRepository,
	verifications VerificationsRepository,
	registrations RegistrationsRepository,
	batches BatchesRepository,
	audit AuditRepository,
	ledger ports.LedgerClient,
	transactor Transactor,
) *LifecycleService {
	return &LifecycleService{
		logger:        logger,
		projects:      projects,
		verifications: verifications,
		registrations: registrations,
		batches:       batches,
		audit:         audit,
		ledger:        ledger,
		transactor:    transactor,
		locks:         newProjectLocks(),
	}
}

// transition moves project to the target status, persists it and records
// an audit entry. The caller must hold the project lock.
func (ls *LifecycleService) transition(ctx context.Context, project *entities.Project, to entities.ProjectStatus, actor, evidenceRef string) error {
	if !canTransition(project.Status, to) {
		return &entities.StateError{
			ProjectID: project.ID,
			Status:    project.Status,
			Operation: fmt.Sprintf("transition to %q", to),
		}
	}

	from := project.Status
	project.Status = to
	project.UpdatedAt = time.Now().UTC()

	entry := &entities.AuditEntry{
		ID:          uuid.NewString(),
		ProjectID:   project.ID,
		FromStatus:  from,
		ToStatus:    to,
		Actor:       actor,
		EvidenceRef: evidenceRef,
		CreatedAt:   time.Now().UTC(),
	}

	// The status row and its audit entry commit together; a transition
	// without a trail must not survive.
	err := ls.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := ls.projects.UpdateProject(ctx, project); err != nil {
			return fmt.Errorf("failed to persist status transition: %w", err)
		}
		if err := ls.audit.InsertEntry(ctx, entry); err != nil {
			return fmt.Errorf("failed to record audit entry: %w", err)
		}
		return nil
	})
	if err != nil {
		project.Status = from
		return err
	}

	ls.logger.Info("Project status transition",
		"project_id", project.ID, "from", from, "to", to, "actor", actor)

	return nil
}

// Submit validates a new project and enters it into the pipeline. On
// success the project sits in ai_verifying awaiting an external score.
func (ls *LifecycleService) Submit(ctx context.Context, project *entities.Project, actor string) error {
	if err := validateSubmission(project); err != nil {
		return err
	}

	if project.ID == "" {
		project.ID = uuid.NewString()
	}

	lock := ls.locks.get(project.ID)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now().UTC()
	project.Status = entities.StatusDraft
	project.CreatedAt = now
	project.UpdatedAt = now

	if err := ls.projects.InsertProject(ctx, project); err != nil {
		return fmt.Errorf("failed to insert project: %w", err)
	}

	if err := ls.transition(ctx, project, entities.StatusSubmitted, actor, ""); err != nil {
		return err
	}

	return ls.transition(ctx, project, entities.StatusAIVerifying, "system", "")
}

func validateSubmission(project *entities.Project) error {
	switch {
	case project.Name == "":
		return &entities.ValidationError{Field: "name", Reason: "required"}
	case !entities.ValidEcosystemType(project.EcosystemType):
		return &entities.ValidationError{Field: "ecosystem_type", Reason: fmt.Sprintf("unknown type %q", project.EcosystemType)}
	case project.AreaHectares <= 0:
		return &entities.ValidationError{Field: "area_hectares", Reason: "must be positive"}
	case project.Location == "":
		return &entities.ValidationError{Field: "location", Reason: "required"}
	case len(project.MediaRefs) == 0:
		return &entities.ValidationError{Field: "media_refs", Reason: "at least one media file required"}
	case project.OwnerWallet == "":
		return &entities.ValidationError{Field: "owner_wallet", Reason: "required"}
	}
	return nil
}

// RecordAIScore applies an automated verification score. Replaying the
// same score is a no-op. A score arriving after approval never demotes
// the project; it is recorded and the project flagged for review instead.
func (ls *LifecycleService) RecordAIScore(ctx context.Context, projectID string, score float64, actor string) error {
	if score < 0 || score > 100 {
		return &entities.ValidationError{Field: "score", Reason: "must be between 0 and 100"}
	}

	lock := ls.locks.get(projectID)
	lock.Lock()
	defer lock.Unlock()

	project, err := ls.projects.FindProject(ctx, projectID)
	if err != nil {
		return err
	}

	records, err := ls.verifications.FindRecords(ctx, projectID)
	if err != nil {
		return fmt.Errorf("failed to load verification records: %w", err)
	}

	for _, record := range records {
		if record.Stage == entities.StageAI && record.Completed &&
			record.Score != nil && *record.Score == score {
			ls.logger.Info("Duplicate AI score ignored", "project_id", projectID, "score", score)
			return nil
		}
	}

	if project.Status != entities.StatusAIVerifying {
		if statusAtOrPast(project.Status, entities.StatusApproved) {
			return ls.flagRescore(ctx, project, score, actor)
		}
		return &entities.StateError{ProjectID: projectID, Status: project.Status, Operation: "record AI score"}
	}

	record := &entities.VerificationRecord{
		ProjectID: projectID,
		Stage:     entities.StageAI,
		Completed: true,
		Score:     &score,
		Actor:     actor,
		CreatedAt: time.Now().UTC(),
	}
	if err := ls.verifications.InsertRecord(ctx, record); err != nil {
		return fmt.Errorf("failed to insert AI verification record: %w", err)
	}

	project.VerificationScore = &score
	records = append(records, *record)

	decision := NextStage(project, records)
	return ls.transition(ctx, project, decision.NextStatus, "system", decision.Reason)
}

// flagRescore records a post-approval score without touching status. Only
// an admin can act on the flag.
func (ls *LifecycleService) flagRescore(ctx context.Context, project *entities.Project, score float64, actor string) error {
	record := &entities.VerificationRecord{
		ProjectID: project.ID,
		Stage:     entities.StageAI,
		Completed: true,
		Score:     &score,
		Actor:     actor,
		Comments:  "score received after approval, flagged for admin review",
		CreatedAt: time.Now().UTC(),
	}
	if err := ls.verifications.InsertRecord(ctx, record); err != nil {
		return fmt.Errorf("failed to insert rescore record: %w", err)
	}

	project.RescoreFlagged = true
	project.UpdatedAt = time.Now().UTC()
	if err := ls.projects.UpdateProject(ctx, project); err != nil {
		return fmt.Errorf("failed to flag project for rescore: %w", err)
	}

	ls.logger.Warn("Post-approval score flagged, status unchanged",
		"project_id", project.ID, "status", project.Status, "score", score)

	return nil
}

// statusAtOrPast reports whether status has reached milestone in pipeline
// order.
func statusAtOrPast(status, milestone entities.ProjectStatus) bool {
	order := []entities.ProjectStatus{
		entities.StatusDraft, entities.StatusSubmitted, entities.StatusAIVerifying,
		entities.StatusRequiresThirdParty, entities.StatusAdminReview,
		entities.StatusApproved, entities.StatusBlockchainPending,
		entities.StatusBlockchainRegistered, entities.StatusTokenized,
		entities.StatusListed, entities.StatusSettled,
	}
	rank := func(s entities.ProjectStatus) int {
		for i, candidate := range order {
			if candidate == s {
				return i
			}
		}
		return -1
	}
	statusRank, milestoneRank := rank(status), rank(milestone)
	return statusRank >= 0 && milestoneRank >= 0 && statusRank >= milestoneRank
}

// RecordThirdPartyReport stores a field verification outcome and moves the
// project to admin review for the final call.
func (ls *LifecycleService) RecordThirdPartyReport(ctx context.Context, projectID string, report entities.ThirdPartyReport) error {
	if report.Organization == "" {
		return &entities.ValidationError{Field: "organization", Reason: "required"}
	}
	if report.Decision != entities.DecisionApprove && report.Decision != entities.DecisionReject {
		return &entities.ValidationError{Field: "decision", Reason: "must be approve or reject"}
	}

	lock := ls.locks.get(projectID)
	lock.Lock()
	defer lock.Unlock()

	project, err := ls.projects.FindProject(ctx, projectID)
	if err != nil {
		return err
	}

	if project.Status != entities.StatusRequiresThirdParty {
		return &entities.StateError{ProjectID: projectID, Status: project.Status, Operation: "record third-party report"}
	}

	decision := report.Decision
	record := &entities.VerificationRecord{
		ProjectID: projectID,
		Stage:     entities.StageThirdParty,
		Completed: true,
		Decision:  &decision,
		Actor:     report.Organization,
		Comments:  report.Summary,
		CreatedAt: time.Now().UTC(),
	}
	if err := ls.verifications.InsertRecord(ctx, record); err != nil {
		return fmt.Errorf("failed to insert third-party record: %w", err)
	}

	return ls.transition(ctx, project, entities.StatusAdminReview, report.Organization, report.ReportRef)
}

// AdminDecide records the admin's terminal verdict. Approving requires a
// positive credits award. With override set an admin may decide straight
// from requires_third_party, skipping field verification; the skip is
// recorded on the verification record and in the audit trail.
func (ls *LifecycleService) AdminDecide(ctx context.Context, projectID, decision, comments string, creditsAwarded *float64, override bool, actor string) error {
	var target entities.ProjectStatus
	switch decision {
	case entities.DecisionApprove:
		target = entities.StatusApproved
	case entities.DecisionReject:
		target = entities.StatusRejected
	case entities.DecisionRequiresRevision:
		target = entities.StatusRequiresRevision
	default:
		return &entities.ValidationError{Field: "decision", Reason: fmt.Sprintf("unknown decision %q", decision)}
	}

	if decision == entities.DecisionApprove && (creditsAwarded == nil || *creditsAwarded <= 0) {
		return &entities.ValidationError{Field: "credits_awarded", Reason: "approval requires a positive credit award"}
	}

	lock := ls.locks.get(projectID)
	lock.Lock()
	defer lock.Unlock()

	project, err := ls.projects.FindProject(ctx, projectID)
	if err != nil {
		return err
	}

	switch project.Status {
	case entities.StatusAdminReview:
	case entities.StatusRequiresThirdParty:
		if !override {
			return &entities.StateError{ProjectID: projectID, Status: project.Status, Operation: "admin decide without override"}
		}
		if err := ls.transition(ctx, project, entities.StatusAdminReview, actor, "admin override: third-party verification skipped"); err != nil {
			return err
		}
	default:
		return &entities.StateError{ProjectID: projectID, Status: project.Status, Operation: "admin decide"}
	}

	verdict := decision
	record := &entities.VerificationRecord{
		ProjectID: projectID,
		Stage:     entities.StageAdmin,
		Completed: true,
		Decision:  &verdict,
		Actor:     actor,
		Comments:  comments,
		Override:  override,
		CreatedAt: time.Now().UTC(),
	}
	if err := ls.verifications.InsertRecord(ctx, record); err != nil {
		return fmt.Errorf("failed to insert admin record: %w", err)
	}

	if decision == entities.DecisionApprove {
		project.EstimatedCredits = *creditsAwarded
		project.RescoreFlagged = false
	}

	return ls.transition(ctx, project, target, actor, comments)
}

// RegisterOnChain submits the project registration transaction. The
// pending registration row is persisted before the ledger call so a crash
// between submit and confirm is recoverable by reconciliation. Failure
// returns the project to approved with the retry flag set.
func (ls *LifecycleService) RegisterOnChain(ctx context.Context, projectID string) (entities.WriteResult, error) {
	lock := ls.locks.get(projectID)
	lock.Lock()
	defer lock.Unlock()

	project, err := ls.projects.FindProject(ctx, projectID)
	if err != nil {
		return entities.WriteResult{}, err
	}

	if project.Status != entities.StatusApproved {
		return entities.WriteResult{}, &entities.StateError{ProjectID: projectID, Status: project.Status, Operation: "register on chain"}
	}

	existing, err := ls.registrations.FindLatestByProject(ctx, projectID)
	if err != nil && !isNotFound(err) {
		return entities.WriteResult{}, fmt.Errorf("failed to check existing registration: %w", err)
	}
	if existing != nil {
		switch existing.Status {
		case entities.RegistrationConfirmed:
			return entities.WriteResult{}, &entities.StateError{ProjectID: projectID, Status: project.Status, Operation: "register an already registered project"}
		case entities.RegistrationPending:
			return entities.WriteResult{}, &entities.StateError{ProjectID: projectID, Status: project.Status, Operation: "register while a registration is pending"}
		case entities.RegistrationConflict:
			return entities.WriteResult{}, &entities.ConflictError{ProjectID: projectID, BackendTx: existing.TxHash}
		}
	}

	if err := ls.transition(ctx, project, entities.StatusBlockchainPending, "system", ""); err != nil {
		return entities.WriteResult{}, err
	}

	now := time.Now().UTC()
	registration := &entities.Registration{
		ProjectID: projectID,
		ChainID:   ls.ledger.ChainID(),
		Status:    entities.RegistrationPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	registration.ID, err = ls.registrations.InsertRegistration(ctx, registration)
	if err != nil {
		return entities.WriteResult{}, fmt.Errorf("failed to insert pending registration: %w", err)
	}

	result := ls.ledger.RegisterProject(ctx, project.ID, project.OwnerWallet, project.AreaHectares)

	if !result.Success {
		registration.Status = entities.RegistrationFailed
		registration.UpdatedAt = time.Now().UTC()
		if updateErr := ls.registrations.UpdateRegistration(ctx, registration); updateErr != nil {
			ls.logger.Error("Failed to mark registration failed", "project_id", projectID, "error", updateErr)
		}

		project.RetryEligible = true
		if err := ls.transition(ctx, project, entities.StatusApproved, "system", result.ErrorMessage()); err != nil {
			return result, err
		}

		ls.logger.Error("On-chain registration failed",
			"project_id", projectID, "error", result.ErrorMessage())
		return result, nil
	}

	registration.TxHash = result.TxHash
	registration.BlockNumber = int64(result.BlockNumber)
	registration.UpdatedAt = time.Now().UTC()
	if err := ls.registrations.UpdateRegistration(ctx, registration); err != nil {
		return result, fmt.Errorf("failed to record registration tx: %w", err)
	}

	project.RetryEligible = false
	if err := ls.transition(ctx, project, entities.StatusBlockchainRegistered, "system", result.TxHash); err != nil {
		return result, err
	}

	return result, nil
}

// ConfirmRegistration marks a pending registration confirmed after the
// ledger event for its tx hash arrives. Safe to call more than once.
func (ls *LifecycleService) ConfirmRegistration(ctx context.Context, projectID, txHash string) error {
	lock := ls.locks.get(projectID)
	lock.Lock()
	defer lock.Unlock()

	registration, err := ls.registrations.FindLatestByProject(ctx, projectID)
	if err != nil {
		return err
	}

	if registration.Status == entities.RegistrationConfirmed {
		return nil
	}
	if registration.TxHash != "" && registration.TxHash != txHash {
		return &entities.ConflictError{ProjectID: projectID, BackendTx: registration.TxHash, LedgerTx: txHash}
	}

	registration.TxHash = txHash
	registration.Status = entities.RegistrationConfirmed
	registration.UpdatedAt = time.Now().UTC()
	return ls.registrations.UpdateRegistration(ctx, registration)
}

// MintCredits mints a credit batch for a registered project. The batch
// cannot push issued credits past the admin-awarded estimate; pending
// attempts reserve their amount until they resolve. The batch row is
// written before the ledger call so a crash mid-mint leaves a record
// instead of an untracked on-chain mint. The first successful mint moves
// the project to tokenized.
func (ls *LifecycleService) MintCredits(ctx context.Context, projectID string, amount float64, batchID string) (entities.WriteResult, error) {
	if amount <= 0 {
		return entities.WriteResult{}, &entities.ValidationError{Field: "amount", Reason: "must be positive"}
	}

	lock := ls.locks.get(projectID)
	lock.Lock()
	defer lock.Unlock()

	project, err := ls.projects.FindProject(ctx, projectID)
	if err != nil {
		return entities.WriteResult{}, err
	}

	if project.Status != entities.StatusBlockchainRegistered && project.Status != entities.StatusTokenized {
		return entities.WriteResult{}, &entities.StateError{ProjectID: projectID, Status: project.Status, Operation: "mint credits"}
	}

	existingBatches, err := ls.batches.FindBatches(ctx, projectID)
	if err != nil {
		return entities.WriteResult{}, fmt.Errorf("failed to load credit batches: %w", err)
	}

	var retrying *entities.CreditBatch
	var reserved float64
	for i := range existingBatches {
		if existingBatches[i].Status == entities.BatchPending {
			reserved += existingBatches[i].Amount
		}
		if batchID != "" && existingBatches[i].BatchID == batchID {
			switch existingBatches[i].Status {
			case entities.BatchMinted:
				return entities.WriteResult{}, &entities.StateError{ProjectID: projectID, Status: project.Status, Operation: "mint an already minted batch"}
			case entities.BatchPending:
				return entities.WriteResult{}, &entities.StateError{ProjectID: projectID, Status: project.Status, Operation: "mint while the batch attempt is unresolved"}
			case entities.BatchFailed:
				retrying = &existingBatches[i]
			}
		}
	}

	remaining := project.EstimatedCredits - project.IssuedCredits - reserved
	if amount > remaining {
		return entities.WriteResult{}, &entities.ValidationError{
			Field:  "amount",
			Reason: fmt.Sprintf("exceeds remaining mintable credits (%.2f)", remaining),
		}
	}

	if batchID == "" {
		batchID = uuid.NewString()
	}

	now := time.Now().UTC()
	batch := &entities.CreditBatch{
		BatchID:     batchID,
		ProjectID:   projectID,
		Amount:      amount,
		OwnerWallet: project.OwnerWallet,
		Status:      entities.BatchPending,
		MintedAt:    now,
	}
	if retrying != nil {
		if err := ls.batches.UpdateBatch(ctx, batch); err != nil {
			return entities.WriteResult{}, fmt.Errorf("failed to reset failed batch: %w", err)
		}
	} else {
		if err := ls.batches.InsertBatch(ctx, batch); err != nil {
			return entities.WriteResult{}, fmt.Errorf("failed to insert pending batch: %w", err)
		}
	}

	result := ls.ledger.Mint(ctx, project.OwnerWallet, ledger.CreditsToUnits(amount), project.ID, batchID)
	if !result.Success {
		batch.Status = entities.BatchFailed
		batch.MintedAt = time.Now().UTC()
		if updateErr := ls.batches.UpdateBatch(ctx, batch); updateErr != nil {
			ls.logger.Error("Failed to mark batch failed",
				"project_id", projectID, "batch_id", batchID, "error", updateErr)
		}

		ls.logger.Error("Credit mint failed",
			"project_id", projectID, "batch_id", batchID, "error", result.ErrorMessage())
		return result, nil
	}

	batch.Status = entities.BatchMinted
	batch.MintedTx = result.TxHash
	batch.MintedAt = time.Now().UTC()
	if err := ls.batches.UpdateBatch(ctx, batch); err != nil {
		return result, fmt.Errorf("failed to record minted batch: %w", err)
	}

	project.IssuedCredits += amount
	if project.Status == entities.StatusBlockchainRegistered {
		if err := ls.transition(ctx, project, entities.StatusTokenized, "system", result.TxHash); err != nil {
			return result, err
		}
	} else {
		project.UpdatedAt = time.Now().UTC()
		if err := ls.projects.UpdateProject(ctx, project); err != nil {
			return result, fmt.Errorf("failed to update issued credits: %w", err)
		}
	}

	return result, nil
}

// MarkListed records that credits from the project went on sale.
func (ls *LifecycleService) MarkListed(ctx context.Context, projectID, actor string) error {
	lock := ls.locks.get(projectID)
	lock.Lock()
	defer lock.Unlock()

	project, err := ls.projects.FindProject(ctx, projectID)
	if err != nil {
		return err
	}
	if project.Status == entities.StatusListed {
		return nil
	}
	return ls.transition(ctx, project, entities.StatusListed, actor, "")
}

// MarkDelisted returns a project to tokenized once no active listings
// remain.
func (ls *LifecycleService) MarkDelisted(ctx context.Context, projectID, actor string) error {
	lock := ls.locks.get(projectID)
	lock.Lock()
	defer lock.Unlock()

	project, err := ls.projects.FindProject(ctx, projectID)
	if err != nil {
		return err
	}
	if project.Status == entities.StatusTokenized {
		return nil
	}
	return ls.transition(ctx, project, entities.StatusTokenized, actor, "")
}

// MarkSettled closes a project whose issued credits have all been sold.
func (ls *LifecycleService) MarkSettled(ctx context.Context, projectID, actor string) error {
	lock := ls.locks.get(projectID)
	lock.Lock()
	defer lock.Unlock()

	project, err := ls.projects.FindProject(ctx, projectID)
	if err != nil {
		return err
	}
	return ls.transition(ctx, project, entities.StatusSettled, actor, "")
}

// GetProject returns a single project.
func (ls *LifecycleService) GetProject(ctx context.Context, projectID string) (*entities.Project, error) {
	return ls.projects.FindProject(ctx, projectID)
}

// ListProjects returns projects matching the filter.
func (ls *LifecycleService) ListProjects(ctx context.Context, filter ProjectFilter) ([]entities.Project, error) {
	return ls.projects.FindProjects(ctx, filter)
}

// AuditTrail returns the project's transition history, oldest first.
func (ls *LifecycleService) AuditTrail(ctx context.Context, projectID string) ([]entities.AuditEntry, error) {
	return ls.audit.FindEntries(ctx, projectID)
}

// VerificationStatus assembles the per-stage progress view for a project.
func (ls *LifecycleService) VerificationStatus(ctx context.Context, projectID string) (*entities.VerificationStatusView, error) {
	project, err := ls.projects.FindProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	records, err := ls.verifications.FindRecords(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load verification records: %w", err)
	}

	view := &entities.VerificationStatusView{
		ProjectID: projectID,
		Status:    project.Status,
	}
	for i := range records {
		record := records[i]
		if !record.Completed {
			continue
		}
		stage := entities.StageStatus{
			Completed: true,
			Score:     record.Score,
			Decision:  record.Decision,
			Actor:     record.Actor,
		}
		switch record.Stage {
		case entities.StageAI:
			view.AIVerification = stage
		case entities.StageThirdParty:
			view.ThirdPartyVerification = stage
		case entities.StageAdmin:
			view.AdminReview = stage
		}
	}

	registration, err := ls.registrations.FindLatestByProject(ctx, projectID)
	if err != nil && !isNotFound(err) {
		return nil, err
	}
	if registration != nil {
		view.BlockchainRegistration = entities.RegistrationStatusView{
			Attempted: true,
			Status:    registration.Status,
			TxHash:    registration.TxHash,
		}
	}

	return view, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, entities.ErrNotFound)
}
