package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"log/slog"

	"github.com/gorilla/mux"
	"go.openly.dev/pointy"

	cfg "github.com/bluecarbon/mrv-registry/backend/config"
	"github.com/bluecarbon/mrv-registry/backend/internal/core/ports"
	"github.com/bluecarbon/mrv-registry/backend/internal/entities"
	"github.com/bluecarbon/mrv-registry/backend/internal/usecases"
)

const maxUploadBytes = 32 << 20

type HTTPHandler struct {
	logger         *slog.Logger
	config         *cfg.Config
	lifecycle      LifecycleService
	marketplace    MarketplaceService
	payments       PaymentsService
	reconciliation ReconciliationService
	storage        ports.StorageGateway
	ledger         ports.LedgerClient
}

func NewHTTPHandler(
	logger *slog.Logger,
	config *cfg.Config,
	lifecycle LifecycleService,
	marketplace MarketplaceService,
	payments PaymentsService,
	reconciliation ReconciliationService,
	storage ports.StorageGateway,
	ledgerClient ports.LedgerClient,
) *HTTPHandler {
	return &HTTPHandler{
		logger:         logger,
		config:         config,
		lifecycle:      lifecycle,
		marketplace:    marketplace,
		payments:       payments,
		reconciliation: reconciliation,
		storage:        storage,
		ledger:         ledgerClient,
	}
}

func (h *HTTPHandler) RegisterRoutes(router *mux.Router) {
	// Projects and verification pipeline
	router.HandleFunc("/api/projects", h.SubmitProject).Methods("POST")
	router.HandleFunc("/api/projects", h.ListProjects).Methods("GET")
	router.HandleFunc("/api/projects/{projectId}", h.GetProject).Methods("GET")
	router.HandleFunc("/api/projects/{projectId}/verification-status", h.GetVerificationStatus).Methods("GET")
	router.HandleFunc("/api/projects/{projectId}/audit", h.GetAuditTrail).Methods("GET")
	router.HandleFunc("/api/projects/{projectId}/ai-score", h.RecordAIScore).Methods("POST")
	router.HandleFunc("/api/projects/{projectId}/third-party-report", h.RecordThirdPartyReport).Methods("POST")
	router.HandleFunc("/api/admin/projects/{projectId}/review", h.AdminReview).Methods("POST")

	// Ledger operations
	router.HandleFunc("/api/projects/{projectId}/register", h.RegisterOnChain).Methods("POST")
	router.HandleFunc("/api/projects/{projectId}/mint", h.MintCredits).Methods("POST")
	router.HandleFunc("/api/projects/{projectId}/reconcile", h.ReconcileProject).Methods("POST")
	router.HandleFunc("/api/reconcile", h.ReconcileAll).Methods("POST")
	router.HandleFunc("/api/blockchain/status", h.BlockchainStatus).Methods("GET")
	router.HandleFunc("/api/contracts/info", h.ContractsInfo).Methods("GET")

	// Evidence storage
	router.HandleFunc("/api/ipfs/upload", h.UploadEvidence).Methods("POST")

	// Marketplace
	router.HandleFunc("/api/marketplace/listings", h.CreateListing).Methods("POST")
	router.HandleFunc("/api/marketplace/listings", h.GetActiveListings).Methods("GET")
	router.HandleFunc("/api/marketplace/listings/{listingId}", h.CancelListing).Methods("DELETE")
	router.HandleFunc("/api/marketplace/purchase", h.PurchaseCredits).Methods("POST")
	router.HandleFunc("/api/marketplace/projects/{projectId}/listings", h.GetProjectListings).Methods("GET")

	// Payments
	router.HandleFunc("/api/payments/transfer", h.TransferTokens).Methods("POST")
	router.HandleFunc("/api/payments/history", h.TransferHistory).Methods("GET")
}

// writeError maps domain errors onto HTTP statuses so clients can tell a
// bad request from a lifecycle violation from an infrastructure failure.
func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	var (
		validationErr *entities.ValidationError
		stateErr      *entities.StateError
		conflictErr   *entities.ConflictError
		revertErr     *entities.ContractRevertError
		networkErr    *entities.NetworkError
	)

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &validationErr):
		status = http.StatusBadRequest
	case errors.As(err, &stateErr), errors.As(err, &conflictErr):
		status = http.StatusConflict
	case errors.Is(err, entities.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, entities.ErrWalletUnavailable), errors.Is(err, entities.ErrWrongNetwork):
		status = http.StatusServiceUnavailable
	case errors.As(err, &revertErr):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &networkErr):
		status = http.StatusBadGateway
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error":     err.Error(),
		"retryable": entities.Retryable(err),
	})
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func (h *HTTPHandler) SubmitProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name          string   `json:"name"`
		EcosystemType string   `json:"ecosystem_type"`
		AreaHectares  float64  `json:"area_hectares"`
		Location      string   `json:"location"`
		OwnerWallet   string   `json:"owner_wallet"`
		MediaRefs     []string `json:"media_refs"`
		Actor         string   `json:"actor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	project := &entities.Project{
		Name:          req.Name,
		EcosystemType: entities.EcosystemType(req.EcosystemType),
		AreaHectares:  req.AreaHectares,
		Location:      req.Location,
		OwnerWallet:   req.OwnerWallet,
		MediaRefs:     req.MediaRefs,
	}

	actor := req.Actor
	if actor == "" {
		actor = req.OwnerWallet
	}

	if err := h.lifecycle.Submit(r.Context(), project, actor); err != nil {
		h.logger.Error("[Submit Project] Failed", "error", err, "name", req.Name)
		h.writeError(w, err)
		return
	}

	h.logger.Info("[Submit Project] Project submitted", "project_id", project.ID, "name", project.Name)
	h.writeJSON(w, http.StatusCreated, project)
}

func (h *HTTPHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	filter := usecases.ProjectFilter{
		Status:        entities.ProjectStatus(r.URL.Query().Get("status")),
		EcosystemType: entities.EcosystemType(r.URL.Query().Get("ecosystem_type")),
		OwnerWallet:   r.URL.Query().Get("owner"),
	}

	projects, err := h.lifecycle.ListProjects(r.Context(), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if projects == nil {
		projects = []entities.Project{}
	}

	h.writeJSON(w, http.StatusOK, projects)
}

func (h *HTTPHandler) GetProject(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["projectId"]

	project, err := h.lifecycle.GetProject(r.Context(), projectID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, project)
}

func (h *HTTPHandler) GetVerificationStatus(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["projectId"]

	view, err := h.lifecycle.VerificationStatus(r.Context(), projectID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, view)
}

func (h *HTTPHandler) GetAuditTrail(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["projectId"]

	entries, err := h.lifecycle.AuditTrail(r.Context(), projectID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []entities.AuditEntry{}
	}

	h.writeJSON(w, http.StatusOK, entries)
}

func (h *HTTPHandler) RecordAIScore(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["projectId"]

	var req struct {
		Score float64 `json:"score"`
		Actor string  `json:"actor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Actor == "" {
		req.Actor = "ai-scorer"
	}

	if err := h.lifecycle.RecordAIScore(r.Context(), projectID, req.Score, req.Actor); err != nil {
		h.logger.Error("[AI Score] Failed", "error", err, "project_id", projectID)
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"status": "recorded", "score": req.Score})
}

func (h *HTTPHandler) RecordThirdPartyReport(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["projectId"]

	var report entities.ThirdPartyReport
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.lifecycle.RecordThirdPartyReport(r.Context(), projectID, report); err != nil {
		h.logger.Error("[Third-Party Report] Failed", "error", err, "project_id", projectID)
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"status": "recorded"})
}

func (h *HTTPHandler) AdminReview(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["projectId"]

	var req struct {
		Decision       string  `json:"decision"`
		Comments       string  `json:"comments"`
		CreditsAwarded float64 `json:"credits_awarded"`
		Override       bool    `json:"override"`
		Actor          string  `json:"actor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Actor == "" {
		http.Error(w, "Missing required field: actor", http.StatusBadRequest)
		return
	}

	var creditsAwarded *float64
	if req.CreditsAwarded > 0 {
		creditsAwarded = pointy.Float64(req.CreditsAwarded)
	}

	err := h.lifecycle.AdminDecide(r.Context(), projectID, req.Decision, req.Comments, creditsAwarded, req.Override, req.Actor)
	if err != nil {
		h.logger.Error("[Admin Review] Failed", "error", err, "project_id", projectID, "decision", req.Decision)
		h.writeError(w, err)
		return
	}

	h.logger.Info("[Admin Review] Decision recorded",
		"project_id", projectID, "decision", req.Decision, "actor", req.Actor, "override", req.Override)
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "decided", "decision": req.Decision})
}

func (h *HTTPHandler) RegisterOnChain(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["projectId"]

	result, err := h.lifecycle.RegisterOnChain(r.Context(), projectID)
	if err != nil {
		h.logger.Error("[Register] Failed", "error", err, "project_id", projectID)
		h.writeError(w, err)
		return
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadGateway
		h.sweepAfterFailure(projectID)
	}
	h.writeJSON(w, status, map[string]any{
		"success": result.Success,
		"tx_hash": result.TxHash,
		"error":   result.ErrorMessage(),
	})
}

func (h *HTTPHandler) MintCredits(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["projectId"]

	var req struct {
		Amount  float64 `json:"amount"`
		BatchID string  `json:"batch_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.lifecycle.MintCredits(r.Context(), projectID, req.Amount, req.BatchID)
	if err != nil {
		h.logger.Error("[Mint] Failed", "error", err, "project_id", projectID)
		h.writeError(w, err)
		return
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadGateway
		h.sweepAfterFailure(projectID)
	}
	h.writeJSON(w, status, map[string]any{
		"success": result.Success,
		"tx_hash": result.TxHash,
		"error":   result.ErrorMessage(),
	})
}

// sweepAfterFailure reconciles a single project in the background after a
// failed ledger write. The transaction may have landed despite the error;
// the sweep adopts it instead of leaving the project retry-eligible.
func (h *HTTPHandler) sweepAfterFailure(projectID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := h.reconciliation.Reconcile(ctx, projectID); err != nil {
			h.logger.Warn("[Reconcile] Post-failure sweep did not resolve",
				"error", err, "project_id", projectID)
		}
	}()
}

func (h *HTTPHandler) ReconcileProject(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["projectId"]

	if err := h.reconciliation.Reconcile(r.Context(), projectID); err != nil {
		h.logger.Error("[Reconcile] Failed", "error", err, "project_id", projectID)
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"status": "reconciled"})
}

func (h *HTTPHandler) ReconcileAll(w http.ResponseWriter, r *http.Request) {
	if err := h.reconciliation.ReconcileAll(r.Context()); err != nil {
		h.logger.Error("[Reconcile All] Finished with errors", "error", err)
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"status": "reconciled"})
}

func (h *HTTPHandler) BlockchainStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"connected": h.ledger.Connected(),
		"chain_id":  h.ledger.ChainID(),
	}

	if h.ledger.Connected() {
		status["operator_address"] = h.ledger.OperatorAddress()

		if block, err := h.ledger.LatestBlock(r.Context()); err == nil {
			status["latest_block"] = block
		}
		if total, err := h.ledger.TotalProjects(r.Context()); err == nil {
			status["total_projects"] = total.String()
		}
		if supply, err := h.ledger.TotalSupply(r.Context()); err == nil {
			status["total_supply"] = supply.String()
		}
	}

	h.writeJSON(w, http.StatusOK, status)
}

func (h *HTTPHandler) ContractsInfo(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"chain_id":         h.config.Ledger.ChainID,
		"rpc_url":          h.config.Ledger.RPCURL,
		"registry_address": h.config.Ledger.RegistryAddress,
		"token_address":    h.config.Ledger.TokenAddress,
	})
}

func (h *HTTPHandler) UploadEvidence(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "Invalid multipart form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Missing required field: file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	projectID := r.FormValue("project_id")
	fileType := r.FormValue("file_type")
	if fileType == "" {
		fileType = header.Header.Get("Content-Type")
	}

	metadata := map[string]string{}
	if description := r.FormValue("description"); description != "" {
		metadata["description"] = description
	}

	stored, err := h.storage.Upload(r.Context(), file, header.Filename, fileType, projectID, metadata)
	if err != nil {
		h.logger.Error("[Upload] Failed", "error", err, "filename", header.Filename)
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]any{
		"status":      "success",
		"ipfs_hash":   stored.Hash,
		"gateway_url": stored.GatewayURL,
		"size":        stored.Size,
	})
}

func (h *HTTPHandler) CreateListing(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProjectID      string  `json:"project_id"`
		Credits        float64 `json:"credits"`
		PricePerCredit float64 `json:"price_per_credit"`
		SellerWallet   string  `json:"seller_wallet"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	listing, err := h.marketplace.CreateListing(r.Context(), req.ProjectID, req.Credits, req.PricePerCredit, req.SellerWallet)
	if err != nil {
		h.logger.Error("[Create Listing] Failed", "error", err, "project_id", req.ProjectID)
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, listing)
}

func (h *HTTPHandler) GetActiveListings(w http.ResponseWriter, r *http.Request) {
	listings, err := h.marketplace.ActiveListings(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	if listings == nil {
		listings = []entities.Listing{}
	}

	h.writeJSON(w, http.StatusOK, listings)
}

func (h *HTTPHandler) GetProjectListings(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["projectId"]

	listings, err := h.marketplace.ProjectListings(r.Context(), projectID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if listings == nil {
		listings = []entities.Listing{}
	}

	h.writeJSON(w, http.StatusOK, listings)
}

func (h *HTTPHandler) CancelListing(w http.ResponseWriter, r *http.Request) {
	listingID := mux.Vars(r)["listingId"]
	actor := r.URL.Query().Get("actor")

	if err := h.marketplace.CancelListing(r.Context(), listingID, actor); err != nil {
		h.logger.Error("[Cancel Listing] Failed", "error", err, "listing_id", listingID)
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"status": "cancelled"})
}

func (h *HTTPHandler) PurchaseCredits(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ListingID   string  `json:"listing_id"`
		Quantity    float64 `json:"quantity"`
		BuyerWallet string  `json:"buyer_wallet"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.marketplace.Purchase(r.Context(), req.ListingID, req.Quantity, req.BuyerWallet)
	if err != nil {
		h.logger.Error("[Purchase] Failed", "error", err, "listing_id", req.ListingID)
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":  result.Success,
		"tx_hash":  result.TxHash,
		"quantity": req.Quantity,
	})
}

func (h *HTTPHandler) TransferTokens(w http.ResponseWriter, r *http.Request) {
	var req entities.Transfer
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if key := r.Header.Get("Idempotency-Key"); key != "" {
		req.IdempotencyKey = key
	}

	transfer, err := h.payments.Transfer(r.Context(), req)
	if err != nil {
		h.logger.Error("[Transfer] Failed", "error", err,
			"from", req.FromWallet, "to", req.ToWallet, "amount", req.Amount)
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, transfer)
}

func (h *HTTPHandler) TransferHistory(w http.ResponseWriter, r *http.Request) {
	wallet := r.URL.Query().Get("wallet")
	if wallet == "" {
		http.Error(w, "Missing required parameter: wallet", http.StatusBadRequest)
		return
	}

	transfers, err := h.payments.History(r.Context(), wallet)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if transfers == nil {
		transfers = []entities.Transfer{}
	}

	h.writeJSON(w, http.StatusOK, transfers)
}
