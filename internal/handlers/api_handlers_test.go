package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	cfg "github.com/bluecarbon/mrv-registry/backend/config"
	"github.com/bluecarbon/mrv-registry/backend/internal/entities"
	"github.com/bluecarbon/mrv-registry/backend/internal/usecases"
)

type stubLifecycle struct {
	LifecycleService

	submitErr  error
	project    *entities.Project
	projectErr error
}

func (s *stubLifecycle) Submit(_ context.Context, project *entities.Project, _ string) error {
	if s.submitErr != nil {
		return s.submitErr
	}
	project.ID = "proj-1"
	project.Status = entities.StatusAIVerifying
	return nil
}

func (s *stubLifecycle) GetProject(context.Context, string) (*entities.Project, error) {
	return s.project, s.projectErr
}

func (s *stubLifecycle) ListProjects(context.Context, usecases.ProjectFilter) ([]entities.Project, error) {
	return nil, nil
}

type stubPayments struct {
	PaymentsService

	lastRequest entities.Transfer
}

func (s *stubPayments) Transfer(_ context.Context, req entities.Transfer) (*entities.Transfer, error) {
	s.lastRequest = req
	req.Status = entities.TransferCompleted
	req.TxHash = "0xdone"
	return &req, nil
}

func newTestRouter(lifecycle *stubLifecycle, payments *stubPayments) *mux.Router {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewHTTPHandler(logger, &cfg.Config{}, lifecycle, nil, payments, nil, nil, nil)
	router := mux.NewRouter()
	handler.RegisterRoutes(router)
	return router
}

func TestSubmitProjectReturnsCreated(t *testing.T) {
	router := newTestRouter(&stubLifecycle{}, &stubPayments{})

	body := bytes.NewBufferString(`{
		"name": "Mangrove Bay Restoration",
		"ecosystem_type": "mangrove",
		"area_hectares": 120.5,
		"location": "9.5370,-75.3590",
		"owner_wallet": "0xaa",
		"media_refs": ["bafybeihash1"]
	}`)
	request := httptest.NewRequest(http.MethodPost, "/api/projects", body)
	recorder := httptest.NewRecorder()

	router.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusCreated, recorder.Code)

	var project entities.Project
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &project))
	require.Equal(t, "proj-1", project.ID)
	require.Equal(t, entities.StatusAIVerifying, project.Status)
}

func TestListProjectsReturnsEmptyArrayNotNull(t *testing.T) {
	router := newTestRouter(&stubLifecycle{}, &stubPayments{})

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/projects", nil))

	require.Equal(t, http.StatusOK, recorder.Code)
	require.JSONEq(t, "[]", recorder.Body.String())
}

func TestErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		retryable  bool
	}{
		{"validation", &entities.ValidationError{Field: "name", Reason: "required"}, http.StatusBadRequest, false},
		{"state", &entities.StateError{}, http.StatusConflict, false},
		{"conflict", &entities.ConflictError{ProjectID: "p1"}, http.StatusConflict, false},
		{"not found", fmt.Errorf("project p1: %w", entities.ErrNotFound), http.StatusNotFound, false},
		{"wallet unavailable", entities.ErrWalletUnavailable, http.StatusServiceUnavailable, false},
		{"wrong network", entities.ErrWrongNetwork, http.StatusServiceUnavailable, true},
		{"contract revert", &entities.ContractRevertError{Reason: "paused"}, http.StatusUnprocessableEntity, false},
		{"network", &entities.NetworkError{Op: "send", Err: errors.New("timeout")}, http.StatusBadGateway, true},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newTestRouter(&stubLifecycle{projectErr: tc.err}, &stubPayments{})

			recorder := httptest.NewRecorder()
			router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/projects/p1", nil))

			require.Equal(t, tc.wantStatus, recorder.Code)

			var payload struct {
				Error     string `json:"error"`
				Retryable bool   `json:"retryable"`
			}
			require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &payload))
			require.NotEmpty(t, payload.Error)
			require.Equal(t, tc.retryable, payload.Retryable)
		})
	}
}

func TestTransferHonorsIdempotencyKeyHeader(t *testing.T) {
	payments := &stubPayments{}
	router := newTestRouter(&stubLifecycle{}, payments)

	body := bytes.NewBufferString(`{"from_wallet": "0xaa", "to_wallet": "0xbb", "amount": 10}`)
	request := httptest.NewRequest(http.MethodPost, "/api/payments/transfer", body)
	request.Header.Set("Idempotency-Key", "retry-safe-1")
	recorder := httptest.NewRecorder()

	router.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, "retry-safe-1", payments.lastRequest.IdempotencyKey)
}

func TestTransferHistoryRequiresWallet(t *testing.T) {
	router := newTestRouter(&stubLifecycle{}, &stubPayments{})

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/payments/history", nil))

	require.Equal(t, http.StatusBadRequest, recorder.Code)
}
