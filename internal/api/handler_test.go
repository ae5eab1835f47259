package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"crm-core/internal/orchestrator"
	"crm-core/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeCommissionService struct {
	err error
}

func (f *fakeCommissionService) Distribute(ctx context.Context, customerID int64, grossAmount float64, eventType string) (*models.DistributeResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.DistributeResult{Created: []models.Commission{
		{CustomerID: customerID, AffiliateID: 1, Level: 1, Rate: 0.05, Amount: grossAmount * 0.05},
	}}, nil
}

type fakeReminderRunner struct {
	err error
}

func (f *fakeReminderRunner) RunOnce(ctx context.Context) (*models.ReminderSummary, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.ReminderSummary{Reminders24h: 2, Reminders48h: 1, Errors: []string{}}, nil
}

type fakeRemediationService struct {
	err error
}

func (f *fakeRemediationService) Generate(ctx context.Context, suggestionID int64) (*models.GeneratePatchResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.GeneratePatchResult{
		Success:     true,
		PatchTarget: models.PatchTargetWorkflowPolicy,
		PatchText:   "# патч",
	}, nil
}

type fakeOrchestrator struct {
	err error
}

func (f *fakeOrchestrator) Run(ctx context.Context, prompt string) (*orchestrator.RunResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &orchestrator.RunResult{FinalResponse: "готово", Iterations: 1}, nil
}

func newTestHandler(commissionErr, reminderErr, remediationErr, orchErr error) *Handler {
	return NewHandler(
		&fakeCommissionService{err: commissionErr},
		&fakeReminderRunner{err: reminderErr},
		&fakeRemediationService{err: remediationErr},
		&fakeOrchestrator{err: orchErr},
		zap.NewNop(),
	)
}

func doRequest(t *testing.T, handler http.HandlerFunc, method, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, "/", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestHandleDistribute(t *testing.T) {
	h := newTestHandler(nil, nil, nil, nil)

	rec := doRequest(t, h.HandleDistribute, http.MethodPost,
		`{"customerId": 10, "grossAmount": 997, "eventType": "test_sale"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var result models.DistributeResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result.Created, 1)
	assert.Equal(t, 49.85, result.Created[0].Amount)
}

func TestHandleDistributeRejectsGet(t *testing.T) {
	h := newTestHandler(nil, nil, nil, nil)

	rec := doRequest(t, h.HandleDistribute, http.MethodGet, "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleDistributeBadJSON(t *testing.T) {
	h := newTestHandler(nil, nil, nil, nil)

	rec := doRequest(t, h.HandleDistribute, http.MethodPost, "{не json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"not_found", models.ErrNotFound, http.StatusNotFound},
		{"validation", models.ErrValidation, http.StatusBadRequest},
		{"upstream", models.ErrUpstream, http.StatusBadGateway},
		{"internal", assert.AnError, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestHandler(tc.err, nil, nil, nil)

			rec := doRequest(t, h.HandleDistribute, http.MethodPost,
				`{"customerId": 10, "grossAmount": 100}`)
			assert.Equal(t, tc.status, rec.Code)

			var resp errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestHandleRunReminders(t *testing.T) {
	h := newTestHandler(nil, nil, nil, nil)

	rec := doRequest(t, h.HandleRunReminders, http.MethodPost, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var summary models.ReminderSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 2, summary.Reminders24h)
	assert.Equal(t, 1, summary.Reminders48h)
}

func TestHandleGeneratePatch(t *testing.T) {
	h := newTestHandler(nil, nil, nil, nil)

	rec := doRequest(t, h.HandleGeneratePatch, http.MethodPost, `{"suggestionId": 7}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var result models.GeneratePatchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Equal(t, models.PatchTargetWorkflowPolicy, result.PatchTarget)
}

func TestHandleGeneratePatchNotFound(t *testing.T) {
	h := newTestHandler(nil, nil, models.ErrNotFound, nil)

	rec := doRequest(t, h.HandleGeneratePatch, http.MethodPost, `{"suggestionId": 999}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleOrchestratorRun(t *testing.T) {
	h := newTestHandler(nil, nil, nil, nil)

	rec := doRequest(t, h.HandleOrchestratorRun, http.MethodPost, `{"prompt": "проверь сценарий"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var result orchestrator.RunResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "готово", result.FinalResponse)
}

func TestRegisterRoutes(t *testing.T) {
	h := newTestHandler(nil, nil, nil, nil)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodPost, "/api/reminders/run", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
