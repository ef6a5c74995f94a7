package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kiranshivaraju/fineprint/internal/costs"
	"github.com/kiranshivaraju/fineprint/internal/kv"
	"github.com/kiranshivaraju/fineprint/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) *costs.Ledger {
	t.Helper()
	store, err := kv.NewSQLiteStore(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return costs.NewLedger(costs.Config{PrimaryModel: "claude-3-5-haiku-latest"}, store)
}

// failingCosts fails every read.
type failingCosts struct {
	*costs.Ledger
}

func (failingCosts) GenerateCostReport(context.Context, string) (*costs.CostReport, error) {
	return nil, errors.New("store unavailable")
}

func record(t *testing.T, svc CostService, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/costs/events", strings.NewReader(body))
	NewRecordCostHandler(svc).ServeHTTP(rec, r)
	return rec
}

func TestRecordCost_ThenReport(t *testing.T) {
	ledger := newTestLedger(t)

	rec := record(t, ledger, `{"user_id":"u1","user_tier":"premium","model_id":"claude-3-5-haiku-latest","cost":0.02}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	rec = record(t, ledger, `{"user_id":"u1","model_id":"claude-3-5-haiku-latest","cost":0.01,"cached":true}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = httptest.NewRecorder()
	NewCostReportHandler(ledger).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/costs/report", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var report costs.CostReport
	decodeData(t, rec, &report)
	assert.InDelta(t, 0.02, report.TotalCost, 1e-9)
	assert.Equal(t, int64(1), report.TotalRequests)
	assert.InDelta(t, 0.01, report.CacheSavings, 1e-9)
	assert.InDelta(t, 0.02, report.TierBreakdown[models.TierPremium].Cost, 1e-9)
}

func TestRecordCost_Validation(t *testing.T) {
	ledger := newTestLedger(t)
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"missing user", `{"model_id":"m","cost":0.1}`, "user_id"},
		{"missing model", `{"user_id":"u","cost":0.1}`, "model_id"},
		{"missing cost", `{"user_id":"u","model_id":"m"}`, "cost"},
		{"negative cost", `{"user_id":"u","model_id":"m","cost":-1}`, "cost"},
		{"bad tier", `{"user_id":"u","model_id":"m","cost":0.1,"user_tier":"gold"}`, "user_tier"},
		{"colon in user", `{"user_id":"u:requests","model_id":"m","cost":0.1}`, "user_id"},
		{"model aliases a counter", `{"user_id":"u","model_id":"m:requests","cost":0.1}`, "model_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := record(t, ledger, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "VALIDATION_ERROR", errorCode(t, rec))
			assert.Contains(t, rec.Body.String(), `"`+tt.field+`"`)
		})
	}
}

func TestCostReport_InvalidPeriod(t *testing.T) {
	rec := httptest.NewRecorder()
	NewCostReportHandler(newTestLedger(t)).ServeHTTP(rec,
		httptest.NewRequest(http.MethodGet, "/api/v1/costs/report?period=last-week", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_PERIOD", errorCode(t, rec))
}

func TestCostReport_StoreFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	NewCostReportHandler(failingCosts{newTestLedger(t)}).ServeHTTP(rec,
		httptest.NewRequest(http.MethodGet, "/api/v1/costs/report", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestUserCostAndExport(t *testing.T) {
	ledger := newTestLedger(t)
	record(t, ledger, `{"user_id":"alice","model_id":"m","cost":0.5}`)
	record(t, ledger, `{"user_id":"bob","model_id":"m","cost":0.1}`)

	rec := httptest.NewRecorder()
	r := withURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "userID", "alice")
	NewUserCostHandler(ledger).ServeHTTP(rec, r)
	require.Equal(t, http.StatusOK, rec.Code)

	var summary costs.UserCostSummary
	decodeData(t, rec, &summary)
	assert.InDelta(t, 0.5, summary.TotalCost, 1e-9)
	assert.Equal(t, models.TierFree, summary.BudgetUsage.Tier)
	assert.Len(t, summary.RecentTransactions, 1)

	rec = httptest.NewRecorder()
	NewCostExportHandler(ledger).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/costs/export?month=current", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var out costs.CostExport
	decodeData(t, rec, &out)
	require.Len(t, out.UserCosts, 2)
	assert.Equal(t, "alice", out.UserCosts[0].UserID)
}

func TestRecommendations(t *testing.T) {
	ledger := newTestLedger(t)
	record(t, ledger, `{"user_id":"alice","model_id":"claude-3-5-haiku-latest","cost":0.01}`)

	rec := httptest.NewRecorder()
	NewRecommendationsHandler(ledger).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/costs/recommendations", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var report costs.OptimizationReport
	decodeData(t, rec, &report)
	assert.NotEmpty(t, report.Recommendations)
}

func TestAlerts_ListAndReset(t *testing.T) {
	ledger := newTestLedger(t)
	// 0.6 of the $1 free budget crosses the 50% threshold.
	record(t, ledger, `{"user_id":"alice","model_id":"m","cost":0.6}`)

	rec := httptest.NewRecorder()
	NewListAlertsHandler(ledger).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/costs/alerts", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var alerts []models.BudgetAlert
	decodeData(t, rec, &alerts)
	require.Len(t, alerts, 1)
	assert.Equal(t, 50, alerts[0].Threshold)

	rec = httptest.NewRecorder()
	NewResetAlertsHandler(ledger).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/costs/alerts/reset", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	NewListAlertsHandler(ledger).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/costs/alerts", nil))
	alerts = nil
	decodeData(t, rec, &alerts)
	assert.Empty(t, alerts)
}
