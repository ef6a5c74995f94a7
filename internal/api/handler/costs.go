package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/fineprint/internal/api/response"
	"github.com/kiranshivaraju/fineprint/internal/costs"
	"github.com/kiranshivaraju/fineprint/pkg/models"
)

// CostService is the cost ledger as seen by the HTTP layer.
type CostService interface {
	RecordCost(ctx context.Context, in models.CostInput)
	GenerateCostReport(ctx context.Context, period string) (*costs.CostReport, error)
	GetOptimizationRecommendations(ctx context.Context) (*costs.OptimizationReport, error)
	GetUserCostSummary(ctx context.Context, userID string) (*costs.UserCostSummary, error)
	ExportCostData(ctx context.Context, month string) (*costs.CostExport, error)
	Alerts(ctx context.Context) ([]models.BudgetAlert, error)
	ResetMonthlyAlerts(ctx context.Context) error
}

// NewRecordCostHandler returns an http.HandlerFunc for POST /api/v1/costs/events.
// Recording is fire-and-forget, so the response only confirms the input was valid.
func NewRecordCostHandler(svc CostService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UserID   string   `json:"user_id"`
			UserTier string   `json:"user_tier"`
			ModelID  string   `json:"model_id"`
			Cost     *float64 `json:"cost"`
			Cached   bool     `json:"cached"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		details := map[string]string{}
		req.UserID = strings.TrimSpace(req.UserID)
		if req.UserID == "" {
			details["user_id"] = "user_id is required"
		} else if !costs.ValidUserID(req.UserID) {
			details["user_id"] = "user_id must not contain ':'"
		}
		if req.ModelID == "" {
			details["model_id"] = "model_id is required"
		} else if !costs.ValidModelID(req.ModelID) {
			details["model_id"] = "model_id must not end in ':requests'"
		}
		if req.Cost == nil {
			details["cost"] = "cost is required"
		} else if *req.Cost < 0 {
			details["cost"] = "cost must not be negative"
		}
		tier, err := models.ParseTier(req.UserTier)
		if err != nil {
			details["user_tier"] = err.Error()
		}
		if len(details) > 0 {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid cost event", details)
			return
		}

		in := models.CostInput{
			UserID:   req.UserID,
			UserTier: tier,
			ModelID:  req.ModelID,
			Cost:     *req.Cost,
			Cached:   req.Cached,
		}
		svc.RecordCost(r.Context(), in)
		response.Accepted(w, in)
	}
}

// NewCostReportHandler returns an http.HandlerFunc for GET /api/v1/costs/report.
// ?period= is "current" (default) or YYYY-MM.
func NewCostReportHandler(svc CostService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := svc.GenerateCostReport(r.Context(), r.URL.Query().Get("period"))
		if err != nil {
			writeCostError(w, err)
			return
		}
		response.JSON(w, report)
	}
}

// NewRecommendationsHandler returns an http.HandlerFunc for GET /api/v1/costs/recommendations.
func NewRecommendationsHandler(svc CostService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := svc.GetOptimizationRecommendations(r.Context())
		if err != nil {
			writeCostError(w, err)
			return
		}
		response.JSON(w, report)
	}
}

// NewUserCostHandler returns an http.HandlerFunc for GET /api/v1/costs/users/{userID}.
func NewUserCostHandler(svc CostService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(chi.URLParam(r, "userID"))
		if userID == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "userID is required", nil)
			return
		}
		summary, err := svc.GetUserCostSummary(r.Context(), userID)
		if err != nil {
			writeCostError(w, err)
			return
		}
		response.JSON(w, summary)
	}
}

// NewCostExportHandler returns an http.HandlerFunc for GET /api/v1/costs/export.
// ?month= is "current" (default) or YYYY-MM.
func NewCostExportHandler(svc CostService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := svc.ExportCostData(r.Context(), r.URL.Query().Get("month"))
		if err != nil {
			writeCostError(w, err)
			return
		}
		response.JSON(w, out)
	}
}

// NewListAlertsHandler returns an http.HandlerFunc for GET /api/v1/costs/alerts.
func NewListAlertsHandler(svc CostService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		alerts, err := svc.Alerts(r.Context())
		if err != nil {
			writeCostError(w, err)
			return
		}
		response.JSON(w, alerts)
	}
}

// NewResetAlertsHandler returns an http.HandlerFunc for POST /api/v1/costs/alerts/reset.
func NewResetAlertsHandler(svc CostService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.ResetMonthlyAlerts(r.Context()); err != nil {
			writeCostError(w, err)
			return
		}
		response.JSON(w, map[string]bool{"reset": true})
	}
}

func writeCostError(w http.ResponseWriter, err error) {
	if errors.Is(err, costs.ErrInvalidPeriod) {
		response.Error(w, http.StatusBadRequest, "INVALID_PERIOD", err.Error(), nil)
		return
	}
	slog.Error("cost request failed", "error", err)
	response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
		"An unexpected error occurred", nil)
}
