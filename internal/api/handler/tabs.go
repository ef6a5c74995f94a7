package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/kiranshivaraju/fineprint/internal/api/response"
	"github.com/kiranshivaraju/fineprint/internal/tabs"
	"github.com/kiranshivaraju/fineprint/pkg/models"
)

// TabRegistry holds the tabs the browser extension reports as open.
type TabRegistry interface {
	Replace(tabs []models.Tab) error
	ListTabs(ctx context.Context) ([]models.Tab, error)
}

// NewReplaceTabsHandler returns an http.HandlerFunc for PUT /api/v1/tabs.
// The body replaces the whole session tab set.
func NewReplaceTabsHandler(reg TabRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Tabs []models.Tab `json:"tabs"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if err := reg.Replace(req.Tabs); err != nil {
			if errors.Is(err, tabs.ErrInvalidTab) {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
				return
			}
			slog.Error("replacing tabs", "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}
		response.JSON(w, map[string]int{"tabs": len(req.Tabs)})
	}
}

// NewListTabsHandler returns an http.HandlerFunc for GET /api/v1/tabs. Page
// content is left out of the listing.
func NewListTabsHandler(reg TabRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := reg.ListTabs(r.Context())
		if err != nil {
			slog.Error("listing tabs", "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}
		for i := range list {
			list[i].Content = ""
		}
		response.JSON(w, list)
	}
}
