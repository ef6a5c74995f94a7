package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kiranshivaraju/fineprint/internal/tabs"
	"github.com/kiranshivaraju/fineprint/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplaceAndListTabs(t *testing.T) {
	reg := tabs.NewRegistry()

	rec := httptest.NewRecorder()
	NewReplaceTabsHandler(reg).ServeHTTP(rec, jsonReq(t, http.MethodPut, "/api/v1/tabs", map[string]any{
		"tabs": []map[string]string{
			{"id": "2", "url": "https://b.example/privacy", "title": "Privacy", "content": "We collect..."},
			{"id": "1", "url": "https://a.example/terms", "title": "Terms"},
		},
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	content, open, err := reg.TabContent(t.Context(), "2")
	require.NoError(t, err)
	assert.True(t, open)
	assert.Equal(t, "We collect...", content)

	rec = httptest.NewRecorder()
	NewListTabsHandler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tabs", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var list []models.Tab
	decodeData(t, rec, &list)
	require.Len(t, list, 2)
	assert.Equal(t, "1", list[0].ID)
	assert.Empty(t, list[1].Content)
}

func TestReplaceTabs_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"tabs":`},
		{"missing url", `{"tabs":[{"id":"1"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPut, "/api/v1/tabs", strings.NewReader(tt.body))
			NewReplaceTabsHandler(tabs.NewRegistry()).ServeHTTP(rec, r)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}
