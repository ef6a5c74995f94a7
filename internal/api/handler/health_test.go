package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealth_AllOK(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	rec := httptest.NewRecorder()

	NewHealthHandler(map[string]Pinger{"store": ok, "event_log": ok}).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Status   string            `json:"status"`
		Services map[string]string `json:"services"`
	}
	decodeData(t, rec, &body)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, map[string]string{"store": "ok", "event_log": "ok"}, body.Services)
}

func TestHealth_Degraded(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("dial tcp: refused") })
	rec := httptest.NewRecorder()

	NewHealthHandler(map[string]Pinger{"store": down, "event_log": ok}).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "DEGRADED", errorCode(t, rec))
}
