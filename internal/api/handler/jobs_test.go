package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/fineprint/internal/bulk"
	"github.com/kiranshivaraju/fineprint/internal/export"
	"github.com/kiranshivaraju/fineprint/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mock JobService ---

type mockJobs struct {
	mu         sync.Mutex
	jobs       map[uuid.UUID]*models.Job
	submitErr  error
	gotURLs    []string
	gotOpts    int
	cancelable map[uuid.UUID]bool
	deleteErr  error
}

func newMockJobs(jobs ...*models.Job) *mockJobs {
	m := &mockJobs{jobs: make(map[uuid.UUID]*models.Job), cancelable: make(map[uuid.UUID]bool)}
	for _, j := range jobs {
		m.jobs[j.ID] = j
	}
	return m
}

func (m *mockJobs) newJob(kind models.JobKind) *models.Job {
	return &models.Job{ID: uuid.New(), Kind: kind, Status: models.JobStatusQueued, CreatedAt: time.Now()}
}

func (m *mockJobs) SubmitSessionJob(_ context.Context, opts ...bulk.SubmitOption) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gotOpts = len(opts)
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	return m.newJob(models.JobKindSessionScan), nil
}

func (m *mockJobs) SubmitURLListJob(_ context.Context, urls []string, opts ...bulk.SubmitOption) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gotURLs = urls
	m.gotOpts = len(opts)
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	return m.newJob(models.JobKindURLList), nil
}

func (m *mockJobs) GetJob(_ context.Context, id uuid.UUID) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, bulk.ErrJobNotFound
	}
	return j, nil
}

func (m *mockJobs) ListJobs(_ context.Context) ([]*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j)
	}
	return out, nil
}

func (m *mockJobs) CancelJob(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancelable[id], nil
}

func (m *mockJobs) DeleteJob(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return false, m.deleteErr
	}
	_, ok := m.jobs[id]
	delete(m.jobs, id)
	return ok, nil
}

func (m *mockJobs) ExportResults(_ context.Context, id uuid.UUID, format string) ([]byte, error) {
	m.mu.Lock()
	j, ok := m.jobs[id]
	m.mu.Unlock()
	if !ok {
		return nil, bulk.ErrJobNotFound
	}
	return export.Render(j, export.Format(format))
}

// --- helpers ---

func jsonReq(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	r := httptest.NewRequest(method, target, &buf)
	r.Header.Set("Content-Type", "application/json")
	return r
}

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	env := struct {
		Data any `json:"data"`
	}{Data: v}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Error.Code
}

func completedJob() *models.Job {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	return &models.Job{
		ID:     uuid.New(),
		Kind:   models.JobKindURLList,
		Status: models.JobStatusCompleted,
		Documents: []models.DocumentRef{
			{URL: "https://example.com/terms", Title: "Terms"},
		},
		Results: models.Outcomes{
			models.CompletedOutcome{
				Document:    models.DocumentRef{URL: "https://example.com/terms", Title: "Terms"},
				AnalysisID:  "a-1",
				RiskScore:   40,
				ContentHash: "22ci",
				ProcessedAt: now,
			},
		},
		Progress:  models.JobProgress{Total: 1, Completed: 1},
		CreatedAt: now,
	}
}

// --- submit ---

func TestSubmitURLList_Accepted(t *testing.T) {
	svc := newMockJobs()
	rec := httptest.NewRecorder()

	NewSubmitURLListHandler(svc).ServeHTTP(rec, jsonReq(t, http.MethodPost, "/api/v1/jobs", map[string]any{
		"urls":      []string{"https://a.example/terms", "https://b.example/privacy"},
		"priority":  "high",
		"user_id":   "u1",
		"user_tier": "premium",
	}))

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var job models.Job
	decodeData(t, rec, &job)
	assert.Equal(t, models.JobKindURLList, job.Kind)
	assert.Equal(t, []string{"https://a.example/terms", "https://b.example/privacy"}, svc.gotURLs)
	assert.Equal(t, 3, svc.gotOpts)
}

func TestSubmitURLList_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"missing urls", `{"name":"x"}`},
		{"bad priority", `{"urls":["https://a.example"],"priority":"urgent"}`},
		{"bad tier", `{"urls":["https://a.example"],"user_tier":"gold"}`},
		{"colon in user", `{"urls":["https://a.example"],"user_id":"a:requests"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", strings.NewReader(tt.body))
			NewSubmitURLListHandler(newMockJobs()).ServeHTTP(rec, r)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "INVALID_REQUEST", errorCode(t, rec))
		})
	}
}

func TestSubmitURLList_TooManyURLs(t *testing.T) {
	urls := make([]string, maxURLsPerJob+1)
	for i := range urls {
		urls[i] = "https://example.com/terms"
	}
	rec := httptest.NewRecorder()
	NewSubmitURLListHandler(newMockJobs()).ServeHTTP(rec,
		jsonReq(t, http.MethodPost, "/api/v1/jobs", map[string]any{"urls": urls}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmit_ErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{bulk.ErrEmptyInput, http.StatusUnprocessableEntity, "NO_DOCUMENTS"},
		{bulk.ErrQueueFull, http.StatusServiceUnavailable, "QUEUE_FULL"},
		{errors.New("disk on fire"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			svc := newMockJobs()
			svc.submitErr = tt.err
			rec := httptest.NewRecorder()

			NewSubmitSessionHandler(svc).ServeHTTP(rec, jsonReq(t, http.MethodPost, "/api/v1/jobs/session", nil))

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, errorCode(t, rec))
		})
	}
}

func TestSubmitSession_EmptyBodyAccepted(t *testing.T) {
	svc := newMockJobs()
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/jobs/session", http.NoBody)

	NewSubmitSessionHandler(svc).ServeHTTP(rec, r)

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var job models.Job
	decodeData(t, rec, &job)
	assert.Equal(t, models.JobKindSessionScan, job.Kind)
}

func TestSubmit_QueueFullSetsRetryAfter(t *testing.T) {
	svc := newMockJobs()
	svc.submitErr = bulk.ErrQueueFull
	rec := httptest.NewRecorder()

	NewSubmitURLListHandler(svc).ServeHTTP(rec, jsonReq(t, http.MethodPost, "/api/v1/jobs",
		map[string]any{"urls": []string{"https://a.example/terms"}}))

	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
}

// --- queries ---

func TestGetJob(t *testing.T) {
	job := completedJob()
	svc := newMockJobs(job)

	t.Run("found", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r := withURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "jobID", job.ID.String())
		NewGetJobHandler(svc).ServeHTTP(rec, r)

		require.Equal(t, http.StatusOK, rec.Code)
		var got models.Job
		decodeData(t, rec, &got)
		assert.Equal(t, job.ID, got.ID)
		require.Len(t, got.Results, 1)
		assert.Equal(t, 40, got.Results[0].(models.CompletedOutcome).RiskScore)
	})

	t.Run("not found", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r := withURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "jobID", uuid.NewString())
		NewGetJobHandler(svc).ServeHTTP(rec, r)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "JOB_NOT_FOUND", errorCode(t, rec))
	})

	t.Run("bad id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r := withURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "jobID", "not-a-uuid")
		NewGetJobHandler(svc).ServeHTTP(rec, r)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestListJobs_FilterAndPaginate(t *testing.T) {
	var jobs []*models.Job
	for i := 0; i < 5; i++ {
		j := completedJob()
		if i%2 == 1 {
			j.Status = models.JobStatusFailed
		}
		jobs = append(jobs, j)
	}
	svc := newMockJobs(jobs...)

	rec := httptest.NewRecorder()
	NewListJobsHandler(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs?status=completed&limit=2", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data []models.Job `json:"data"`
		Meta struct {
			Total   int  `json:"total"`
			HasNext bool `json:"has_next"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Data, 2)
	assert.Equal(t, 3, body.Meta.Total)
	assert.True(t, body.Meta.HasNext)

	rec = httptest.NewRecorder()
	NewListJobsHandler(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs?status=completed&limit=2&page=5", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Empty(t, body.Data)
	assert.False(t, body.Meta.HasNext)
}

func TestListJobs_BadPagination(t *testing.T) {
	rec := httptest.NewRecorder()
	NewListJobsHandler(newMockJobs()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs?page=0", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// --- control ---

func TestCancelJob(t *testing.T) {
	running := completedJob()
	running.Status = models.JobStatusProcessing
	done := completedJob()
	svc := newMockJobs(running, done)
	svc.cancelable[running.ID] = true

	tests := []struct {
		name   string
		id     string
		status int
	}{
		{"processing", running.ID.String(), http.StatusOK},
		{"already completed", done.ID.String(), http.StatusConflict},
		{"unknown", uuid.NewString(), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r := withURLParam(httptest.NewRequest(http.MethodPost, "/", nil), "jobID", tt.id)
			NewCancelJobHandler(svc).ServeHTTP(rec, r)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestDeleteJob(t *testing.T) {
	job := completedJob()
	svc := newMockJobs(job)

	rec := httptest.NewRecorder()
	r := withURLParam(httptest.NewRequest(http.MethodDelete, "/", nil), "jobID", job.ID.String())
	NewDeleteJobHandler(svc).ServeHTTP(rec, r)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	NewDeleteJobHandler(svc).ServeHTTP(rec, r)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteJob_StoreError(t *testing.T) {
	svc := newMockJobs()
	svc.deleteErr = errors.New("connection reset")

	rec := httptest.NewRecorder()
	r := withURLParam(httptest.NewRequest(http.MethodDelete, "/", nil), "jobID", uuid.NewString())
	NewDeleteJobHandler(svc).ServeHTTP(rec, r)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// --- export ---

func TestExportJob(t *testing.T) {
	job := completedJob()
	svc := newMockJobs(job)

	tests := []struct {
		query       string
		contentType string
		ext         string
	}{
		{"", "application/json", "json"},
		{"?format=CSV", "text/csv", "csv"},
		{"?format=pdf", "text/plain; charset=utf-8", "txt"},
		{"?format=xlsx", export.FormatXLSX.ContentType(), "xlsx"},
	}
	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r := withURLParam(httptest.NewRequest(http.MethodGet, "/export"+tt.query, nil), "jobID", job.ID.String())
			NewExportJobHandler(svc).ServeHTTP(rec, r)

			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, tt.contentType, rec.Header().Get("Content-Type"))
			assert.Contains(t, rec.Header().Get("Content-Disposition"), "fineprint-"+job.ID.String()+"."+tt.ext)
			assert.NotZero(t, rec.Body.Len())
		})
	}
}

func TestExportJob_UnsupportedFormat(t *testing.T) {
	job := completedJob()
	rec := httptest.NewRecorder()
	r := withURLParam(httptest.NewRequest(http.MethodGet, "/export?format=docx", nil), "jobID", job.ID.String())
	NewExportJobHandler(newMockJobs(job)).ServeHTTP(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "UNSUPPORTED_FORMAT", errorCode(t, rec))
}
