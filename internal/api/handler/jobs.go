package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/fineprint/internal/api/middleware"
	"github.com/kiranshivaraju/fineprint/internal/api/response"
	"github.com/kiranshivaraju/fineprint/internal/bulk"
	"github.com/kiranshivaraju/fineprint/internal/costs"
	"github.com/kiranshivaraju/fineprint/internal/export"
	"github.com/kiranshivaraju/fineprint/pkg/models"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
	maxURLsPerJob    = 500
	queueFullRetry   = 30 * time.Second
)

// JobService is the part of the bulk queue the job handlers use.
type JobService interface {
	SubmitSessionJob(ctx context.Context, opts ...bulk.SubmitOption) (*models.Job, error)
	SubmitURLListJob(ctx context.Context, urls []string, opts ...bulk.SubmitOption) (*models.Job, error)
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	ListJobs(ctx context.Context) ([]*models.Job, error)
	CancelJob(ctx context.Context, id uuid.UUID) (bool, error)
	DeleteJob(ctx context.Context, id uuid.UUID) (bool, error)
	ExportResults(ctx context.Context, id uuid.UUID, format string) ([]byte, error)
}

type submitRequest struct {
	Name     string `json:"name"`
	Priority string `json:"priority"`
	UserID   string `json:"user_id"`
	UserTier string `json:"user_tier"`
}

// options builds the submit options. Without a user_id, cost is booked to the
// API key that made the request.
func (req submitRequest) options(r *http.Request) ([]bulk.SubmitOption, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		if c, ok := mw.CallerFrom(r.Context()); ok {
			userID = c.Name
		}
	}
	if !costs.ValidUserID(userID) {
		return nil, fmt.Errorf("user_id %q: %w", userID, costs.ErrInvalidID)
	}
	priority, err := models.ParsePriority(req.Priority)
	if err != nil {
		return nil, err
	}
	tier, err := models.ParseTier(req.UserTier)
	if err != nil {
		return nil, err
	}
	return []bulk.SubmitOption{
		bulk.WithName(strings.TrimSpace(req.Name)),
		bulk.WithPriority(priority),
		bulk.WithUser(userID, tier),
	}, nil
}

// NewSubmitURLListHandler returns an http.HandlerFunc for POST /api/v1/jobs.
func NewSubmitURLListHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			submitRequest
			URLs []string `json:"urls"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if len(req.URLs) == 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "urls is required", nil)
			return
		}
		if len(req.URLs) > maxURLsPerJob {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				fmt.Sprintf("at most %d urls per job", maxURLsPerJob), nil)
			return
		}
		opts, err := req.options(r)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
			return
		}

		job, err := svc.SubmitURLListJob(r.Context(), req.URLs, opts...)
		if err != nil {
			writeSubmitError(w, err)
			return
		}
		response.Accepted(w, job)
	}
}

// NewSubmitSessionHandler returns an http.HandlerFunc for POST /api/v1/jobs/session.
// An empty body is accepted.
func NewSubmitSessionHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		opts, err := req.options(r)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
			return
		}

		job, err := svc.SubmitSessionJob(r.Context(), opts...)
		if err != nil {
			writeSubmitError(w, err)
			return
		}
		response.Accepted(w, job)
	}
}

func writeSubmitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, bulk.ErrEmptyInput):
		response.Error(w, http.StatusUnprocessableEntity, "NO_DOCUMENTS",
			"No legal documents found in input", nil)
	case errors.Is(err, bulk.ErrQueueFull):
		response.Retry(w, http.StatusServiceUnavailable, queueFullRetry, "QUEUE_FULL",
			"The job queue is full, try again later")
	default:
		slog.Error("submitting job", "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}

// NewListJobsHandler returns an http.HandlerFunc for GET /api/v1/jobs.
// Supports ?status=, ?page= and ?limit=.
func NewListJobsHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page, limit, err := pagination(q.Get("page"), q.Get("limit"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
			return
		}
		status := models.JobStatus(q.Get("status"))

		jobs, err := svc.ListJobs(r.Context())
		if err != nil {
			slog.Error("listing jobs", "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		filtered := make([]*models.Job, 0, len(jobs))
		for _, j := range jobs {
			if status == "" || j.Status == status {
				filtered = append(filtered, j)
			}
		}

		start := (page - 1) * limit
		end := start + limit
		if start > len(filtered) {
			start = len(filtered)
		}
		if end > len(filtered) {
			end = len(filtered)
		}
		response.Collection(w, filtered[start:end], response.PaginationMeta{
			Page:    page,
			Limit:   limit,
			Total:   len(filtered),
			HasNext: end < len(filtered),
		})
	}
}

// NewGetJobHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
func NewGetJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobID(w, r)
		if !ok {
			return
		}
		job, err := svc.GetJob(r.Context(), id)
		if err != nil {
			writeJobError(w, err)
			return
		}
		response.JSON(w, job)
	}
}

// NewCancelJobHandler returns an http.HandlerFunc for POST /api/v1/jobs/{jobID}/cancel.
// Only a processing job can be cancelled.
func NewCancelJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobID(w, r)
		if !ok {
			return
		}
		cancelled, err := svc.CancelJob(r.Context(), id)
		if err != nil {
			writeJobError(w, err)
			return
		}
		if !cancelled {
			job, err := svc.GetJob(r.Context(), id)
			if err != nil {
				writeJobError(w, err)
				return
			}
			response.Error(w, http.StatusConflict, "JOB_NOT_CANCELLABLE",
				"Only a processing job can be cancelled", map[string]string{"status": string(job.Status)})
			return
		}
		response.JSON(w, map[string]any{"job_id": id, "cancelled": true})
	}
}

// NewDeleteJobHandler returns an http.HandlerFunc for DELETE /api/v1/jobs/{jobID}.
func NewDeleteJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobID(w, r)
		if !ok {
			return
		}
		existed, err := svc.DeleteJob(r.Context(), id)
		if err != nil {
			writeJobError(w, err)
			return
		}
		if !existed {
			writeJobError(w, bulk.ErrJobNotFound)
			return
		}
		response.JSON(w, map[string]any{"job_id": id, "deleted": true})
	}
}

// NewExportJobHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}/export.
// ?format= is json (default), csv, pdf or xlsx.
func NewExportJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobID(w, r)
		if !ok {
			return
		}
		format := strings.ToLower(r.URL.Query().Get("format"))
		if format == "" {
			format = string(export.FormatJSON)
		}

		body, err := svc.ExportResults(r.Context(), id, format)
		if err != nil {
			writeJobError(w, err)
			return
		}
		f := export.Format(format)
		ext := format
		if f == export.FormatPDF {
			ext = "txt"
		}
		response.File(w, f.ContentType(), fmt.Sprintf("fineprint-%s.%s", id, ext), body)
	}
}

func writeJobError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, bulk.ErrJobNotFound):
		response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found", nil)
	case errors.Is(err, bulk.ErrUnsupportedFormat):
		response.Error(w, http.StatusBadRequest, "UNSUPPORTED_FORMAT",
			"format must be one of json, csv, pdf, xlsx", nil)
	default:
		slog.Error("job request failed", "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}

func jobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "jobID must be a UUID", nil)
		return uuid.Nil, false
	}
	return id, true
}

func pagination(pageParam, limitParam string) (int, int, error) {
	page, limit := 1, defaultPageLimit
	if pageParam != "" {
		p, err := strconv.Atoi(pageParam)
		if err != nil || p < 1 {
			return 0, 0, errors.New("page must be a positive integer")
		}
		page = p
	}
	if limitParam != "" {
		l, err := strconv.Atoi(limitParam)
		if err != nil || l < 1 {
			return 0, 0, errors.New("limit must be a positive integer")
		}
		limit = min(l, maxPageLimit)
	}
	return page, limit, nil
}
