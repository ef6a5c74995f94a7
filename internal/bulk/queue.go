// Package bulk runs bulk legal-document analysis jobs on a bounded worker pool.
package bulk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fineprint/internal/export"
	"github.com/kiranshivaraju/fineprint/internal/kv"
	"github.com/kiranshivaraju/fineprint/internal/metrics"
	"github.com/kiranshivaraju/fineprint/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
)

// minDetectionConfidence is the detector score a page must exceed to be analyzed.
const minDetectionConfidence = 0.3

// TabSource lists the session's open tabs and reads their live content.
type TabSource interface {
	ListTabs(ctx context.Context) ([]models.Tab, error)
	// TabContent returns the current text of a tab; open is false once it has closed.
	TabContent(ctx context.Context, tabID string) (content string, open bool, err error)
}

// Detector decides whether a page is a legal document.
type Detector interface {
	Detect(url, title, content string) models.Detection
}

// Fetcher downloads the readable text of a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// CostRecorder receives model usage for billing. It must not block for long.
type CostRecorder interface {
	RecordCost(ctx context.Context, in models.CostInput)
}

// Config tunes the queue.
type Config struct {
	MaxConcurrent int
	QueueCapacity int
	// JobRetention is the TTL applied to jobs once they reach a terminal status.
	JobRetention time.Duration
	CacheTTL     time.Duration
}

// Dependencies are the queue's collaborators. Store, Analyzer and Detector are
// required; the rest may be nil.
type Dependencies struct {
	Store    kv.Store
	Analyzer models.Analyzer
	Detector Detector
	Fetcher  Fetcher
	Tabs     TabSource
	Costs    CostRecorder
	Notifier models.Notifier
	Metrics  *metrics.Metrics
}

// Queue owns every Job: it is the only writer, persists each mutation through
// kv.Store and hands callers copies.
type Queue struct {
	cfg      Config
	store    kv.Store
	analyzer models.Analyzer
	detector Detector
	fetcher  Fetcher
	tabs     TabSource
	costs    CostRecorder
	notifier models.Notifier
	metrics  *metrics.Metrics
	now      func() time.Time

	// submitMu serializes submissions so the capacity check holds until the push.
	submitMu sync.Mutex
	// queueSaveMu orders writes of the persisted queue snapshot.
	queueSaveMu sync.Mutex

	mu      sync.Mutex
	pending pending
	active  map[uuid.UUID]*activeJob
	ready   chan struct{}
}

// activeJob is the in-memory copy of a queued or processing job. mu is held
// across each mutation and its write-through so writes land in order.
type activeJob struct {
	mu        sync.Mutex
	job       *models.Job
	cancelled bool
	deleted   bool
}

// NewQueue creates a Queue. Call Run to start processing.
func NewQueue(cfg Config, deps Dependencies) *Queue {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 3
	}
	if cfg.QueueCapacity < 1 {
		cfg.QueueCapacity = 100
	}
	q := &Queue{
		cfg:      cfg,
		store:    deps.Store,
		analyzer: deps.Analyzer,
		detector: deps.Detector,
		fetcher:  deps.Fetcher,
		tabs:     deps.Tabs,
		costs:    deps.Costs,
		notifier: deps.Notifier,
		metrics:  deps.Metrics,
		now:      func() time.Time { return time.Now().UTC() },
		active:   make(map[uuid.UUID]*activeJob),
		ready:    make(chan struct{}, cfg.QueueCapacity),
	}
	if q.notifier == nil {
		q.notifier = nopNotifier{}
	}
	if q.costs == nil {
		q.costs = nopRecorder{}
	}
	if q.metrics == nil {
		q.metrics = metrics.New(prometheus.NewRegistry())
	}
	return q
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, string, any) {}

type nopRecorder struct{}

func (nopRecorder) RecordCost(context.Context, models.CostInput) {}

// --- Submission ---

// SubmitSessionJob creates a job from every open tab that looks like a legal document.
func (q *Queue) SubmitSessionJob(ctx context.Context, opts ...SubmitOption) (*models.Job, error) {
	if q.tabs == nil {
		return nil, ErrEmptyInput
	}
	tabs, err := q.tabs.ListTabs(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing tabs: %w", err)
	}

	var docs []models.DocumentRef
	for _, tab := range tabs {
		content, _, err := q.tabs.TabContent(ctx, tab.ID)
		if err != nil {
			slog.Warn("reading tab content", "tab_id", tab.ID, "error", err)
		}
		det := q.detector.Detect(tab.URL, tab.Title, content)
		if det.Confidence <= minDetectionConfidence {
			continue
		}
		docs = append(docs, models.DocumentRef{URL: tab.URL, Title: tab.Title, TabID: tab.ID, Detection: det})
	}
	if len(docs) == 0 {
		return nil, ErrEmptyInput
	}
	return q.submit(ctx, models.JobKindSessionScan, docs, applyOptions(opts))
}

// SubmitURLListJob creates a job from urls. A URL open in a tab is detected
// against the tab's title and content; any other URL is judged on the URL alone.
// URLs are trimmed and a repeated URL keeps only its first position.
func (q *Queue) SubmitURLListJob(ctx context.Context, urls []string, opts ...SubmitOption) (*models.Job, error) {
	byURL := make(map[string]models.Tab)
	if q.tabs != nil {
		tabs, err := q.tabs.ListTabs(ctx)
		if err != nil {
			slog.Warn("listing tabs for url submission", "error", err)
		}
		for _, tab := range tabs {
			if _, dup := byURL[tab.URL]; !dup {
				byURL[tab.URL] = tab
			}
		}
	}

	var docs []models.DocumentRef
	seen := make(map[string]bool)
	for _, raw := range urls {
		url := strings.TrimSpace(raw)
		if url == "" || seen[url] {
			continue
		}
		seen[url] = true

		doc := models.DocumentRef{URL: url, Title: url}
		if tab, ok := byURL[url]; ok {
			content, _, err := q.tabs.TabContent(ctx, tab.ID)
			if err != nil {
				slog.Warn("reading tab content", "tab_id", tab.ID, "error", err)
			}
			doc.Title = tab.Title
			doc.TabID = tab.ID
			doc.Detection = q.detector.Detect(url, tab.Title, content)
		} else {
			doc.Detection = q.detector.Detect(url, "", "")
		}
		if doc.Detection.Confidence <= minDetectionConfidence {
			continue
		}
		docs = append(docs, doc)
	}
	if len(docs) == 0 {
		return nil, ErrEmptyInput
	}
	return q.submit(ctx, models.JobKindURLList, docs, applyOptions(opts))
}

func (q *Queue) submit(ctx context.Context, kind models.JobKind, docs []models.DocumentRef, o submitOptions) (*models.Job, error) {
	q.submitMu.Lock()
	defer q.submitMu.Unlock()

	q.mu.Lock()
	full := q.pending.Len() >= q.cfg.QueueCapacity
	q.mu.Unlock()
	if full {
		return nil, ErrQueueFull
	}

	now := q.now()
	job := &models.Job{
		ID:        uuid.New(),
		Name:      o.name,
		Kind:      kind,
		Status:    models.JobStatusQueued,
		Documents: docs,
		Results:   models.Outcomes{},
		Progress:  models.JobProgress{Total: len(docs)},
		Settings: models.JobSettings{
			UserID:   o.userID,
			UserTier: o.tier,
			Priority: o.priority,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := q.persist(ctx, job); err != nil {
		return nil, fmt.Errorf("creating job: %w", err)
	}

	q.mu.Lock()
	q.active[job.ID] = &activeJob{job: job.Clone()}
	q.pending.push(models.QueueEntry{JobID: job.ID, Priority: o.priority, EnqueuedAt: now})
	q.metrics.QueueDepth.Set(float64(q.pending.Len()))
	q.mu.Unlock()

	q.saveQueue(ctx)
	q.wake()
	q.metrics.JobsSubmitted.WithLabelValues(string(kind)).Inc()

	slog.Info("job queued", "job_id", job.ID, "kind", kind, "documents", len(docs), "priority", o.priority)
	return job, nil
}

// wake posts a dispatch token. A full channel already guarantees a worker pass.
func (q *Queue) wake() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// --- Queries ---

// GetJob returns a copy of the job.
func (q *Queue) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	if aj := q.lookup(id); aj != nil {
		aj.mu.Lock()
		defer aj.mu.Unlock()
		if !aj.deleted {
			return aj.job.Clone(), nil
		}
		return nil, ErrJobNotFound
	}
	job, err := q.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// ListJobs merges in-memory and persisted jobs, newest first.
func (q *Queue) ListJobs(ctx context.Context) ([]*models.Job, error) {
	byID := make(map[uuid.UUID]*models.Job)

	q.mu.Lock()
	actives := make([]*activeJob, 0, len(q.active))
	for _, aj := range q.active {
		actives = append(actives, aj)
	}
	q.mu.Unlock()
	for _, aj := range actives {
		aj.mu.Lock()
		if !aj.deleted {
			byID[aj.job.ID] = aj.job.Clone()
		}
		aj.mu.Unlock()
	}

	keys, err := q.store.Scan(ctx, kv.JobKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	for _, key := range keys {
		id, err := uuid.Parse(strings.TrimPrefix(key, kv.JobKeyPrefix))
		if err != nil {
			continue
		}
		if _, ok := byID[id]; ok {
			continue
		}
		job, err := q.load(ctx, id)
		if err != nil {
			slog.Warn("skipping unreadable job", "job_id", id, "error", err)
			continue
		}
		if job != nil {
			byID[id] = job
		}
	}

	jobs := make([]*models.Job, 0, len(byID))
	for _, j := range byID {
		jobs = append(jobs, j)
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].CreatedAt.After(jobs[k].CreatedAt) })
	return jobs, nil
}

// --- Control ---

// CancelJob stops a processing job between documents. It reports false, without
// error, for a job that is not processing.
func (q *Queue) CancelJob(ctx context.Context, id uuid.UUID) (bool, error) {
	aj := q.lookup(id)
	if aj == nil {
		return false, nil
	}

	aj.mu.Lock()
	if aj.deleted || aj.job.Status != models.JobStatusProcessing {
		aj.mu.Unlock()
		return false, nil
	}
	now := q.now()
	aj.cancelled = true
	aj.job.Status = models.JobStatusCancelled
	aj.job.CompletedAt = &now
	aj.job.Progress.CurrentDocument = nil
	aj.job.Progress.EstimatedTimeRemainingMs = 0
	aj.job.UpdatedAt = now
	snapshot := aj.job.Clone()
	err := q.persist(ctx, snapshot)
	aj.mu.Unlock()

	if err != nil {
		return true, fmt.Errorf("persisting cancelled job: %w", err)
	}
	q.metrics.JobsFinished.WithLabelValues(string(models.JobStatusCancelled)).Inc()
	q.notifier.Notify(ctx, models.EventJobCancelled, snapshot)
	slog.Info("job cancelled", "job_id", id)
	return true, nil
}

// DeleteJob removes a job, its pending queue entry and its persisted state.
// It reports whether anything existed, so a repeat call returns false.
func (q *Queue) DeleteJob(ctx context.Context, id uuid.UUID) (bool, error) {
	q.mu.Lock()
	aj := q.active[id]
	delete(q.active, id)
	dequeued := q.pending.remove(id)
	q.metrics.QueueDepth.Set(float64(q.pending.Len()))
	q.mu.Unlock()

	if aj != nil {
		aj.mu.Lock()
		aj.deleted = true
		aj.cancelled = true
		aj.mu.Unlock()
	}

	_, persisted, err := q.store.Get(ctx, kv.JobKey(id))
	if err != nil {
		return false, fmt.Errorf("reading job: %w", err)
	}
	if err := q.store.Delete(ctx, kv.JobKey(id)); err != nil {
		return false, fmt.Errorf("deleting job: %w", err)
	}
	if dequeued {
		q.saveQueue(ctx)
	}

	existed := aj != nil || persisted || dequeued
	if existed {
		slog.Info("job deleted", "job_id", id)
	}
	return existed, nil
}

// ExportResults renders a job's results as json, csv, pdf or xlsx.
func (q *Queue) ExportResults(ctx context.Context, id uuid.UUID, format string) ([]byte, error) {
	job, err := q.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	return export.Render(job, export.Format(strings.ToLower(format)))
}

// --- Persistence ---

func (q *Queue) lookup(id uuid.UUID) *activeJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active[id]
}

func (q *Queue) persist(ctx context.Context, job *models.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encoding job: %w", err)
	}
	var ttl time.Duration
	if job.Status.Terminal() {
		ttl = q.cfg.JobRetention
	}
	return q.store.Set(ctx, kv.JobKey(job.ID), data, ttl)
}

// load reads a persisted job; a missing job is (nil, nil).
func (q *Queue) load(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	data, found, err := q.store.Get(ctx, kv.JobKey(id))
	if err != nil {
		return nil, fmt.Errorf("reading job: %w", err)
	}
	if !found {
		return nil, nil
	}
	var job models.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decoding job %s: %w", id, err)
	}
	return &job, nil
}

// update applies fn to the in-memory job and writes the result through to the
// store. A crash between the two loses only this mutation.
func (q *Queue) update(ctx context.Context, aj *activeJob, fn func(j *models.Job)) (*models.Job, error) {
	aj.mu.Lock()
	defer aj.mu.Unlock()
	if aj.deleted {
		return nil, errJobDeleted
	}
	fn(aj.job)
	aj.job.UpdatedAt = q.now()
	snapshot := aj.job.Clone()
	if err := q.persist(ctx, snapshot); err != nil {
		return snapshot, err
	}
	return snapshot, nil
}

// saveQueue writes the pending entries. Failures are logged: recovery also
// rescans persisted jobs.
func (q *Queue) saveQueue(ctx context.Context) {
	q.queueSaveMu.Lock()
	defer q.queueSaveMu.Unlock()

	q.mu.Lock()
	entries := q.pending.snapshot()
	q.mu.Unlock()

	data, err := json.Marshal(entries)
	if err != nil {
		slog.Error("encoding queue", "error", err)
		return
	}
	if err := q.store.Set(ctx, kv.QueueKey, data, 0); err != nil {
		slog.Error("persisting queue", "error", err)
	}
}

// recoverState reloads pending entries and re-enqueues jobs that were queued or
// left processing by a previous run.
func (q *Queue) recoverState(ctx context.Context) error {
	var entries []models.QueueEntry
	data, found, err := q.store.Get(ctx, kv.QueueKey)
	if err != nil {
		return fmt.Errorf("reading queue: %w", err)
	}
	if found {
		if err := json.Unmarshal(data, &entries); err != nil {
			slog.Warn("discarding unreadable queue snapshot", "error", err)
			entries = nil
		}
	}

	queued := make(map[uuid.UUID]models.QueueEntry, len(entries))
	for _, e := range entries {
		queued[e.JobID] = e
	}

	keys, err := q.store.Scan(ctx, kv.JobKeyPrefix)
	if err != nil {
		return fmt.Errorf("scanning jobs: %w", err)
	}

	recovered := 0
	for _, key := range keys {
		id, err := uuid.Parse(strings.TrimPrefix(key, kv.JobKeyPrefix))
		if err != nil {
			continue
		}
		job, err := q.load(ctx, id)
		if err != nil || job == nil {
			continue
		}
		if job.Status != models.JobStatusQueued && job.Status != models.JobStatusProcessing {
			continue
		}

		entry, ok := queued[id]
		if !ok {
			entry = models.QueueEntry{JobID: id, Priority: job.Settings.Priority, EnqueuedAt: job.CreatedAt}
		}

		q.mu.Lock()
		if _, exists := q.active[id]; !exists {
			q.active[id] = &activeJob{job: job}
			if !q.pending.contains(id) {
				q.pending.push(entry)
				recovered++
			}
		}
		q.mu.Unlock()
	}

	q.mu.Lock()
	q.metrics.QueueDepth.Set(float64(q.pending.Len()))
	q.mu.Unlock()

	if recovered > 0 {
		slog.Info("recovered queued jobs", "count", recovered)
		q.saveQueue(ctx)
		for i := 0; i < recovered && i < q.cfg.MaxConcurrent; i++ {
			q.wake()
		}
	}
	return nil
}

// isDeleted reports whether err means the job vanished mid-processing.
func isDeleted(err error) bool {
	return errors.Is(err, errJobDeleted)
}
