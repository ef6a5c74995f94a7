package bulk

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/fineprint/pkg/models"
	"golang.org/x/sync/errgroup"
)

// highRiskScore is the risk score at which a document counts as high risk.
const highRiskScore = 70

const anonymousUser = "anonymous"

// Run recovers persisted queue state and processes jobs with MaxConcurrent
// workers until ctx is cancelled. A job interrupted by shutdown stays
// processing and resumes on the next Run.
func (q *Queue) Run(ctx context.Context) error {
	if err := q.recoverState(ctx); err != nil {
		return fmt.Errorf("recovering queue: %w", err)
	}

	slog.Info("bulk workers started", "workers", q.cfg.MaxConcurrent)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < q.cfg.MaxConcurrent; i++ {
		g.Go(func() error {
			q.worker(gctx)
			return nil
		})
	}
	err := g.Wait()
	slog.Info("bulk workers stopped")
	return err
}

func (q *Queue) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.ready:
		}
		// Drain: a token can be dropped when the channel is full.
		for ctx.Err() == nil {
			aj, ok := q.next(ctx)
			if !ok {
				break
			}
			q.process(ctx, aj)
		}
	}
}

// next pops the highest-priority pending job, skipping entries whose job was deleted.
func (q *Queue) next(ctx context.Context) (*activeJob, bool) {
	q.mu.Lock()
	var aj *activeJob
	for {
		entry, ok := q.pending.pop()
		if !ok {
			break
		}
		if aj = q.active[entry.JobID]; aj != nil {
			break
		}
	}
	q.metrics.QueueDepth.Set(float64(q.pending.Len()))
	q.mu.Unlock()

	if aj == nil {
		return nil, false
	}
	q.saveQueue(ctx)
	return aj, true
}

func (q *Queue) retire(aj *activeJob) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if cur, ok := q.active[aj.job.ID]; ok && cur == aj {
		delete(q.active, aj.job.ID)
	}
}

// process runs one job's documents in order.
func (q *Queue) process(ctx context.Context, aj *activeJob) {
	aj.mu.Lock()
	jobID := aj.job.ID
	aj.mu.Unlock()

	logger := slog.With("job_id", jobID)
	// Persistence outlives shutdown so an interrupted job's state is complete.
	pctx := context.WithoutCancel(ctx)

	q.metrics.ActiveJobs.Inc()
	defer q.metrics.ActiveJobs.Dec()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic processing job", "panic", r)
			q.fail(pctx, aj, &InfrastructureError{JobID: jobID.String(), Op: "process", Err: fmt.Errorf("panic: %v", r)})
		}
	}()

	start := q.now()
	job, err := q.update(pctx, aj, func(j *models.Job) {
		if j.Status == models.JobStatusCancelled {
			return
		}
		j.Status = models.JobStatusProcessing
		if j.StartedAt == nil {
			j.StartedAt = &start
		}
		j.Progress.Total = len(j.Documents)
	})
	if isDeleted(err) {
		return
	}
	if err != nil {
		q.fail(pctx, aj, &InfrastructureError{JobID: jobID.String(), Op: "start", Err: err})
		return
	}
	if job.Status != models.JobStatusProcessing {
		q.retire(aj)
		return
	}
	q.notifier.Notify(pctx, models.EventJobProgress, job)
	logger.Info("job processing", "documents", len(job.Documents), "resume_at", len(job.Results))

	resumeAt := len(job.Results)
	for i := resumeAt; i < len(job.Documents); i++ {
		if ctx.Err() != nil {
			logger.Info("job interrupted by shutdown", "next_document", i)
			return
		}
		if q.isCancelled(aj) {
			logger.Info("job cancelled, stopping", "processed", i)
			q.retire(aj)
			return
		}

		doc := job.Documents[i]
		eta := estimateRemaining(q.now().Sub(start), i-resumeAt, len(job.Documents)-i)
		stopped := false
		snapshot, err := q.update(pctx, aj, func(j *models.Job) {
			if j.Status != models.JobStatusProcessing {
				stopped = true
				return
			}
			current := doc.URL
			j.Progress.CurrentDocument = &current
			j.Progress.EstimatedTimeRemainingMs = eta.Milliseconds()
		})
		if isDeleted(err) {
			return
		}
		if err != nil {
			q.fail(pctx, aj, &InfrastructureError{JobID: jobID.String(), Op: "progress", Err: err})
			return
		}
		if stopped {
			logger.Info("job cancelled, stopping", "processed", i)
			q.retire(aj)
			return
		}
		q.notifier.Notify(pctx, models.EventJobProgress, snapshot)
		// Progress listeners may cancel; the document is not in flight yet.
		if q.isCancelled(aj) {
			logger.Info("job cancelled, stopping", "processed", i)
			q.retire(aj)
			return
		}

		outcome := q.analyzeDocument(pctx, logger, job.Settings, doc)

		dropped := false
		snapshot, err = q.update(pctx, aj, func(j *models.Job) {
			// A cancel that landed during analysis keeps the job as it was.
			if j.Status != models.JobStatusProcessing {
				dropped = true
				return
			}
			j.Results = append(j.Results, outcome)
			if outcome.Status() == models.OutcomeFailed {
				j.Progress.Failed++
			} else {
				j.Progress.Completed++
			}
		})
		if isDeleted(err) {
			return
		}
		if err != nil {
			q.fail(pctx, aj, &InfrastructureError{JobID: jobID.String(), Op: "record outcome", Err: err})
			return
		}
		if dropped {
			q.retire(aj)
			return
		}
		q.notifier.Notify(pctx, models.EventJobProgress, snapshot)
	}

	q.finalize(pctx, logger, aj, start)
}

// analyzeDocument produces the outcome for one document. Document failures are
// returned as a FailedOutcome, never as an error.
func (q *Queue) analyzeDocument(ctx context.Context, logger *slog.Logger, settings models.JobSettings, doc models.DocumentRef) models.AnalysisOutcome {
	began := time.Now()
	content := q.documentContent(ctx, logger, doc)

	result, err := q.analyzer.Analyze(ctx, models.AnalysisRequest{
		URL:      doc.URL,
		Content:  content,
		UserID:   settings.UserID,
		UserTier: settings.UserTier,
	})
	if err != nil {
		derr := &DocumentError{URL: doc.URL, Stage: StageAnalyze, Err: err}
		logger.Warn("document analysis failed", "error", derr)
		q.metrics.ObserveDocument(string(models.OutcomeFailed), time.Since(began))
		return models.FailedOutcome{Document: doc, Error: err.Error(), ProcessedAt: q.now()}
	}

	hash := ContentHash(content)
	cached := result.Usage != nil && result.Usage.Cached
	if !cached {
		storeCacheEntry(ctx, q.store, doc.URL, content, result, q.cfg.CacheTTL)
	}

	model := q.analyzer.Name()
	if result.Usage != nil {
		if result.Usage.Model != "" {
			model = result.Usage.Model
		}
		userID := settings.UserID
		if userID == "" {
			userID = anonymousUser
		}
		q.costs.RecordCost(ctx, models.CostInput{
			UserID:   userID,
			UserTier: settings.UserTier,
			ModelID:  model,
			Cost:     result.Usage.Cost,
			Cached:   cached,
		})
	}

	q.metrics.ObserveDocument(string(models.OutcomeCompleted), time.Since(began))
	return models.CompletedOutcome{
		Document:    doc,
		AnalysisID:  result.AnalysisID,
		RiskScore:   result.RiskScore,
		Findings:    result.Findings,
		ContentHash: hash,
		Model:       model,
		ProcessedAt: q.now(),
	}
}

// documentContent prefers the live tab and falls back to fetching the URL.
// Any failure yields empty content, which the analyzer rejects.
func (q *Queue) documentContent(ctx context.Context, logger *slog.Logger, doc models.DocumentRef) string {
	if doc.TabID != "" && q.tabs != nil {
		content, open, err := q.tabs.TabContent(ctx, doc.TabID)
		if err == nil && open {
			return content
		}
		if err != nil {
			logger.Warn("reading tab content", "tab_id", doc.TabID, "error", err)
		}
	}
	if q.fetcher == nil {
		return ""
	}
	content, err := q.fetcher.Fetch(ctx, doc.URL)
	if err != nil {
		logger.Warn("fetching document", "error", &DocumentError{URL: doc.URL, Stage: StageFetch, Err: err})
		return ""
	}
	return content
}

func (q *Queue) finalize(ctx context.Context, logger *slog.Logger, aj *activeJob, start time.Time) {
	finished := false
	job, err := q.update(ctx, aj, func(j *models.Job) {
		if j.Status != models.JobStatusProcessing {
			return
		}
		now := q.now()
		j.Status = models.JobStatusCompleted
		j.CompletedAt = &now
		j.Progress.Completed = len(j.Documents) - j.Progress.Failed
		j.Progress.CurrentDocument = nil
		j.Progress.EstimatedTimeRemainingMs = 0
		j.Summary = summarize(j.Results, now.Sub(start))
		finished = true
	})
	if isDeleted(err) {
		return
	}
	if err != nil {
		q.fail(ctx, aj, &InfrastructureError{JobID: aj.job.ID.String(), Op: "finalize", Err: err})
		return
	}
	q.retire(aj)
	if !finished {
		return
	}

	q.metrics.JobsFinished.WithLabelValues(string(models.JobStatusCompleted)).Inc()
	q.notifier.Notify(ctx, models.EventJobCompleted, job)
	logger.Info("job completed",
		"successful", job.Summary.Successful,
		"failed", job.Summary.Failed,
		"high_risk", job.Summary.HighRiskDocuments,
		"duration_ms", job.Summary.DurationMs,
	)
}

// fail marks the job failed and publishes the error. The submitter never sees it.
func (q *Queue) fail(ctx context.Context, aj *activeJob, cause error) {
	slog.Error("bulk job failed", "error", cause)

	msg := cause.Error()
	job, err := q.update(ctx, aj, func(j *models.Job) {
		now := q.now()
		j.Status = models.JobStatusFailed
		j.Error = &msg
		j.CompletedAt = &now
		j.Progress.CurrentDocument = nil
		j.Progress.EstimatedTimeRemainingMs = 0
	})
	if isDeleted(err) {
		return
	}
	if err != nil {
		// Keep the in-memory copy so GetJob still reports the failure.
		slog.Error("persisting failed job", "error", err)
	} else {
		q.retire(aj)
	}

	id := aj.job.ID
	if job != nil {
		id = job.ID
	}
	q.metrics.JobsFinished.WithLabelValues(string(models.JobStatusFailed)).Inc()
	q.notifier.Notify(ctx, models.EventJobFailed, map[string]string{
		"job_id": id.String(),
		"error":  msg,
	})
}

func (q *Queue) isCancelled(aj *activeJob) bool {
	aj.mu.Lock()
	defer aj.mu.Unlock()
	return aj.cancelled
}

// estimateRemaining extrapolates the average time per processed document.
func estimateRemaining(elapsed time.Duration, processed, remaining int) time.Duration {
	if processed <= 0 {
		return 0
	}
	return elapsed / time.Duration(processed) * time.Duration(remaining)
}

func summarize(results models.Outcomes, took time.Duration) *models.JobSummary {
	s := &models.JobSummary{DurationMs: took.Milliseconds()}
	total := 0
	for _, o := range results {
		switch o := o.(type) {
		case models.CompletedOutcome:
			s.Successful++
			s.TotalFindings += len(o.Findings)
			total += o.RiskScore
			if o.RiskScore >= highRiskScore {
				s.HighRiskDocuments++
			}
		case models.FailedOutcome:
			s.Failed++
		}
	}
	if s.Successful > 0 {
		s.AverageRiskScore = float64(total) / float64(s.Successful)
	}
	return s
}
