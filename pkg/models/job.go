package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether no further processing will happen for the status.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

type JobKind string

const (
	JobKindSessionScan JobKind = "session_scan"
	JobKindURLList     JobKind = "url_list"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Rank orders priorities for dispatch; higher runs first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 2
	case PriorityLow:
		return 0
	default:
		return 1
	}
}

// ParsePriority accepts "high", "normal" or "low". Empty input means normal.
func ParsePriority(s string) (Priority, error) {
	switch Priority(s) {
	case "":
		return PriorityNormal, nil
	case PriorityHigh, PriorityNormal, PriorityLow:
		return Priority(s), nil
	default:
		return "", fmt.Errorf("invalid priority %q: must be one of high, normal, low", s)
	}
}

// Job is a tracked unit of bulk document analysis. The queue is the only writer;
// callers receive copies.
type Job struct {
	ID          uuid.UUID     `json:"id"`
	Name        string        `json:"name,omitempty"`
	Kind        JobKind       `json:"kind"`
	Status      JobStatus     `json:"status"`
	Documents   []DocumentRef `json:"documents"`
	Results     Outcomes      `json:"results"`
	Progress    JobProgress   `json:"progress"`
	Settings    JobSettings   `json:"settings"`
	Summary     *JobSummary   `json:"summary,omitempty"`
	Error       *string       `json:"error,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// DocumentRef points at one document to analyze, optionally backed by a live tab.
type DocumentRef struct {
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	TabID     string    `json:"tab_id,omitempty"`
	Detection Detection `json:"detection"`
}

// Detection is the legal-document detector's verdict for a page.
type Detection struct {
	IsTermsPage   bool     `json:"is_terms_page"`
	IsPrivacyPage bool     `json:"is_privacy_page"`
	DocumentType  string   `json:"document_type"`
	Confidence    float64  `json:"confidence"`
	Indicators    []string `json:"indicators,omitempty"`
}

type JobProgress struct {
	Total                    int     `json:"total"`
	Completed                int     `json:"completed"`
	Failed                   int     `json:"failed"`
	CurrentDocument          *string `json:"current_document,omitempty"`
	EstimatedTimeRemainingMs int64   `json:"estimated_time_remaining_ms"`
}

// JobSettings is the caller configuration captured when the job is created.
type JobSettings struct {
	UserID   string   `json:"user_id,omitempty"`
	UserTier UserTier `json:"user_tier"`
	Priority Priority `json:"priority"`
}

type JobSummary struct {
	Successful        int     `json:"successful"`
	Failed            int     `json:"failed"`
	TotalFindings     int     `json:"total_findings"`
	HighRiskDocuments int     `json:"high_risk_documents"`
	AverageRiskScore  float64 `json:"average_risk_score"`
	DurationMs        int64   `json:"duration_ms"`
}

// QueueEntry is a pending pointer to a Job awaiting a worker.
type QueueEntry struct {
	JobID      uuid.UUID `json:"job_id"`
	Priority   Priority  `json:"priority"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Clone returns a copy that shares no mutable state with j.
// Outcomes and findings are never mutated after creation, so they are copied shallowly.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.Documents = append([]DocumentRef(nil), j.Documents...)
	c.Results = append(Outcomes(nil), j.Results...)
	if j.Progress.CurrentDocument != nil {
		cur := *j.Progress.CurrentDocument
		c.Progress.CurrentDocument = &cur
	}
	if j.Summary != nil {
		s := *j.Summary
		c.Summary = &s
	}
	if j.Error != nil {
		e := *j.Error
		c.Error = &e
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
