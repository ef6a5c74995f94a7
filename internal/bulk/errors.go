package bulk

import (
	"errors"
	"fmt"

	"github.com/kiranshivaraju/fineprint/internal/export"
)

var (
	ErrEmptyInput        = errors.New("no legal documents found in input")
	ErrJobNotFound       = errors.New("job not found")
	ErrQueueFull         = errors.New("job queue is full")
	ErrUnsupportedFormat = export.ErrUnsupportedFormat

	errJobDeleted = errors.New("job was deleted")
)

// Stage names where a single document can fail.
const (
	StageFetch   = "fetch"
	StageAnalyze = "analyze"
)

// DocumentError is a per-document failure. It becomes a FailedOutcome and never
// fails the job.
type DocumentError struct {
	URL   string
	Stage string
	Err   error
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.URL, e.Err)
}

func (e *DocumentError) Unwrap() error { return e.Err }

// InfrastructureError is a job-level failure (persistence or a panic). The job
// is marked failed and the error is published through the notifier.
type InfrastructureError struct {
	JobID string
	Op    string
	Err   error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("job %s: %s: %v", e.JobID, e.Op, e.Err)
}

func (e *InfrastructureError) Unwrap() error { return e.Err }
