package models

import (
	"encoding/json"
	"fmt"
	"time"
)

type OutcomeStatus string

const (
	OutcomeCompleted OutcomeStatus = "completed"
	OutcomeFailed    OutcomeStatus = "failed"
)

// AnalysisOutcome is the per-document result of a job. It is implemented only by
// CompletedOutcome and FailedOutcome; use a type switch to handle both.
type AnalysisOutcome interface {
	Doc() DocumentRef
	Status() OutcomeStatus
	isAnalysisOutcome()
}

type CompletedOutcome struct {
	Document    DocumentRef `json:"document"`
	AnalysisID  string      `json:"analysis_id"`
	RiskScore   int         `json:"risk_score"`
	Findings    []Finding   `json:"findings"`
	ContentHash string      `json:"content_hash"`
	Model       string      `json:"model,omitempty"`
	ProcessedAt time.Time   `json:"processed_at"`
}

type FailedOutcome struct {
	Document    DocumentRef `json:"document"`
	Error       string      `json:"error"`
	ProcessedAt time.Time   `json:"processed_at"`
}

func (o CompletedOutcome) Doc() DocumentRef      { return o.Document }
func (o CompletedOutcome) Status() OutcomeStatus { return OutcomeCompleted }
func (CompletedOutcome) isAnalysisOutcome()      {}

func (o FailedOutcome) Doc() DocumentRef      { return o.Document }
func (o FailedOutcome) Status() OutcomeStatus { return OutcomeFailed }
func (FailedOutcome) isAnalysisOutcome()      {}

// Outcomes is the ordered result list of a Job. It serializes each element with a
// "status" discriminator so the variant survives a persistence round trip.
type Outcomes []AnalysisOutcome

type outcomeRecord struct {
	Status      OutcomeStatus `json:"status"`
	Document    DocumentRef   `json:"document"`
	AnalysisID  string        `json:"analysis_id,omitempty"`
	RiskScore   int           `json:"risk_score"`
	Findings    []Finding     `json:"findings,omitempty"`
	ContentHash string        `json:"content_hash,omitempty"`
	Model       string        `json:"model,omitempty"`
	Error       string        `json:"error,omitempty"`
	ProcessedAt time.Time     `json:"processed_at"`
}

func (o Outcomes) MarshalJSON() ([]byte, error) {
	records := make([]outcomeRecord, 0, len(o))
	for _, outcome := range o {
		switch v := outcome.(type) {
		case CompletedOutcome:
			records = append(records, outcomeRecord{
				Status:      OutcomeCompleted,
				Document:    v.Document,
				AnalysisID:  v.AnalysisID,
				RiskScore:   v.RiskScore,
				Findings:    v.Findings,
				ContentHash: v.ContentHash,
				Model:       v.Model,
				ProcessedAt: v.ProcessedAt,
			})
		case FailedOutcome:
			records = append(records, outcomeRecord{
				Status:      OutcomeFailed,
				Document:    v.Document,
				Error:       v.Error,
				ProcessedAt: v.ProcessedAt,
			})
		default:
			return nil, fmt.Errorf("unknown outcome type %T", outcome)
		}
	}
	return json.Marshal(records)
}

func (o *Outcomes) UnmarshalJSON(data []byte) error {
	var records []outcomeRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return err
	}
	out := make(Outcomes, 0, len(records))
	for _, r := range records {
		switch r.Status {
		case OutcomeCompleted:
			out = append(out, CompletedOutcome{
				Document:    r.Document,
				AnalysisID:  r.AnalysisID,
				RiskScore:   r.RiskScore,
				Findings:    r.Findings,
				ContentHash: r.ContentHash,
				Model:       r.Model,
				ProcessedAt: r.ProcessedAt,
			})
		case OutcomeFailed:
			out = append(out, FailedOutcome{
				Document:    r.Document,
				Error:       r.Error,
				ProcessedAt: r.ProcessedAt,
			})
		default:
			return fmt.Errorf("unknown outcome status %q", r.Status)
		}
	}
	*o = out
	return nil
}
