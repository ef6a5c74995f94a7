// Package models contains shared data models used across the Fine Print codebase.
package models

import "context"

// Analyzer is the core interface that all document analysis integrations must implement.
// Never call specific AI providers directly; inject this interface.
type Analyzer interface {
	// Analyze scores a legal document and extracts findings from its text.
	Analyze(ctx context.Context, req AnalysisRequest) (AnalysisResult, error)
	// Name returns the provider identifier (e.g., "ollama", "anthropic").
	Name() string
}

// AnalysisRequest is the input to a single document analysis.
type AnalysisRequest struct {
	URL      string
	Content  string
	UserID   string
	UserTier UserTier
}

// AnalysisResult is what an Analyzer returns for one document.
type AnalysisResult struct {
	AnalysisID string    `json:"analysis_id"`
	RiskScore  int       `json:"risk_score"`
	Findings   []Finding `json:"findings"`
	Usage      *Usage    `json:"usage,omitempty"`
}

// Finding is one problematic clause identified in a document.
type Finding struct {
	ID                string  `json:"id"`
	Category          string  `json:"category"`
	Title             string  `json:"title"`
	Description       string  `json:"description"`
	Severity          string  `json:"severity"`
	ConfidenceScore   float64 `json:"confidence_score"`
	TextExcerpt       string  `json:"text_excerpt"`
	PositionStart     int     `json:"position_start"`
	PositionEnd       int     `json:"position_end"`
	Recommendation    string  `json:"recommendation"`
	ImpactExplanation string  `json:"impact_explanation"`
}

// Usage describes the model spend behind an AnalysisResult. Cached is set when the
// result was served from the analysis cache, in which case Cost is the amount saved.
type Usage struct {
	Model        string  `json:"model"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	Cost         float64 `json:"cost"`
	Cached       bool    `json:"cached"`
}
