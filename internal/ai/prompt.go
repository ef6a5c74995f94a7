package ai

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fineprint/pkg/models"
)

// MaxContentBytes bounds the document text sent to a model.
const MaxContentBytes = 60_000

// SystemPrompt instructs the model to answer with the JSON shape ParseResult expects.
const SystemPrompt = `You review legal documents (terms of service, privacy policies, EULAs) for clauses that are unfavorable to users.
Respond with a single JSON object and nothing else:
{"risk_score": <integer 0-100>, "findings": [{"category": "...", "title": "...", "description": "...", "severity": "low|medium|high|critical", "confidence_score": <0-1>, "text_excerpt": "...", "position_start": <int>, "position_end": <int>, "recommendation": "...", "impact_explanation": "..."}]}
Categories: data_collection, data_sharing, user_rights, liability, termination, payment, content_rights, dispute_resolution, other.`

// BuildPrompt renders the user message for req.
func BuildPrompt(req models.AnalysisRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Document URL: %s\n\n", req.URL)
	b.WriteString("Document text:\n")
	b.WriteString(TruncateString(req.Content, MaxContentBytes))
	return b.String()
}

var validSeverities = map[string]bool{
	"low":      true,
	"medium":   true,
	"high":     true,
	"critical": true,
}

type rawResult struct {
	RiskScore float64          `json:"risk_score"`
	Findings  []models.Finding `json:"findings"`
}

// ParseResult extracts the JSON object from a model reply and normalizes it:
// risk is clamped to [0, 100], confidences to [0, 1], unknown severities become
// "medium" and every finding gets an ID.
func ParseResult(text string) (models.AnalysisResult, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return models.AnalysisResult{}, fmt.Errorf("%w: no JSON object in reply", ErrInvalidResponse)
	}

	var raw rawResult
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return models.AnalysisResult{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	score := int(raw.RiskScore + 0.5)
	score = max(0, min(100, score))

	findings := make([]models.Finding, 0, len(raw.Findings))
	for _, f := range raw.Findings {
		if f.ID == "" {
			f.ID = uuid.NewString()
		}
		f.Severity = strings.ToLower(f.Severity)
		if !validSeverities[f.Severity] {
			f.Severity = "medium"
		}
		f.ConfidenceScore = max(0, min(1, f.ConfidenceScore))
		f.Title = TruncateString(f.Title, 200)
		f.Description = TruncateString(f.Description, 2000)
		f.TextExcerpt = TruncateString(f.TextExcerpt, 1000)
		findings = append(findings, f)
	}

	return models.AnalysisResult{
		AnalysisID: uuid.NewString(),
		RiskScore:  score,
		Findings:   findings,
	}, nil
}

// TruncateString truncates s to maxBytes without splitting UTF-8 runes.
func TruncateString(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}
