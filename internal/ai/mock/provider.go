package mock

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fineprint/internal/ai"
	"github.com/kiranshivaraju/fineprint/pkg/models"
)

// MockProvider satisfies models.Analyzer for testing and offline runs.
type MockProvider struct {
	Name_       string
	AnalyzeFunc func(ctx context.Context, req models.AnalysisRequest) (models.AnalysisResult, error)
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) Analyze(ctx context.Context, req models.AnalysisRequest) (models.AnalysisResult, error) {
	if m.AnalyzeFunc != nil {
		return m.AnalyzeFunc(ctx, req)
	}
	return models.AnalysisResult{}, nil
}

// clause is a phrase the mock flags, with the finding it produces.
type clause struct {
	phrase   string
	category string
	title    string
	severity string
}

var clauses = []clause{
	{"binding arbitration", "dispute_resolution", "Mandatory arbitration", "high"},
	{"class action", "dispute_resolution", "Class action waiver", "high"},
	{"sell your", "data_sharing", "Personal data may be sold", "critical"},
	{"third parties", "data_sharing", "Data shared with third parties", "medium"},
	{"terminate your account", "termination", "Account termination at will", "medium"},
	{"without notice", "user_rights", "Changes without notice", "medium"},
	{"perpetual", "content_rights", "Perpetual content license", "high"},
	{"automatically renew", "payment", "Automatic renewal", "low"},
}

var severityWeight = map[string]int{
	"low":      5,
	"medium":   15,
	"high":     25,
	"critical": 35,
}

// NewMockProvider returns a MockProvider that flags a fixed set of phrases and
// reports a flat cost per call.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock",
		AnalyzeFunc: func(_ context.Context, req models.AnalysisRequest) (models.AnalysisResult, error) {
			lower := strings.ToLower(req.Content)
			var (
				findings []models.Finding
				score    int
			)
			for _, c := range clauses {
				pos := strings.Index(lower, c.phrase)
				if pos < 0 {
					continue
				}
				findings = append(findings, models.Finding{
					ID:              uuid.NewString(),
					Category:        c.category,
					Title:           c.title,
					Description:     "The document contains \"" + c.phrase + "\".",
					Severity:        c.severity,
					ConfidenceScore: 0.8,
					TextExcerpt:     c.phrase,
					PositionStart:   pos,
					PositionEnd:     pos + len(c.phrase),
					Recommendation:  "Review this clause before accepting.",
				})
				score += severityWeight[c.severity]
			}
			return models.AnalysisResult{
				AnalysisID: uuid.NewString(),
				RiskScore:  min(score, 100),
				Findings:   findings,
				Usage: &models.Usage{
					Model:        "mock-v1",
					InputTokens:  int64(len(req.Content) / 4),
					OutputTokens: int64(50 * len(findings)),
					Cost:         0.001,
				},
			}, nil
		},
	}
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		AnalyzeFunc: func(_ context.Context, _ models.AnalysisRequest) (models.AnalysisResult, error) {
			return models.AnalysisResult{}, err
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until context is cancelled.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock-timeout",
		AnalyzeFunc: func(ctx context.Context, _ models.AnalysisRequest) (models.AnalysisResult, error) {
			<-ctx.Done()
			return models.AnalysisResult{}, ai.ErrInferenceTimeout
		},
	}
}

// Compile-time check that MockProvider implements Analyzer.
var _ models.Analyzer = (*MockProvider)(nil)
