package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fineprint/pkg/models"
)

// Service wraps a provider with the per-call inference timeout and result
// normalization every provider needs.
type Service struct {
	provider models.Analyzer
	timeout  time.Duration
}

// NewService creates a new Service. A zero timeout disables the deadline.
func NewService(provider models.Analyzer, timeout time.Duration) *Service {
	return &Service{provider: provider, timeout: timeout}
}

func (s *Service) Name() string { return s.provider.Name() }

// Analyze rejects blank documents, runs the provider under the timeout and
// normalizes what comes back.
func (s *Service) Analyze(ctx context.Context, req models.AnalysisRequest) (models.AnalysisResult, error) {
	if strings.TrimSpace(req.Content) == "" {
		return models.AnalysisResult{}, ErrEmptyContent
	}
	req.Content = TruncateString(req.Content, MaxContentBytes)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	result, err := s.provider.Analyze(ctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrInferenceTimeout) {
			return models.AnalysisResult{}, fmt.Errorf("%w: %v", ErrInferenceTimeout, err)
		}
		return models.AnalysisResult{}, err
	}

	if result.AnalysisID == "" {
		result.AnalysisID = uuid.NewString()
	}
	result.RiskScore = max(0, min(100, result.RiskScore))
	if result.Usage != nil && result.Usage.Model == "" {
		result.Usage.Model = s.provider.Name()
	}
	return result, nil
}

var _ models.Analyzer = (*Service)(nil)
