package mock_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kiranshivaraju/fineprint/internal/ai"
	"github.com/kiranshivaraju/fineprint/internal/ai/mock"
	"github.com/kiranshivaraju/fineprint/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRequest(content string) models.AnalysisRequest {
	return models.AnalysisRequest{
		URL:      "https://example.com/terms",
		Content:  content,
		UserID:   "user-1",
		UserTier: models.TierFree,
	}
}

// --- NewMockProvider ---

func TestNewMockProvider_Name(t *testing.T) {
	p := mock.NewMockProvider()
	assert.Equal(t, "mock", p.Name())
}

func TestNewMockProvider_FlagsClauses(t *testing.T) {
	p := mock.NewMockProvider()
	result, err := p.Analyze(context.Background(), sampleRequest(
		"Disputes go to Binding Arbitration. We may sell your data to partners."))

	require.NoError(t, err)
	require.Len(t, result.Findings, 2)
	assert.Equal(t, "dispute_resolution", result.Findings[0].Category)
	assert.Equal(t, "critical", result.Findings[1].Severity)
	assert.Equal(t, 60, result.RiskScore)
	assert.NotEmpty(t, result.AnalysisID)
	require.NotNil(t, result.Usage)
	assert.Equal(t, "mock-v1", result.Usage.Model)
	assert.InDelta(t, 0.001, result.Usage.Cost, 1e-9)
}

func TestNewMockProvider_CleanDocument(t *testing.T) {
	p := mock.NewMockProvider()
	result, err := p.Analyze(context.Background(), sampleRequest("You own your content."))

	require.NoError(t, err)
	assert.Empty(t, result.Findings)
	assert.Equal(t, 0, result.RiskScore)
}

func TestNewMockProvider_ScoreCapped(t *testing.T) {
	p := mock.NewMockProvider()
	result, err := p.Analyze(context.Background(), sampleRequest(
		"binding arbitration, class action, sell your data, perpetual license, third parties"))

	require.NoError(t, err)
	assert.Equal(t, 100, result.RiskScore)
}

// --- NewFailingProvider ---

func TestNewFailingProvider_Analyze(t *testing.T) {
	p := mock.NewFailingProvider(ai.ErrProviderUnavailable)
	assert.Equal(t, "mock-failing", p.Name())

	_, err := p.Analyze(context.Background(), sampleRequest("x"))
	assert.ErrorIs(t, err, ai.ErrProviderUnavailable)
}

func TestNewFailingProvider_CustomError(t *testing.T) {
	customErr := errors.New("custom AI error")
	p := mock.NewFailingProvider(customErr)

	_, err := p.Analyze(context.Background(), sampleRequest("x"))
	assert.ErrorIs(t, err, customErr)
}

// --- NewTimeoutProvider ---

func TestNewTimeoutProvider_Analyze(t *testing.T) {
	p := mock.NewTimeoutProvider()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := p.Analyze(ctx, sampleRequest("x"))
	assert.ErrorIs(t, err, ai.ErrInferenceTimeout)
}

// --- Zero-value MockProvider ---

func TestMockProvider_NilFuncs(t *testing.T) {
	p := &mock.MockProvider{Name_: "bare"}

	result, err := p.Analyze(context.Background(), sampleRequest("x"))
	assert.NoError(t, err)
	assert.Equal(t, models.AnalysisResult{}, result)
}
