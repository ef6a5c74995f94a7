package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/kiranshivaraju/fineprint/internal/ai"
	"github.com/kiranshivaraju/fineprint/internal/config"
	"github.com/kiranshivaraju/fineprint/pkg/models"
)

// Provider implements models.Analyzer using the Anthropic Messages API.
type Provider struct {
	client  sdk.Client
	cfg     config.AnthropicConfig
	pricing config.PricingConfig
}

// NewProvider creates a Provider. Extra request options (base URL, HTTP client)
// are passed through to the SDK client.
func NewProvider(cfg config.AnthropicConfig, pricing config.PricingConfig, opts ...option.RequestOption) *Provider {
	opts = append([]option.RequestOption{option.WithAPIKey(cfg.APIKey)}, opts...)
	return &Provider{
		client:  sdk.NewClient(opts...),
		cfg:     cfg,
		pricing: pricing,
	}
}

func (p *Provider) Name() string { return "anthropic" }

func (p *Provider) Analyze(ctx context.Context, req models.AnalysisRequest) (models.AnalysisResult, error) {
	maxTokens := p.cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	msg, err := p.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(p.cfg.Model),
		MaxTokens: maxTokens,
		System:    []sdk.TextBlockParam{{Text: ai.SystemPrompt}},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(ai.BuildPrompt(req))),
		},
	})
	if err != nil {
		return models.AnalysisResult{}, classifyError(err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	result, err := ai.ParseResult(text.String())
	if err != nil {
		return models.AnalysisResult{}, err
	}
	result.Usage = &models.Usage{
		Model:        string(msg.Model),
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
		Cost:         ai.Cost(p.pricing, msg.Usage.InputTokens, msg.Usage.OutputTokens),
	}
	return result, nil
}

func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ai.ErrInferenceTimeout, err)
	}
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode < 500 && apiErr.StatusCode != 429 {
		return fmt.Errorf("anthropic request rejected: %w", err)
	}
	return fmt.Errorf("%w: %v", ai.ErrProviderUnavailable, err)
}

var _ models.Analyzer = (*Provider)(nil)
