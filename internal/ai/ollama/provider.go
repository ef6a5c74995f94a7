package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/fineprint/internal/ai"
	"github.com/kiranshivaraju/fineprint/internal/config"
	"github.com/kiranshivaraju/fineprint/pkg/models"
)

// Provider implements models.Analyzer using Ollama's chat API.
type Provider struct {
	cfg     config.OllamaConfig
	pricing config.PricingConfig
	client  *http.Client
}

// NewProvider creates a Provider. The caller's context bounds each request;
// ai.Service applies the inference timeout.
func NewProvider(cfg config.OllamaConfig, pricing config.PricingConfig) *Provider {
	return &Provider{
		cfg:     cfg,
		pricing: pricing,
		client:  &http.Client{},
	}
}

func (p *Provider) Name() string { return "ollama" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Format   string        `json:"format"`
	Stream   bool          `json:"stream"`
}

type chatResponse struct {
	Model           string      `json:"model"`
	Message         chatMessage `json:"message"`
	PromptEvalCount int64       `json:"prompt_eval_count"`
	EvalCount       int64       `json:"eval_count"`
}

func (p *Provider) Analyze(ctx context.Context, req models.AnalysisRequest) (models.AnalysisResult, error) {
	body, err := json.Marshal(chatRequest{
		Model: p.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: ai.SystemPrompt},
			{Role: "user", Content: ai.BuildPrompt(req)},
		},
		Format: "json",
		Stream: false,
	})
	if err != nil {
		return models.AnalysisResult{}, fmt.Errorf("encoding request: %w", err)
	}

	u := strings.TrimRight(p.cfg.BaseURL, "/") + "/api/chat"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return models.AnalysisResult{}, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return models.AnalysisResult{}, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.AnalysisResult{}, fmt.Errorf("%w: status %d", ai.ErrProviderUnavailable, resp.StatusCode)
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return models.AnalysisResult{}, fmt.Errorf("%w: decoding ollama response: %v", ai.ErrInvalidResponse, err)
	}

	result, err := ai.ParseResult(chatResp.Message.Content)
	if err != nil {
		return models.AnalysisResult{}, err
	}

	model := chatResp.Model
	if model == "" {
		model = p.cfg.Model
	}
	result.Usage = &models.Usage{
		Model:        model,
		InputTokens:  chatResp.PromptEvalCount,
		OutputTokens: chatResp.EvalCount,
		Cost:         ai.Cost(p.pricing, chatResp.PromptEvalCount, chatResp.EvalCount),
	}
	return result, nil
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ai.ErrInferenceTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ai.ErrInferenceTimeout, err)
	}
	return fmt.Errorf("%w: %v", ai.ErrProviderUnavailable, err)
}

var _ models.Analyzer = (*Provider)(nil)
