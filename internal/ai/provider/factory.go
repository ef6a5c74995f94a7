// Package provider builds the configured analyzer.
package provider

import (
	"fmt"

	"github.com/kiranshivaraju/fineprint/internal/ai"
	"github.com/kiranshivaraju/fineprint/internal/ai/anthropic"
	"github.com/kiranshivaraju/fineprint/internal/ai/mock"
	"github.com/kiranshivaraju/fineprint/internal/ai/ollama"
	"github.com/kiranshivaraju/fineprint/internal/config"
	"github.com/kiranshivaraju/fineprint/pkg/models"
)

// New constructs the provider named by cfg and wraps it in an ai.Service.
// Called once at server startup.
func New(cfg config.AIConfig) (models.Analyzer, error) {
	var p models.Analyzer
	switch cfg.Provider {
	case "ollama":
		p = ollama.NewProvider(cfg.Ollama, cfg.Pricing)
	case "anthropic":
		p = anthropic.NewProvider(cfg.Anthropic, cfg.Pricing)
	case "mock":
		p = mock.NewMockProvider()
	default:
		return nil, fmt.Errorf("unknown AI provider %q: must be one of ollama, anthropic, mock", cfg.Provider)
	}
	return ai.NewService(p, cfg.InferenceTimeout), nil
}
