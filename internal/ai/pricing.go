package ai

import "github.com/kiranshivaraju/fineprint/internal/config"

// Cost converts token counts into dollars using per-million-token prices.
func Cost(p config.PricingConfig, inputTokens, outputTokens int64) float64 {
	return float64(inputTokens)/1e6*p.InputPerMTok + float64(outputTokens)/1e6*p.OutputPerMTok
}
