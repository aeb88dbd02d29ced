package llm

import (
	"context"

	"github.com/sandevgo/edubot/internal/core"
	"github.com/sandevgo/edubot/pkg/log"
)

var (
	_ core.CompletionProvider = (*OpenAI)(nil)
	_ core.ImageDescriber     = (*OpenAI)(nil)
)

// NewProvider creates the completion provider and image describer from configuration.
func NewProvider(ctx context.Context, cfg core.ProviderConfig) *OpenAI {
	baseURL := cfg.GetOpenAIBaseURL()
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	log.FromCtx(ctx).Info().
		Str("base_url", baseURL).
		Str("model", cfg.GetModel()).
		Str("vision_model", cfg.GetVisionModel()).
		Msg("starting llm provider")

	return NewOpenAI(
		cfg.GetOpenAIAPIKey(),
		baseURL,
		cfg.GetModel(),
		cfg.GetVisionModel(),
		cfg.GetTemperature(),
	)
}
