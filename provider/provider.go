package provider

import (
	"context"
	"fmt"

	"github.com/mohammad-safakhou/lifeos/config"
	"github.com/mohammad-safakhou/lifeos/internal/inference"
	"github.com/mohammad-safakhou/lifeos/provider/gemini"
	openai_provider "github.com/mohammad-safakhou/lifeos/provider/openai"
)

// Client represents different LLM providers
type Client string

const (
	OpenAI Client = "openai"
	Gemini Client = "gemini"
)

func models(cfg config.InferenceConfig) map[inference.Purpose]string {
	return map[inference.Purpose]string{
		inference.PurposePerception:     cfg.Models.Perception,
		inference.PurposeClassification: cfg.Models.Classification,
		inference.PurposeRouting:        cfg.Models.Routing,
		inference.PurposeEnrichment:     cfg.Models.Enrichment,
	}
}

// NewProvider creates the configured model provider.
func NewProvider(ctx context.Context, cfg config.InferenceConfig) (inference.Service, error) {
	switch Client(cfg.Provider) {
	case OpenAI:
		return openai_provider.NewOpenAIClient(openai_provider.Options{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Models:  models(cfg),
			Timeout: cfg.Timeout,
		})
	case Gemini:
		return gemini.New(ctx, gemini.Options{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Models:  models(cfg),
			Timeout: cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", cfg.Provider)
	}
}
