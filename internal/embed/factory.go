package embed

import (
	"context"
	"fmt"
	"strings"

	"github.com/casheiro/synapstor-go/internal/config"
	synerrors "github.com/casheiro/synapstor-go/internal/errors"
)

// Provider names accepted in configuration.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderStatic = "static"
)

// registryModel maps the configured model onto a provider registry.
// Hub-style names such as "sentence-transformers/all-MiniLM-L6-v2" exist
// in neither the Ollama nor the OpenAI registry, so those select the
// provider default instead of failing resolution.
func registryModel(model, fallback string) string {
	if model == "" || strings.Contains(model, "/") {
		return fallback
	}
	return model
}

// New builds the provider named by the configuration, wrapped in an LRU
// cache unless caching is disabled.
func New(ctx context.Context, cfg config.EmbeddingsConfig) (Provider, error) {
	var (
		provider Provider
		err      error
	)

	switch strings.ToLower(cfg.Provider) {
	case ProviderOllama, "":
		provider, err = NewOllamaProvider(ctx, OllamaConfig{
			Host:       cfg.OllamaHost,
			Model:      registryModel(cfg.Model, DefaultOllamaModel),
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
		})
	case ProviderOpenAI:
		provider, err = NewOpenAIProvider(ctx, OpenAIConfig{
			BaseURL:    cfg.OpenAIBaseURL,
			APIKey:     cfg.OpenAIAPIKey,
			Model:      registryModel(cfg.Model, DefaultOpenAIModel),
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
		})
	case ProviderStatic:
		provider = NewStaticProvider(cfg.Dimensions)
	default:
		return nil, synerrors.ConfigError(
			fmt.Sprintf("unknown embedding provider %q", cfg.Provider), nil).
			WithSuggestion(`set embeddings.provider to "ollama", "openai" or "static"`)
	}
	if err != nil {
		return nil, err
	}

	if cfg.CacheSize > 0 {
		cached, err := NewCached(provider, cfg.CacheSize)
		if err != nil {
			_ = provider.Close()
			return nil, err
		}
		provider = cached
	}
	return provider, nil
}
