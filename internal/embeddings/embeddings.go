// Package embeddings turns text into vectors for semantic retrieval.
package embeddings

import (
	"context"
	"fmt"

	"github.com/dlawler/docchat/internal/config"
)

// Provider identifies an embedding backend.
type Provider string

const (
	ProviderOllama Provider = "ollama"
	ProviderOpenAI Provider = "openai"
)

// Service embeds documents and queries. Implementations may apply different
// task prefixes to the two, so callers must use EmbedQuery at search time.
type Service interface {
	// Embed generates an embedding for document text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedQuery generates an embedding for a search query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple documents. The result is
	// positionally aligned with the input.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding width for this model.
	Dimensions() int

	// Provider returns the backend identifier.
	Provider() Provider

	// ModelName returns the model identifier.
	ModelName() string
}

// Dimensions of well-known models. Unknown models fall back to a provider
// default and are corrected from the first response.
var modelDimensions = map[string]int{
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"all-minilm":             384,
	"snowflake-arctic-embed": 1024,

	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// KnownDimensions returns the documented width for a model, or 0 if unknown.
func KnownDimensions(model string) int {
	return modelDimensions[model]
}

// NewService builds the embedding service selected by the configuration.
func NewService(cfg *config.Config) (Service, error) {
	switch Provider(cfg.Embeddings.Provider) {
	case ProviderOllama:
		return NewOllamaService(cfg.Embeddings.Ollama.URL, cfg.Embeddings.Ollama.Model), nil
	case ProviderOpenAI:
		return NewOpenAIService(
			cfg.Embeddings.OpenAI.APIKey,
			cfg.Embeddings.OpenAI.Model,
			cfg.Embeddings.OpenAI.BaseURL,
			cfg.Embeddings.OpenAI.Dimensions,
		)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Embeddings.Provider)
	}
}
