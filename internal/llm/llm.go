// Package llm provides text generation for grounded question answering.
package llm

import (
	"context"
	"fmt"

	"github.com/dlawler/docchat/internal/config"
)

// Provider identifies a generation backend.
type Provider string

const (
	ProviderOllama    Provider = "ollama"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// Message is one chat message.
type Message struct {
	Role    string `json:"role"` // "system", "user", or "assistant"
	Content string `json:"content"`
}

// CompletionOptions configures a completion request.
type CompletionOptions struct {
	Temperature float64
	MaxTokens   int
}

// DefaultCompletionOptions returns sensible defaults.
func DefaultCompletionOptions() CompletionOptions {
	return CompletionOptions{
		Temperature: 0.7,
		MaxTokens:   config.DefaultMaxTokens,
	}
}

// Service generates completions. CompleteStream delivers content deltas on
// the first channel and closes both when the response ends; at most one
// error is sent on the second.
type Service interface {
	Complete(ctx context.Context, messages []Message, opts CompletionOptions) (string, error)
	CompleteStream(ctx context.Context, messages []Message, opts CompletionOptions) (<-chan string, <-chan error)
	Provider() Provider
	ModelName() string
}

// NewService builds the generation service selected by the configuration.
func NewService(cfg *config.Config) (Service, error) {
	switch Provider(cfg.LLM.Provider) {
	case ProviderOllama:
		return NewOllamaLLM(cfg.LLM.Ollama.URL, cfg.LLM.Ollama.Model), nil
	case ProviderOpenAI:
		return NewOpenAILLM(cfg.LLM.OpenAI.APIKey, cfg.LLM.OpenAI.Model, cfg.LLM.OpenAI.BaseURL)
	case ProviderAnthropic:
		return NewAnthropicLLM(cfg.LLM.Anthropic.APIKey, cfg.LLM.Anthropic.Model)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLM.Provider)
	}
}
