package llm

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAILLM generates completions through the OpenAI chat API, or any
// API-compatible endpoint via base_url.
type OpenAILLM struct {
	client openai.Client
	model  string
}

// NewOpenAILLM creates an OpenAI generation service.
func NewOpenAILLM(apiKey, model, baseURL string) (*OpenAILLM, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &OpenAILLM{
		client: openai.NewClient(opts...),
		model:  model,
	}, nil
}

func (s *OpenAILLM) buildParams(messages []Message, opts CompletionOptions) openai.ChatCompletionNewParams {
	converted := make([]openai.ChatCompletionMessageParamUnion, len(messages))
	for i, m := range messages {
		switch m.Role {
		case "system":
			converted[i] = openai.SystemMessage(m.Content)
		case "assistant":
			converted[i] = openai.AssistantMessage(m.Content)
		default:
			converted[i] = openai.UserMessage(m.Content)
		}
	}

	return openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(s.model),
		Messages:    converted,
		Temperature: openai.Float(opts.Temperature),
		MaxTokens:   openai.Int(int64(opts.MaxTokens)),
	}
}

// Complete generates a completion for the given messages.
func (s *OpenAILLM) Complete(ctx context.Context, messages []Message, opts CompletionOptions) (string, error) {
	log.Debug("Requesting completion from OpenAI", "model", s.model)

	resp, err := s.client.Chat.Completions.New(ctx, s.buildParams(messages, opts))
	if err != nil {
		return "", fmt.Errorf("failed to create completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no completion returned")
	}

	return resp.Choices[0].Message.Content, nil
}

// CompleteStream generates a streaming completion.
func (s *OpenAILLM) CompleteStream(ctx context.Context, messages []Message, opts CompletionOptions) (<-chan string, <-chan error) {
	contentCh := make(chan string, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(contentCh)
		defer close(errCh)

		stream := s.client.Chat.Completions.NewStreaming(ctx, s.buildParams(messages, opts))
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
				contentCh <- chunk.Choices[0].Delta.Content
			}
		}
		if err := stream.Err(); err != nil {
			errCh <- err
		}
	}()

	return contentCh, errCh
}

// Provider returns the backend identifier.
func (s *OpenAILLM) Provider() Provider {
	return ProviderOpenAI
}

// ModelName returns the model identifier.
func (s *OpenAILLM) ModelName() string {
	return s.model
}
