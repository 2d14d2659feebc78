// Package completion provides chat completion via langchaingo.
//
// resolvd uses completions for two things: AI summaries attached to
// index entries (intent, actions, solution) and the final recommendation
// prose. Both go through the narrow Completer contract so tests can
// substitute a fake.
package completion

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrCompletionFailed indicates the completion call failed.
	ErrCompletionFailed = errors.New("completion failed")
)

// Completer generates text from a system and user prompt pair.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Config holds configuration for the completion service.
type Config struct {
	// BaseURL is the OpenAI-compatible API base URL.
	BaseURL string

	// Model is the chat model name.
	Model string

	// APIKey authenticates against the API.
	APIKey string

	// Temperature controls sampling randomness. Zero means the
	// provider default.
	Temperature float64

	// MaxTokens bounds the response length. Zero means no explicit bound.
	MaxTokens int
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	if c.APIKey == "" {
		return fmt.Errorf("%w: API key required", ErrInvalidConfig)
	}
	return nil
}

// Service implements Completer on top of a langchaingo chat model.
type Service struct {
	llm    llms.Model
	config Config
}

// NewService creates a completion service. The client is constructed
// eagerly so credential problems surface at startup.
func NewService(config Config) (*Service, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	llm, err := openai.New(
		openai.WithToken(config.APIKey),
		openai.WithBaseURL(config.BaseURL),
		openai.WithModel(config.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}

	return &Service{llm: llm, config: config}, nil
}

// Complete sends a system+user prompt pair and returns the first choice.
func (s *Service) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if userPrompt == "" {
		return "", fmt.Errorf("%w: empty user prompt", ErrCompletionFailed)
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}

	opts := []llms.CallOption{}
	if s.config.Temperature > 0 {
		opts = append(opts, llms.WithTemperature(s.config.Temperature))
	}
	if s.config.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(s.config.MaxTokens))
	}

	resp, err := s.llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCompletionFailed, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", ErrCompletionFailed)
	}

	return resp.Choices[0].Content, nil
}

var _ Completer = (*Service)(nil)
