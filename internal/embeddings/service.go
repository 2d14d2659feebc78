// Package embeddings provides embedding generation via langchaingo.
//
// It wraps langchaingo's OpenAI-compatible embedding client so the rest
// of resolvd only sees the narrow Embedder contract. Both OpenAI and
// self-hosted OpenAI-compatible endpoints (TEI, vLLM) work through the
// BaseURL setting.
//
// Example usage:
//
//	svc, err := embeddings.NewService(embeddings.Config{
//	    BaseURL:    "https://api.openai.com/v1",
//	    Model:      "text-embedding-3-small",
//	    APIKey:     os.Getenv("OPENAI_API_KEY"),
//	    Dimensions: 1536,
//	})
//	vec, err := svc.Embed(ctx, "pods stuck in pending")
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"time"

	lcembeddings "github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure.
	// Callers treat this as the provider being unavailable; indexing of
	// the affected ticket stops rather than inserting a partial entry.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Config holds configuration for the embedding service.
type Config struct {
	// BaseURL is the OpenAI-compatible API base URL.
	BaseURL string

	// Model is the embedding model to use.
	Model string

	// APIKey authenticates against the API.
	APIKey string

	// Dimensions is the expected vector length. Every returned vector is
	// checked against it; the whole index shares one dimensionality.
	Dimensions int
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
	if c.Dimensions <= 0 {
		return fmt.Errorf("%w: dimensions must be positive", ErrInvalidConfig)
	}
	return nil
}

// Service generates embeddings through a langchaingo embedder.
type Service struct {
	embedder lcembeddings.Embedder
	config   Config
	metrics  *Metrics
}

// NewService creates a new embedding service with the given configuration.
//
// The underlying client is constructed eagerly so credential problems
// surface at startup, not on first use.
func NewService(config Config, logger *zap.Logger) (*Service, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	llm, err := openai.New(
		openai.WithToken(config.APIKey),
		openai.WithBaseURL(config.BaseURL),
		openai.WithEmbeddingModel(config.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}

	embedder, err := lcembeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	return &Service{
		embedder: embedder,
		config:   config,
		metrics:  NewMetrics(logger),
	}, nil
}

// Embed generates an embedding vector for a single text.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, ErrEmptyInput)
	}

	start := time.Now()
	vector, err := s.embedder.EmbedQuery(ctx, text)
	s.metrics.RecordEmbed(ctx, s.config.Model, "embed", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	if err := s.checkDimension(vector); err != nil {
		return nil, err
	}
	return vector, nil
}

// EmbedBatch generates embeddings for multiple texts.
//
// Each text's embedding is independent; there is no batch atomicity
// guarantee beyond what the underlying API provides.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, ErrEmptyInput)
	}
	for _, text := range texts {
		if text == "" {
			return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, ErrEmptyInput)
		}
	}

	start := time.Now()
	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	s.metrics.RecordBatch(ctx, s.config.Model, len(texts), time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	for _, vector := range vectors {
		if err := s.checkDimension(vector); err != nil {
			return nil, err
		}
	}
	return vectors, nil
}

// Dimension returns the configured embedding dimensionality.
func (s *Service) Dimension() int {
	return s.config.Dimensions
}

func (s *Service) checkDimension(vector []float32) error {
	if len(vector) != s.config.Dimensions {
		return fmt.Errorf("%w: provider returned %d dimensions, expected %d",
			ErrEmbeddingFailed, len(vector), s.config.Dimensions)
	}
	return nil
}
