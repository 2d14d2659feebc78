// Package config provides configuration loading for resolvd.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidConfig indicates a configuration that cannot be used.
// Configuration errors are fatal at startup and not retryable.
var ErrInvalidConfig = errors.New("invalid configuration")

// Secret wraps strings that should be redacted in logs and serialization.
type Secret string

// String implements fmt.Stringer. Always returns redacted value.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

// GoString implements fmt.GoStringer for %#v formatting.
func (s Secret) GoString() string {
	return "Secret([REDACTED])"
}

// Value returns the actual secret value. Use sparingly.
func (s Secret) Value() string {
	return string(s)
}

// IsSet returns true if the secret has a non-empty value.
func (s Secret) IsSet() bool {
	return s != ""
}

// MarshalJSON implements json.Marshaler. Always returns redacted value.
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("[REDACTED]")
}

// MarshalText implements encoding.TextMarshaler. Always returns redacted value.
func (s Secret) MarshalText() ([]byte, error) {
	if s == "" {
		return []byte(""), nil
	}
	return []byte("[REDACTED]"), nil
}

// Config is the root configuration for resolvd.
type Config struct {
	Logging     LoggingConfig     `koanf:"logging"`
	GitHub      GitHubConfig      `koanf:"github"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	Completion  CompletionConfig  `koanf:"completion"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `koanf:"level"`
	// Format is "json" or "console".
	Format string `koanf:"format"`
}

// GitHubConfig configures the issue source.
type GitHubConfig struct {
	// Token is the GitHub access token.
	Token Secret `koanf:"token"`
	// Repo is "owner/name".
	Repo string `koanf:"repo"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// BaseURL is the OpenAI-compatible API base URL.
	BaseURL string `koanf:"base_url"`
	// Model is the embedding model name.
	Model string `koanf:"model"`
	// APIKey authenticates against the embedding API.
	APIKey Secret `koanf:"api_key"`
	// Dimensions is the embedding dimensionality shared by the whole index.
	Dimensions int `koanf:"dimensions"`
}

// CompletionConfig configures the completion provider used for
// summaries and recommendation prose.
type CompletionConfig struct {
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
	APIKey  Secret `koanf:"api_key"`
}

// VectorStoreConfig selects and configures the vector store backend.
type VectorStoreConfig struct {
	// Provider is "flat" (local, default) or "qdrant" (remote).
	Provider string `koanf:"provider"`

	Flat   FlatConfig   `koanf:"flat"`
	Qdrant QdrantConfig `koanf:"qdrant"`
}

// FlatConfig configures the local flat store.
type FlatConfig struct {
	// Path is the JSON snapshot file for the index.
	Path string `koanf:"path"`
}

// QdrantConfig configures the remote Qdrant store.
type QdrantConfig struct {
	Host string `koanf:"host"`
	// Port is the gRPC port (6334), not the HTTP port.
	Port       int    `koanf:"port"`
	UseTLS     bool   `koanf:"use_tls"`
	Collection string `koanf:"collection"`
}

// Validate checks the configuration for startup-fatal problems.
func (c *Config) Validate() error {
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("%w: logging format must be 'json' or 'console', got %q", ErrInvalidConfig, c.Logging.Format)
	}

	if c.Embeddings.Dimensions <= 0 {
		return fmt.Errorf("%w: embeddings dimensions must be positive", ErrInvalidConfig)
	}

	switch c.VectorStore.Provider {
	case "flat":
		if c.VectorStore.Flat.Path == "" {
			return fmt.Errorf("%w: flat store path required", ErrInvalidConfig)
		}
	case "qdrant":
		if c.VectorStore.Qdrant.Host == "" {
			return fmt.Errorf("%w: qdrant host required", ErrInvalidConfig)
		}
		if c.VectorStore.Qdrant.Port <= 0 || c.VectorStore.Qdrant.Port > 65535 {
			return fmt.Errorf("%w: invalid qdrant port: %d", ErrInvalidConfig, c.VectorStore.Qdrant.Port)
		}
		if c.VectorStore.Qdrant.Collection == "" {
			return fmt.Errorf("%w: qdrant collection required", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unsupported vectorstore provider %q (supported: flat, qdrant)", ErrInvalidConfig, c.VectorStore.Provider)
	}

	return nil
}
