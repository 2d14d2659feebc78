package config_test

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/fyrsmithlabs/resolvd/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "flat", cfg.VectorStore.Provider)
	assert.Equal(t, "text-embedding-3-small", cfg.Embeddings.Model)
	assert.Equal(t, 1536, cfg.Embeddings.Dimensions)
	assert.Equal(t, "localhost", cfg.VectorStore.Qdrant.Host)
	assert.Equal(t, 6334, cfg.VectorStore.Qdrant.Port)
	assert.Equal(t, "resolvd_tickets", cfg.VectorStore.Qdrant.Collection)
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
logging:
  level: debug
  format: console
vectorstore:
  provider: qdrant
  qdrant:
    host: qdrant.internal
    port: 7443
    use_tls: true
    collection: support_tickets
embeddings:
  dimensions: 384
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, "qdrant", cfg.VectorStore.Provider)
	assert.Equal(t, "qdrant.internal", cfg.VectorStore.Qdrant.Host)
	assert.Equal(t, 7443, cfg.VectorStore.Qdrant.Port)
	assert.True(t, cfg.VectorStore.Qdrant.UseTLS)
	assert.Equal(t, "support_tickets", cfg.VectorStore.Qdrant.Collection)
	assert.Equal(t, 384, cfg.Embeddings.Dimensions)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0o600))

	t.Setenv("RESOLVD_LOGGING_LEVEL", "warn")
	t.Setenv("RESOLVD_GITHUB_TOKEN", "ghp_secret")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "ghp_secret", cfg.GitHub.Token.Value())
}

func TestLoad_InvalidProvider(t *testing.T) {
	t.Setenv("RESOLVD_VECTORSTORE_PROVIDER", "pinecone")

	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestSecret_Redaction(t *testing.T) {
	s := config.Secret("super-secret")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.Equal(t, "Secret([REDACTED])", fmt.Sprintf("%#v", s))
	assert.Equal(t, "super-secret", s.Value())
	assert.True(t, s.IsSet())

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `"[REDACTED]"`, string(data))

	empty := config.Secret("")
	assert.Equal(t, "", empty.String())
	assert.False(t, empty.IsSet())
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *config.Config {
		return &config.Config{
			Logging:    config.LoggingConfig{Level: "info", Format: "json"},
			Embeddings: config.EmbeddingsConfig{Dimensions: 1536},
			VectorStore: config.VectorStoreConfig{
				Provider: "flat",
				Flat:     config.FlatConfig{Path: "/tmp/index.json"},
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr bool
	}{
		{name: "valid flat", mutate: func(c *config.Config) {}, wantErr: false},
		{
			name: "valid qdrant",
			mutate: func(c *config.Config) {
				c.VectorStore.Provider = "qdrant"
				c.VectorStore.Qdrant = config.QdrantConfig{Host: "localhost", Port: 6334, Collection: "tickets"}
			},
			wantErr: false,
		},
		{
			name:    "bad logging format",
			mutate:  func(c *config.Config) { c.Logging.Format = "xml" },
			wantErr: true,
		},
		{
			name:    "zero dimensions",
			mutate:  func(c *config.Config) { c.Embeddings.Dimensions = 0 },
			wantErr: true,
		},
		{
			name:    "flat without path",
			mutate:  func(c *config.Config) { c.VectorStore.Flat.Path = "" },
			wantErr: true,
		},
		{
			name: "qdrant without collection",
			mutate: func(c *config.Config) {
				c.VectorStore.Provider = "qdrant"
				c.VectorStore.Qdrant = config.QdrantConfig{Host: "localhost", Port: 6334}
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, config.ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
