package vectorstore

import (
	"fmt"

	"github.com/fyrsmithlabs/resolvd/internal/completion"
	"github.com/fyrsmithlabs/resolvd/internal/config"
	"go.uber.org/zap"
)

// New creates a Store based on the configuration.
//
// The provider field selects the implementation:
//   - "flat" (default): local in-process index with a JSON snapshot
//   - "qdrant": remote Qdrant server over gRPC
//
// Both satisfy the same Store interface; callers never inspect the
// concrete type. The completer is only used by the qdrant store for AI
// summaries; the flat store ignores it.
func New(cfg *config.Config, embedder Embedder, completer completion.Completer, logger *zap.Logger) (Store, error) {
	switch cfg.VectorStore.Provider {
	case "flat", "":
		return NewFlatStore(FlatConfig{
			Path:       cfg.VectorStore.Flat.Path,
			Dimensions: cfg.Embeddings.Dimensions,
		}, embedder, logger)

	case "qdrant":
		return NewQdrantStore(QdrantConfig{
			Host:           cfg.VectorStore.Qdrant.Host,
			Port:           cfg.VectorStore.Qdrant.Port,
			UseTLS:         cfg.VectorStore.Qdrant.UseTLS,
			CollectionName: cfg.VectorStore.Qdrant.Collection,
			VectorSize:     uint64(cfg.Embeddings.Dimensions),
		}, embedder, completer, logger)

	default:
		return nil, fmt.Errorf("%w: unsupported vectorstore provider %q (supported: flat, qdrant)",
			ErrInvalidConfig, cfg.VectorStore.Provider)
	}
}
