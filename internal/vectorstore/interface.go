// Package vectorstore owns the ticket similarity index.
//
// Two interchangeable backends implement the Store interface: FlatStore,
// an in-process index with a JSON snapshot on disk, and QdrantStore,
// which delegates storage and approximate nearest-neighbor search to a
// Qdrant server. The backend is selected by explicit configuration at
// construction time, never by runtime type inspection.
package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/resolvd/internal/ticket"
)

// Sentinel errors for vector store operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyQuery is returned when search is called with empty query text.
	ErrEmptyQuery = errors.New("empty query")

	// ErrEmptyBatch is returned when an upsert is called with no tickets.
	ErrEmptyBatch = errors.New("empty or nil tickets")

	// ErrDimensionMismatch is returned when a vector's length disagrees
	// with the store's configured dimensionality. Fatal for the upsert.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrIndexNotInitialized is returned when the remote store is queried
	// before its schema exists.
	ErrIndexNotInitialized = errors.New("index not initialized")

	// ErrPersistenceFailed indicates the local snapshot could not be
	// written. The in-memory index stays intact.
	ErrPersistenceFailed = errors.New("index persistence failed")

	// ErrUploadFailed indicates a remote batch upload failed. Batches
	// committed before the failure are not rolled back.
	ErrUploadFailed = errors.New("remote upload failed")

	// ErrConnectionFailed indicates the remote store is unreachable.
	ErrConnectionFailed = errors.New("failed to connect to Qdrant")
)

// UploadError reports which batch of a chunked upload failed so the
// caller can resume. Re-running the whole upload is safe: points are
// keyed by ticket number, so committed batches converge on retry.
type UploadError struct {
	// Batch is the zero-based index of the failing batch.
	Batch int
	Err   error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("uploading batch %d: %v", e.Batch, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrUploadFailed) match.
func (e *UploadError) Is(target error) bool { return target == ErrUploadFailed }

// Embedder generates vector embeddings from text.
//
// Embeddings are dense numerical representations that capture semantic
// meaning. Every vector in one store shares the dimensionality reported
// by Dimension.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, one per input.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding dimensionality.
	Dimension() int
}

// UnspecifiedSupportLevel is the placeholder used in stats when a
// ticket has no support level.
const UnspecifiedSupportLevel = "unspecified"

// Store is the contract shared by both index backends.
type Store interface {
	// Upsert indexes a single ticket. Re-indexing the same ticket number
	// replaces the previous entry wholesale.
	Upsert(ctx context.Context, t *ticket.Ticket) error

	// UpsertBatch indexes a batch of tickets. The first embedding failure
	// aborts the batch; tickets already committed stay committed.
	UpsertBatch(ctx context.Context, tickets []*ticket.Ticket) error

	// Search returns up to k entries most similar to the query text,
	// ordered by descending similarity score.
	Search(ctx context.Context, query string, k int, opts ...SearchOption) ([]SearchResult, error)

	// Stats returns counts of indexed entries grouped by state, category
	// and support level.
	Stats(ctx context.Context) (*Stats, error)

	// Close releases backend resources.
	Close() error
}

// searchOptions collects per-query settings.
type searchOptions struct {
	category         ticket.Category
	useContentVector bool
}

// SearchOption configures a single search call.
type SearchOption func(*searchOptions)

// WithCategory restricts results to a single category via an equality
// filter applied before ranking.
func WithCategory(c ticket.Category) SearchOption {
	return func(o *searchOptions) { o.category = c }
}

// WithContentVector searches against the raw content vector instead of
// the intent vector. Only meaningful for the remote store; the local
// store has no intent vector and always searches content.
func WithContentVector() SearchOption {
	return func(o *searchOptions) { o.useContentVector = true }
}

func applySearchOptions(opts []SearchOption) searchOptions {
	var o searchOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
