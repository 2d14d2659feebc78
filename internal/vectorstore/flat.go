package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fyrsmithlabs/resolvd/internal/ticket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// embedConcurrency bounds parallel per-ticket embedding calls during a
// batch upsert. The calls are independent; insertion stays single-writer.
const embedConcurrency = 8

// FlatConfig holds configuration for the local flat store.
type FlatConfig struct {
	// Path is the JSON snapshot file holding the serialized index.
	Path string

	// Dimensions is the embedding dimensionality for the whole index.
	// Must match the embedder's output.
	Dimensions int
}

// Validate validates the configuration.
func (c FlatConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("%w: snapshot path required", ErrInvalidConfig)
	}
	if c.Dimensions <= 0 {
		return fmt.Errorf("%w: dimensions must be positive", ErrInvalidConfig)
	}
	return nil
}

// FlatStore is the local Store implementation: a single sequence of
// index entries scanned linearly with cosine similarity.
//
// The linear scan targets corpora in the thousands; it is not a
// large-scale nearest-neighbor index. Ties are broken by insertion
// order, earlier entry first, and that ordering is deterministic.
//
// The full index is persisted as one JSON snapshot after every
// successful batch upsert and restored on construction. A missing or
// unreadable snapshot yields an empty store, never an error.
type FlatStore struct {
	config   FlatConfig
	embedder Embedder
	logger   *zap.Logger

	// mu guards entries and the snapshot write. Readers see either the
	// pre-write or post-write state, never a partial one.
	mu      sync.RWMutex
	entries []IndexEntry
}

// flatSnapshot is the on-disk format of the store.
type flatSnapshot struct {
	Dimensions int          `json:"dimensions"`
	Entries    []IndexEntry `json:"entries"`
}

// NewFlatStore creates a FlatStore and restores the snapshot at
// config.Path when one exists. A corrupt snapshot is logged and treated
// as an empty store.
func NewFlatStore(config FlatConfig, embedder Embedder, logger *zap.Logger) (*FlatStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if embedder.Dimension() != config.Dimensions {
		return nil, fmt.Errorf("%w: embedder produces %d dimensions, store configured for %d",
			ErrDimensionMismatch, embedder.Dimension(), config.Dimensions)
	}

	s := &FlatStore{
		config:   config,
		embedder: embedder,
		logger:   logger,
	}
	s.load()
	return s, nil
}

// load restores the snapshot. Any failure leaves the store empty.
func (s *FlatStore) load() {
	content, err := os.ReadFile(s.config.Path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("reading index snapshot failed, starting empty",
				zap.String("path", s.config.Path), zap.Error(err))
		}
		return
	}

	var snap flatSnapshot
	if err := json.Unmarshal(content, &snap); err != nil {
		s.logger.Warn("parsing index snapshot failed, starting empty",
			zap.String("path", s.config.Path), zap.Error(err))
		return
	}
	if snap.Dimensions != s.config.Dimensions {
		s.logger.Warn("index snapshot dimensionality differs, starting empty",
			zap.Int("snapshot_dimensions", snap.Dimensions),
			zap.Int("configured_dimensions", s.config.Dimensions))
		return
	}

	s.entries = snap.Entries
	s.logger.Info("restored index snapshot",
		zap.String("path", s.config.Path), zap.Int("entries", len(s.entries)))
}

// Upsert indexes a single ticket.
func (s *FlatStore) Upsert(ctx context.Context, t *ticket.Ticket) error {
	return s.UpsertBatch(ctx, []*ticket.Ticket{t})
}

// UpsertBatch indexes a batch of tickets.
//
// Embeddings are generated concurrently but slotted by input index, so
// insertion order equals input order. The first embedding failure
// aborts the whole batch before anything is inserted. After a
// successful insert the full snapshot is persisted; a persistence
// failure keeps the in-memory state and returns ErrPersistenceFailed.
func (s *FlatStore) UpsertBatch(ctx context.Context, tickets []*ticket.Ticket) error {
	if len(tickets) == 0 {
		return ErrEmptyBatch
	}

	entries := make([]IndexEntry, len(tickets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)

	for i, t := range tickets {
		if err := t.Validate(); err != nil {
			return err
		}
		g.Go(func() error {
			derived := ticket.Normalize(t)
			vector, err := s.embedder.Embed(gctx, derived.EmbedText)
			if err != nil {
				return fmt.Errorf("embedding ticket #%d: %w", t.Number, err)
			}
			if len(vector) != s.config.Dimensions {
				return fmt.Errorf("%w: ticket #%d vector has %d dimensions, expected %d",
					ErrDimensionMismatch, t.Number, len(vector), s.config.Dimensions)
			}
			entries[i] = IndexEntry{
				Ticket:        *t,
				ContentVector: vector,
				Keywords:      derived.Keywords,
				Facts:         derived.Facts,
				Complexity:    derived.Complexity,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entry := range entries {
		s.upsertLocked(entry)
	}

	if err := s.persistLocked(); err != nil {
		s.logger.Error("persisting index snapshot failed, continuing in memory",
			zap.String("path", s.config.Path), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}

	s.logger.Info("indexed tickets",
		zap.Int("batch", len(entries)), zap.Int("total", len(s.entries)))
	return nil
}

// upsertLocked replaces the entry with the same ticket number or
// appends a new one. Callers hold the write lock.
func (s *FlatStore) upsertLocked(entry IndexEntry) {
	for i := range s.entries {
		if s.entries[i].Ticket.Number == entry.Ticket.Number {
			s.entries[i] = entry
			return
		}
	}
	s.entries = append(s.entries, entry)
}

// persistLocked writes the snapshot atomically via a temp file rename.
// Callers hold the write lock.
func (s *FlatStore) persistLocked() error {
	snap := flatSnapshot{
		Dimensions: s.config.Dimensions,
		Entries:    s.entries,
	}
	content, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}

	dir := filepath.Dir(s.config.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".index-*.json")
	if err != nil {
		return fmt.Errorf("creating temp snapshot: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, s.config.Path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming snapshot: %w", err)
	}
	return nil
}

// Search embeds the query and scans every stored vector with cosine
// similarity, returning the top-k by descending score. Entries with
// identical scores keep their insertion order.
func (s *FlatStore) Search(ctx context.Context, query string, k int, opts ...SearchOption) ([]SearchResult, error) {
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if k <= 0 {
		k = 5
	}
	o := applySearchOptions(opts)

	queryVector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		entry *IndexEntry
		score float64
	}
	candidates := make([]scored, 0, len(s.entries))
	for i := range s.entries {
		entry := &s.entries[i]
		if o.category != "" && entry.Ticket.Category != o.category {
			continue
		}
		candidates = append(candidates, scored{
			entry: entry,
			score: cosineSimilarity(queryVector, entry.ContentVector),
		})
	}

	// Stable sort preserves insertion order among equal scores.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	if len(candidates) > k {
		candidates = candidates[:k]
	}

	results := make([]SearchResult, len(candidates))
	for i, c := range candidates {
		results[i] = SearchResult{
			Ticket:     c.entry.Ticket,
			Score:      c.score,
			Keywords:   c.entry.Keywords,
			Facts:      c.entry.Facts,
			Complexity: c.entry.Complexity,
		}
	}
	return results, nil
}

// Stats returns counts of indexed entries by state, category and
// support level.
func (s *FlatStore) Stats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := NewStats()
	for i := range s.entries {
		stats.count(&s.entries[i].Ticket)
	}
	return stats, nil
}

// Len returns the number of indexed entries.
func (s *FlatStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close is a no-op for the flat store; the snapshot is written on every
// successful upsert.
func (s *FlatStore) Close() error {
	return nil
}

// cosineSimilarity computes cosine similarity between two vectors.
//
// Returns a value in [-1, 1]; 0 when either vector has zero magnitude
// or the lengths differ.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}

	magA = math.Sqrt(magA)
	magB = math.Sqrt(magB)
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (magA * magB)
}

// Ensure FlatStore implements Store interface.
var _ Store = (*FlatStore)(nil)
