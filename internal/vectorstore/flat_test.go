package vectorstore_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fyrsmithlabs/resolvd/internal/ticket"
	"github.com/fyrsmithlabs/resolvd/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// topicEmbedder maps texts onto axis-aligned unit vectors by topic
// word, so similarity between a query and a ticket is predictable.
type topicEmbedder struct {
	dimensions int

	// constant forces every text onto the same vector, making all
	// similarity scores equal.
	constant bool

	// shortBy truncates produced vectors to simulate a misbehaving
	// provider.
	shortBy int
}

var topics = []string{"database", "network", "documentation"}

func (e *topicEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v := make([]float32, e.dimensions)
	if e.constant {
		v[0] = 1
	} else {
		axis := len(topics)
		for i, topic := range topics {
			if strings.Contains(strings.ToLower(text), topic) {
				axis = i
				break
			}
		}
		v[axis%e.dimensions] = 1
	}
	if e.shortBy > 0 {
		v = v[:len(v)-e.shortBy]
	}
	return v, nil
}

func (e *topicEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *topicEmbedder) Dimension() int { return e.dimensions }

// failingEmbedder fails every call.
type failingEmbedder struct{ dimensions int }

func (e *failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("provider unavailable")
}

func (e *failingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, fmt.Errorf("provider unavailable")
}

func (e *failingEmbedder) Dimension() int { return e.dimensions }

func newTestStore(t *testing.T) *vectorstore.FlatStore {
	t.Helper()
	store, err := vectorstore.NewFlatStore(vectorstore.FlatConfig{
		Path:       filepath.Join(t.TempDir(), "index.json"),
		Dimensions: 4,
	}, &topicEmbedder{dimensions: 4}, zap.NewNop())
	require.NoError(t, err)
	return store
}

func testTicket(number int, title string, mutate ...func(*ticket.Ticket)) *ticket.Ticket {
	tk := &ticket.Ticket{
		Number:    number,
		Title:     title,
		Body:      "Steps to reproduce the problem.",
		State:     ticket.StateOpen,
		Category:  ticket.CategoryGeneral,
		CreatedAt: "2026-05-01T10:00:00Z",
		UpdatedAt: "2026-05-02T10:00:00Z",
		URL:       fmt.Sprintf("https://github.com/acme/support/issues/%d", number),
	}
	for _, m := range mutate {
		m(tk)
	}
	return tk
}

func TestFlatConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  vectorstore.FlatConfig
		wantErr bool
	}{
		{name: "valid", config: vectorstore.FlatConfig{Path: "/tmp/idx.json", Dimensions: 4}},
		{name: "missing path", config: vectorstore.FlatConfig{Dimensions: 4}, wantErr: true},
		{name: "zero dimensions", config: vectorstore.FlatConfig{Path: "/tmp/idx.json"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, vectorstore.ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewFlatStore_EmbedderDimensionMismatch(t *testing.T) {
	_, err := vectorstore.NewFlatStore(vectorstore.FlatConfig{
		Path:       filepath.Join(t.TempDir(), "index.json"),
		Dimensions: 8,
	}, &topicEmbedder{dimensions: 4}, zap.NewNop())
	assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)
}

func TestFlatStore_UpsertBatch_GrowsCumulatively(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertBatch(ctx, []*ticket.Ticket{
		testTicket(1, "database timeout"),
		testTicket(2, "network outage"),
	}))
	assert.Equal(t, 2, store.Len())

	require.NoError(t, store.UpsertBatch(ctx, []*ticket.Ticket{
		testTicket(3, "documentation typo"),
	}))
	assert.Equal(t, 3, store.Len())

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
}

func TestFlatStore_UpsertBatch_Empty(t *testing.T) {
	store := newTestStore(t)
	err := store.UpsertBatch(context.Background(), nil)
	assert.ErrorIs(t, err, vectorstore.ErrEmptyBatch)
}

func TestFlatStore_UpsertBatch_InvalidTicket(t *testing.T) {
	store := newTestStore(t)
	bad := testTicket(4, "closed without timestamp", func(tk *ticket.Ticket) {
		tk.State = ticket.StateClosed
	})
	err := store.UpsertBatch(context.Background(), []*ticket.Ticket{bad})
	assert.ErrorIs(t, err, ticket.ErrInvalidTicket)
}

func TestFlatStore_UpsertBatch_EmbeddingFailureAborts(t *testing.T) {
	store, err := vectorstore.NewFlatStore(vectorstore.FlatConfig{
		Path:       filepath.Join(t.TempDir(), "index.json"),
		Dimensions: 4,
	}, &failingEmbedder{dimensions: 4}, zap.NewNop())
	require.NoError(t, err)

	err = store.UpsertBatch(context.Background(), []*ticket.Ticket{testTicket(1, "anything")})
	require.Error(t, err)
	assert.Equal(t, 0, store.Len())
}

func TestFlatStore_UpsertBatch_DimensionMismatch(t *testing.T) {
	store, err := vectorstore.NewFlatStore(vectorstore.FlatConfig{
		Path:       filepath.Join(t.TempDir(), "index.json"),
		Dimensions: 4,
	}, &topicEmbedder{dimensions: 4, shortBy: 1}, zap.NewNop())
	require.NoError(t, err)

	err = store.UpsertBatch(context.Background(), []*ticket.Ticket{testTicket(1, "anything")})
	assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)
	assert.Equal(t, 0, store.Len())
}

func TestFlatStore_Upsert_IdempotentByNumber(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, testTicket(7, "database timeout")))
	require.NoError(t, store.Upsert(ctx, testTicket(7, "database timeout, revised")))

	assert.Equal(t, 1, store.Len())

	results, err := store.Search(ctx, "database", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "database timeout, revised", results[0].Ticket.Title)
}

func TestFlatStore_Search_MostSimilarFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertBatch(ctx, []*ticket.Ticket{
		testTicket(1, "network outage in eu region"),
		testTicket(2, "database timeout on login"),
		testTicket(3, "documentation typo in readme"),
	}))

	results, err := store.Search(ctx, "database connection drops", 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	assert.Equal(t, 2, results[0].Ticket.Number)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i].Score, results[i-1].Score)
	}
}

func TestFlatStore_Search_TieBreakInsertionOrder(t *testing.T) {
	store, err := vectorstore.NewFlatStore(vectorstore.FlatConfig{
		Path:       filepath.Join(t.TempDir(), "index.json"),
		Dimensions: 4,
	}, &topicEmbedder{dimensions: 4, constant: true}, zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.UpsertBatch(ctx, []*ticket.Ticket{
		testTicket(30, "third inserted last batch first"),
		testTicket(10, "first by insertion"),
		testTicket(20, "second by insertion"),
	}))

	results, err := store.Search(ctx, "anything", 3)
	require.NoError(t, err)
	require.Len(t, results, 3)

	// All scores identical, insertion order preserved.
	assert.Equal(t, []int{30, 10, 20}, []int{
		results[0].Ticket.Number,
		results[1].Ticket.Number,
		results[2].Ticket.Number,
	})
}

func TestFlatStore_Search_EmptyQuery(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Search(context.Background(), "", 5)
	assert.ErrorIs(t, err, vectorstore.ErrEmptyQuery)
}

func TestFlatStore_Search_CategoryFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertBatch(ctx, []*ticket.Ticket{
		testTicket(1, "database timeout", func(tk *ticket.Ticket) { tk.Category = ticket.CategoryOperational }),
		testTicket(2, "database docs wrong", func(tk *ticket.Ticket) { tk.Category = ticket.CategoryDocumentation }),
	}))

	results, err := store.Search(ctx, "database", 5, vectorstore.WithCategory(ticket.CategoryDocumentation))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 2, results[0].Ticket.Number)
}

func TestFlatStore_Search_TopK(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var batch []*ticket.Ticket
	for i := 1; i <= 10; i++ {
		batch = append(batch, testTicket(i, fmt.Sprintf("database issue %d", i)))
	}
	require.NoError(t, store.UpsertBatch(ctx, batch))

	results, err := store.Search(ctx, "database", 3)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestFlatStore_Persistence_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	embedder := &topicEmbedder{dimensions: 4}
	ctx := context.Background()

	store, err := vectorstore.NewFlatStore(vectorstore.FlatConfig{Path: path, Dimensions: 4}, embedder, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, store.UpsertBatch(ctx, []*ticket.Ticket{
		testTicket(1, "database timeout", func(tk *ticket.Ticket) {
			tk.Category = ticket.CategoryOperational
			tk.SupportLevel = ticket.SupportLevelL2
		}),
		testTicket(2, "network outage", func(tk *ticket.Ticket) {
			tk.Category = ticket.CategoryOperational
			tk.State = ticket.StateClosed
			tk.ClosedAt = "2026-05-10T10:00:00Z"
		}),
		testTicket(3, "documentation typo", func(tk *ticket.Ticket) {
			tk.Category = ticket.CategoryDocumentation
		}),
	}))

	before, err := store.Stats(ctx)
	require.NoError(t, err)

	reopened, err := vectorstore.NewFlatStore(vectorstore.FlatConfig{Path: path, Dimensions: 4}, embedder, zap.NewNop())
	require.NoError(t, err)

	after, err := reopened.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, 3, after.Total)
	assert.Equal(t, map[string]int{"open": 2, "closed": 1}, after.ByState)
	assert.Equal(t, map[string]int{"operational": 2, "documentation": 1}, after.ByCategory)
	assert.Equal(t, map[string]int{"L2": 1, "unspecified": 2}, after.BySupportLevel)

	// Search still works against restored vectors.
	results, err := reopened.Search(ctx, "network", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 2, results[0].Ticket.Number)
}

func TestNewFlatStore_CorruptSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	store, err := vectorstore.NewFlatStore(vectorstore.FlatConfig{Path: path, Dimensions: 4},
		&topicEmbedder{dimensions: 4}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 0, store.Len())
}

func TestNewFlatStore_SnapshotDimensionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	embedder8 := &topicEmbedder{dimensions: 8}

	store, err := vectorstore.NewFlatStore(vectorstore.FlatConfig{Path: path, Dimensions: 8}, embedder8, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.Upsert(context.Background(), testTicket(1, "database timeout")))

	// Reopening with a different dimensionality discards the snapshot.
	reopened, err := vectorstore.NewFlatStore(vectorstore.FlatConfig{Path: path, Dimensions: 4},
		&topicEmbedder{dimensions: 4}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 0, reopened.Len())
}

func TestFlatStore_Stats_Empty(t *testing.T) {
	store := newTestStore(t)
	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total)
	assert.Empty(t, stats.ByState)
}

func TestFlatStore_ImplementsStoreInterface(t *testing.T) {
	var _ vectorstore.Store = (*vectorstore.FlatStore)(nil)
}
