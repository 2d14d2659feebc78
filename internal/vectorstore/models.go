package vectorstore

import (
	"github.com/fyrsmithlabs/resolvd/internal/ticket"
)

// IndexEntry bundles one ticket with its vectors and derived fields.
//
// Bundling keeps the ticket/vector pairing structural: an entry is
// created whole at indexing time, immutable afterward, and replaced
// wholesale when the same ticket number is re-indexed.
type IndexEntry struct {
	Ticket ticket.Ticket `json:"ticket"`

	// ContentVector embeds the normalized ticket text. Always present.
	ContentVector []float32 `json:"content_vector"`

	// IntentVector embeds the AI intent summary. Remote schema only.
	IntentVector []float32 `json:"intent_vector,omitempty"`

	Keywords   []string `json:"keywords"`
	Facts      string   `json:"facts"`
	Complexity int      `json:"complexity"`

	// AI-generated summaries, remote schema only. Populated with
	// templated fallbacks when the completion provider fails.
	IntentSummary   string `json:"intent_summary,omitempty"`
	ActionsSummary  string `json:"actions_summary,omitempty"`
	SolutionSummary string `json:"solution_summary,omitempty"`
}

// SearchResult is an ephemeral per-query projection of an index entry.
type SearchResult struct {
	Ticket ticket.Ticket `json:"ticket"`

	// Score is the similarity score. Cosine similarity for the local
	// store; the service relevance score for the remote store.
	Score float64 `json:"similarity_score"`

	Keywords   []string `json:"keywords,omitempty"`
	Facts      string   `json:"facts,omitempty"`
	Complexity int      `json:"complexity,omitempty"`

	IntentSummary   string `json:"intent_summary,omitempty"`
	ActionsSummary  string `json:"actions_summary,omitempty"`
	SolutionSummary string `json:"solution_summary,omitempty"`
}

// Stats summarizes the indexed corpus.
type Stats struct {
	Total          int            `json:"total_tickets"`
	ByState        map[string]int `json:"by_state"`
	ByCategory     map[string]int `json:"by_category"`
	BySupportLevel map[string]int `json:"by_support_level"`
}

// NewStats returns an empty Stats with initialized maps.
func NewStats() *Stats {
	return &Stats{
		ByState:        make(map[string]int),
		ByCategory:     make(map[string]int),
		BySupportLevel: make(map[string]int),
	}
}

// count adds one ticket's facets to the stats.
func (s *Stats) count(t *ticket.Ticket) {
	s.Total++
	s.ByState[string(t.State)]++
	s.ByCategory[string(t.Category)]++

	level := string(t.SupportLevel)
	if level == "" {
		level = UnspecifiedSupportLevel
	}
	s.BySupportLevel[level]++
}
