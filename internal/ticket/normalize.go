package ticket

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// resolutionCommentCount is how many trailing comments feed the
// Resolution line of the embed text.
const resolutionCommentCount = 3

// Derived holds the index fields computed from a ticket at indexing
// time. All of it is a pure function of the ticket content, so
// re-indexing identical content yields byte-identical output.
type Derived struct {
	// EmbedText is the text blob submitted to the embedding provider.
	EmbedText string

	// Facts is a compact pipe-separated summary of the fixed fields.
	Facts string

	// Keywords is the deduplicated keyword set, sorted for stable output.
	Keywords []string

	// Complexity is a score in [1,10].
	Complexity int
}

// Normalize computes the derived index fields for a ticket.
// It performs no I/O and is deterministic.
func Normalize(t *Ticket) Derived {
	return Derived{
		EmbedText:  EmbedText(t),
		Facts:      Facts(t),
		Keywords:   Keywords(t),
		Complexity: Complexity(t),
	}
}

// EmbedText builds the text representation used for content embedding.
//
// The line order is fixed: Title, Body, Labels, Category, then Support
// Level when set, then a Resolution line built from the last three
// comments when the ticket is closed and has comments. Embedding
// stability depends on this order never changing.
func EmbedText(t *Ticket) string {
	parts := []string{
		"Title: " + t.Title,
		"Body: " + t.Body,
		"Labels: " + strings.Join(t.Labels, ", "),
		"Category: " + string(t.Category),
	}

	if t.SupportLevel != SupportLevelUnset {
		parts = append(parts, "Support Level: "+string(t.SupportLevel))
	}

	if t.IsClosed() && len(t.Comments) > 0 {
		tail := t.Comments
		if len(tail) > resolutionCommentCount {
			tail = tail[len(tail)-resolutionCommentCount:]
		}
		bodies := make([]string, len(tail))
		for i, c := range tail {
			bodies[i] = c.Body
		}
		parts = append(parts, "Resolution: "+strings.Join(bodies, " "))
	}

	return strings.Join(parts, "\n")
}

// Facts builds a pipe-separated summary of the ticket's fixed fields.
func Facts(t *Ticket) string {
	facts := []string{
		fmt.Sprintf("Issue #%d", t.Number),
		"State: " + string(t.State),
		"Category: " + string(t.Category),
	}

	if t.SupportLevel != SupportLevelUnset {
		facts = append(facts, "Support Level: "+string(t.SupportLevel))
	}
	if len(t.Labels) > 0 {
		facts = append(facts, "Labels: "+strings.Join(t.Labels, ", "))
	}

	facts = append(facts, "Created: "+t.CreatedAt)
	if t.ClosedAt != "" {
		facts = append(facts, "Closed: "+t.ClosedAt)
	}
	facts = append(facts, fmt.Sprintf("Comments: %d", len(t.Comments)))

	return strings.Join(facts, " | ")
}

// Keywords returns the deduplicated union of category, support level,
// labels and state. The result is sorted so identical tickets produce
// identical slices.
func Keywords(t *Ticket) []string {
	seen := make(map[string]struct{})

	add := func(s string) {
		if s == "" {
			return
		}
		seen[s] = struct{}{}
	}

	add(string(t.Category))
	add(string(t.SupportLevel))
	for _, l := range t.Labels {
		add(l)
	}
	add(string(t.State))

	keywords := make([]string, 0, len(seen))
	for k := range seen {
		keywords = append(keywords, k)
	}
	sort.Strings(keywords)
	return keywords
}

// Complexity scores how involved a ticket is on a 1-10 scale.
//
// Additive from a base of 1: body length, comment volume, support
// level, and (for closed tickets) how long the ticket stayed open.
// Threshold buckets are exclusive, highest wins. Malformed timestamps
// contribute nothing rather than failing.
func Complexity(t *Ticket) int {
	score := 1

	switch bodyLen := len(t.Body); {
	case bodyLen > 2000:
		score += 3
	case bodyLen > 1000:
		score += 2
	case bodyLen > 500:
		score += 1
	}

	switch comments := len(t.Comments); {
	case comments > 20:
		score += 3
	case comments > 10:
		score += 2
	case comments > 5:
		score += 1
	}

	switch t.SupportLevel {
	case SupportLevelL3:
		score += 2
	case SupportLevelL2:
		score += 1
	}

	if t.IsClosed() && t.ClosedAt != "" {
		if days, ok := daysOpen(t.CreatedAt, t.ClosedAt); ok {
			switch {
			case days > 30:
				score += 2
			case days > 14:
				score += 1
			}
		}
	}

	if score > 10 {
		score = 10
	}
	return score
}

// daysOpen returns the whole-day difference between two RFC 3339
// timestamps. ok is false when either timestamp fails to parse.
func daysOpen(createdAt, closedAt string) (int, bool) {
	created, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return 0, false
	}
	closed, err := time.Parse(time.RFC3339, closedAt)
	if err != nil {
		return 0, false
	}
	return int(closed.Sub(created).Hours() / 24), true
}
