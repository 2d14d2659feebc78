// Package recommend synthesizes resolution recommendations from
// similar historical tickets.
package recommend

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/resolvd/internal/completion"
	"github.com/fyrsmithlabs/resolvd/internal/ticket"
	"github.com/fyrsmithlabs/resolvd/internal/vectorstore"
	"go.uber.org/zap"
)

// Confidence grades how much weight a recommendation deserves.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// noMatchesText is returned when the index has nothing similar to
// offer. No completion call is made in that case.
const noMatchesText = "No similar tickets found. This appears to be a new type of issue."

const systemPrompt = "You are an expert support engineer providing resolution recommendations " +
	"for support tickets. Analyze similar past tickets and provide actionable recommendations."

// SimilarTicket is the reduced neighbor projection carried on a
// recommendation.
type SimilarTicket struct {
	Number   int             `json:"number"`
	Title    string          `json:"title"`
	URL      string          `json:"url"`
	Score    float64         `json:"similarity_score"`
	State    ticket.State    `json:"state"`
	Category ticket.Category `json:"category"`
}

// Recommendation is the synthesized output for one query.
type Recommendation struct {
	Text                string          `json:"recommendation"`
	Confidence          Confidence      `json:"confidence"`
	AverageSimilarity   float64         `json:"average_similarity"`
	SimilarTicketsCount int             `json:"similar_tickets_count"`
	SimilarTickets      []SimilarTicket `json:"similar_tickets"`
}

// Synthesizer turns a query plus its nearest neighbors into a graded
// recommendation.
type Synthesizer struct {
	completer completion.Completer
	logger    *zap.Logger
}

// NewSynthesizer creates a Synthesizer.
func NewSynthesizer(completer completion.Completer, logger *zap.Logger) (*Synthesizer, error) {
	if completer == nil {
		return nil, fmt.Errorf("completer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{completer: completer, logger: logger}, nil
}

// Recommend generates a resolution recommendation for the described
// problem from its nearest indexed neighbors.
//
// With no neighbors the result is a fixed low-confidence payload and
// the completion provider is never called. Otherwise the prose is the
// product of the operation, so a completion failure propagates as an
// error rather than falling back.
func (s *Synthesizer) Recommend(ctx context.Context, query string, neighbors []vectorstore.SearchResult) (*Recommendation, error) {
	if len(neighbors) == 0 {
		return &Recommendation{
			Text:           noMatchesText,
			Confidence:     ConfidenceLow,
			SimilarTickets: []SimilarTicket{},
		}, nil
	}

	prompt := buildPrompt(query, neighbors)
	text, err := s.completer.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("generating recommendation: %w", err)
	}

	var sum float64
	similar := make([]SimilarTicket, len(neighbors))
	for i, n := range neighbors {
		sum += n.Score
		similar[i] = SimilarTicket{
			Number:   n.Ticket.Number,
			Title:    n.Ticket.Title,
			URL:      n.Ticket.URL,
			Score:    n.Score,
			State:    n.Ticket.State,
			Category: n.Ticket.Category,
		}
	}
	avg := sum / float64(len(neighbors))

	s.logger.Info("synthesized recommendation",
		zap.Int("neighbors", len(neighbors)),
		zap.Float64("average_similarity", avg))

	return &Recommendation{
		Text:                text,
		Confidence:          Grade(avg, len(neighbors)),
		AverageSimilarity:   avg,
		SimilarTicketsCount: len(neighbors),
		SimilarTickets:      similar,
	}, nil
}

// Grade classifies confidence from the average neighbor similarity and
// the neighbor count. Boundary values classify upward.
func Grade(avgSimilarity float64, count int) Confidence {
	switch {
	case avgSimilarity >= 0.8 && count >= 3:
		return ConfidenceHigh
	case avgSimilarity >= 0.6 && count >= 2:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// buildPrompt assembles the user prompt: the new problem followed by
// one context block per neighbor in ranking order.
func buildPrompt(query string, neighbors []vectorstore.SearchResult) string {
	var b strings.Builder

	b.WriteString("I need help resolving a support ticket. Based on similar historical tickets, please provide a resolution recommendation.\n\n")
	b.WriteString("NEW TICKET:\n")
	b.WriteString(query)
	b.WriteString("\n\nSIMILAR HISTORICAL TICKETS:\n")

	for i, n := range neighbors {
		b.WriteString(contextBlock(i+1, n))
		b.WriteString("\n")
	}

	b.WriteString("\nPlease provide:\n")
	b.WriteString("1. A summary of what the issue appears to be\n")
	b.WriteString("2. Step-by-step resolution recommendations based on the similar tickets\n")
	b.WriteString("3. Any relevant documentation or configuration that should be checked\n")
	b.WriteString("4. Potential root causes to investigate\n")
	b.WriteString("5. Preventive measures to avoid this issue in the future\n\n")
	b.WriteString("Focus on actionable steps that the support team can take.")

	return b.String()
}

// contextBlock renders one neighbor: similarity to two decimals, body
// truncated to 500 bytes, and for closed tickets with comments the last
// two comments truncated to 300 bytes each.
func contextBlock(position int, n vectorstore.SearchResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "\n--- Similar Ticket #%d (Similarity: %.2f) ---\n", position, n.Score)
	fmt.Fprintf(&b, "Title: %s\n", n.Ticket.Title)
	fmt.Fprintf(&b, "Body: %s\n", truncate(n.Ticket.Body, 500))
	fmt.Fprintf(&b, "State: %s\n", n.Ticket.State)
	fmt.Fprintf(&b, "Category: %s\n", n.Ticket.Category)

	level := string(n.Ticket.SupportLevel)
	if level == "" {
		level = vectorstore.UnspecifiedSupportLevel
	}
	fmt.Fprintf(&b, "Support Level: %s\n", level)

	if n.Ticket.IsClosed() && len(n.Ticket.Comments) > 0 {
		last := n.Ticket.Comments
		if len(last) > 2 {
			last = last[len(last)-2:]
		}
		b.WriteString("Resolution comments:\n")
		for _, c := range last {
			fmt.Fprintf(&b, "- %s\n", truncate(c.Body, 300))
		}
	}

	return b.String()
}

// truncate cuts s to at most n bytes.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
