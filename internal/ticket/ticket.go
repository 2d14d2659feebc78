// Package ticket defines the support ticket data model and the pure
// normalization logic that turns a ticket into embeddable text and
// derived index fields.
package ticket

import (
	"errors"
	"fmt"
)

// Sentinel errors for ticket validation.
var (
	// ErrInvalidTicket indicates a ticket that violates a model invariant.
	ErrInvalidTicket = errors.New("invalid ticket")
)

// State is the lifecycle state of a ticket.
type State string

const (
	StateOpen   State = "open"
	StateClosed State = "closed"
)

// SupportLevel is the escalation tier a ticket is assigned to.
// The empty string means the level was never set.
type SupportLevel string

const (
	SupportLevelUnset SupportLevel = ""
	SupportLevelL1    SupportLevel = "L1"
	SupportLevelL2    SupportLevel = "L2"
	SupportLevelL3    SupportLevel = "L3"
)

// Category classifies what kind of work a ticket asks for.
type Category string

const (
	CategoryDocumentation Category = "documentation"
	CategoryConfiguration Category = "configuration"
	CategoryOperational   Category = "operational"
	CategoryProvisioning  Category = "provisioning"
	CategoryGeneral       Category = "general"
)

// Categories lists all known categories. Used for stats aggregation
// and CLI filter validation.
func Categories() []Category {
	return []Category{
		CategoryDocumentation,
		CategoryConfiguration,
		CategoryOperational,
		CategoryProvisioning,
		CategoryGeneral,
	}
}

// Comment is a single comment on a ticket. Comments are ordered
// chronologically within Ticket.Comments.
type Comment struct {
	Author    string `json:"author"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at"`
}

// Ticket is an immutable support ticket record as fetched from the
// issue source. Timestamps are RFC 3339 strings as delivered by the
// source system.
type Ticket struct {
	// Number is the stable issue number from the source system.
	Number int `json:"number"`

	Title string `json:"title"`
	Body  string `json:"body"`

	// State is "open" or "closed".
	State State `json:"state"`

	Labels []string `json:"labels"`

	// SupportLevel is L1, L2, L3 or empty when unset.
	SupportLevel SupportLevel `json:"support_level,omitempty"`

	Category Category `json:"category"`

	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`

	// ClosedAt is set iff State is "closed".
	ClosedAt string `json:"closed_at,omitempty"`

	URL string `json:"url"`

	// Comments in chronological order.
	Comments []Comment `json:"comments"`
}

// Validate checks model invariants. The central one: ClosedAt is
// present iff the ticket is closed.
func (t *Ticket) Validate() error {
	if t.Number <= 0 {
		return fmt.Errorf("%w: number must be positive, got %d", ErrInvalidTicket, t.Number)
	}
	switch t.State {
	case StateOpen:
		if t.ClosedAt != "" {
			return fmt.Errorf("%w: open ticket #%d has closed_at set", ErrInvalidTicket, t.Number)
		}
	case StateClosed:
		if t.ClosedAt == "" {
			return fmt.Errorf("%w: closed ticket #%d missing closed_at", ErrInvalidTicket, t.Number)
		}
	default:
		return fmt.Errorf("%w: unknown state %q", ErrInvalidTicket, t.State)
	}
	return nil
}

// IsClosed reports whether the ticket is in the closed state.
func (t *Ticket) IsClosed() bool {
	return t.State == StateClosed
}
