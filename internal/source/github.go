// Package source builds tickets from external issue trackers.
package source

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/resolvd/internal/config"
	"github.com/fyrsmithlabs/resolvd/internal/ticket"
	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

var (
	// ErrInvalidConfig indicates invalid source configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrFetchFailed indicates the issue tracker could not be read.
	ErrFetchFailed = errors.New("fetching issues failed")
)

// issuesPerPage is the GitHub API page size.
const issuesPerPage = 100

// FetchOptions filters which issues become tickets.
type FetchOptions struct {
	// State is "open", "closed" or "all". Default: "all".
	State string

	// Labels restricts to issues carrying all listed labels.
	Labels []string

	// Numbers restricts to explicit issue numbers.
	Numbers []int

	// Categories keeps only tickets whose derived category is listed.
	Categories []ticket.Category
}

// Fetcher pulls issues from one GitHub repository and normalizes them
// into tickets, deriving support level and category on the way.
type Fetcher struct {
	client *github.Client
	owner  string
	repo   string
	logger *zap.Logger
}

// NewFetcher creates a Fetcher for "owner/name". The token is required;
// unauthenticated access rate-limits too aggressively for indexing.
func NewFetcher(cfg config.GitHubConfig, logger *zap.Logger) (*Fetcher, error) {
	if !cfg.Token.IsSet() {
		return nil, fmt.Errorf("%w: GitHub token required", ErrInvalidConfig)
	}
	owner, repo, ok := strings.Cut(cfg.Repo, "/")
	if !ok || owner == "" || repo == "" {
		return nil, fmt.Errorf("%w: repo must be owner/name, got %q", ErrInvalidConfig, cfg.Repo)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token.Value()})
	tc := oauth2.NewClient(context.Background(), ts)

	return &Fetcher{
		client: github.NewClient(tc),
		owner:  owner,
		repo:   repo,
		logger: logger,
	}, nil
}

// FetchIssues pulls all matching issues with their comments. Pull
// requests are skipped; the GitHub API lists them among issues.
func (f *Fetcher) FetchIssues(ctx context.Context, opts FetchOptions) ([]*ticket.Ticket, error) {
	state := opts.State
	if state == "" {
		state = "all"
	}

	wanted := make(map[int]bool, len(opts.Numbers))
	for _, n := range opts.Numbers {
		wanted[n] = true
	}
	categories := make(map[ticket.Category]bool, len(opts.Categories))
	for _, c := range opts.Categories {
		categories[c] = true
	}

	listOpts := &github.IssueListByRepoOptions{
		State:       state,
		Labels:      opts.Labels,
		ListOptions: github.ListOptions{PerPage: issuesPerPage},
	}

	var tickets []*ticket.Ticket
	for {
		issues, resp, err := f.client.Issues.ListByRepo(ctx, f.owner, f.repo, listOpts)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
		}

		for _, issue := range issues {
			if issue.IsPullRequest() {
				continue
			}
			if len(wanted) > 0 && !wanted[issue.GetNumber()] {
				continue
			}

			t, err := f.buildTicket(ctx, issue)
			if err != nil {
				return nil, err
			}
			if len(categories) > 0 && !categories[t.Category] {
				continue
			}
			tickets = append(tickets, t)
		}

		if resp.NextPage == 0 {
			break
		}
		listOpts.Page = resp.NextPage
	}

	f.logger.Info("fetched issues",
		zap.String("repo", f.owner+"/"+f.repo),
		zap.String("state", state),
		zap.Int("count", len(tickets)))
	return tickets, nil
}

// buildTicket converts one issue plus its comments into a ticket.
func (f *Fetcher) buildTicket(ctx context.Context, issue *github.Issue) (*ticket.Ticket, error) {
	labels := make([]string, 0, len(issue.Labels))
	for _, l := range issue.Labels {
		labels = append(labels, l.GetName())
	}

	comments, err := f.fetchComments(ctx, issue.GetNumber())
	if err != nil {
		return nil, err
	}

	t := &ticket.Ticket{
		Number:       issue.GetNumber(),
		Title:        issue.GetTitle(),
		Body:         issue.GetBody(),
		State:        ticket.State(issue.GetState()),
		Labels:       labels,
		SupportLevel: DeriveSupportLevel(labels),
		Category:     DeriveCategory(issue.GetTitle(), issue.GetBody(), labels),
		CreatedAt:    issue.GetCreatedAt().Format(time.RFC3339),
		UpdatedAt:    issue.GetUpdatedAt().Format(time.RFC3339),
		URL:          issue.GetHTMLURL(),
		Comments:     comments,
	}
	if !issue.GetClosedAt().IsZero() {
		t.ClosedAt = issue.GetClosedAt().Format(time.RFC3339)
	}
	return t, nil
}

// fetchComments pulls all comments for an issue in creation order.
func (f *Fetcher) fetchComments(ctx context.Context, number int) ([]ticket.Comment, error) {
	opts := &github.IssueListCommentsOptions{
		ListOptions: github.ListOptions{PerPage: issuesPerPage},
	}

	var comments []ticket.Comment
	for {
		page, resp, err := f.client.Issues.ListComments(ctx, f.owner, f.repo, number, opts)
		if err != nil {
			return nil, fmt.Errorf("%w: comments for issue #%d: %v", ErrFetchFailed, number, err)
		}

		for _, c := range page {
			author := "unknown"
			if c.GetUser() != nil && c.GetUser().GetLogin() != "" {
				author = c.GetUser().GetLogin()
			}
			comments = append(comments, ticket.Comment{
				Author:    author,
				Body:      c.GetBody(),
				CreatedAt: c.GetCreatedAt().Format(time.RFC3339),
			})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return comments, nil
}

// DeriveSupportLevel maps issue labels to an escalation tier. The first
// label mentioning a tier wins; no match leaves the level unset.
func DeriveSupportLevel(labels []string) ticket.SupportLevel {
	for _, label := range labels {
		l := strings.ToLower(label)
		switch {
		case strings.Contains(l, "l1"), strings.Contains(l, "level-1"), strings.Contains(l, "first-level"):
			return ticket.SupportLevelL1
		case strings.Contains(l, "l2"), strings.Contains(l, "level-2"), strings.Contains(l, "second-level"):
			return ticket.SupportLevelL2
		case strings.Contains(l, "l3"), strings.Contains(l, "level-3"), strings.Contains(l, "third-level"):
			return ticket.SupportLevelL3
		}
	}
	return ticket.SupportLevelUnset
}

// categoryKeywords drive the content scan, checked in declaration order.
var categoryKeywords = []struct {
	category ticket.Category
	keywords []string
}{
	{ticket.CategoryDocumentation, []string{"documentation", "docs", "guide", "how to", "tutorial"}},
	{ticket.CategoryConfiguration, []string{"configuration", "config", "setting", "parameter"}},
	{ticket.CategoryOperational, []string{"operational", "operation", "incident", "outage", "down"}},
	{ticket.CategoryProvisioning, []string{"provision", "create", "setup", "deploy"}},
}

// DeriveCategory classifies a ticket. Labels take precedence over the
// title/body keyword scan; nothing matching falls back to general.
func DeriveCategory(title, body string, labels []string) ticket.Category {
	for _, label := range labels {
		l := strings.ToLower(label)
		switch {
		case strings.Contains(l, "documentation"):
			return ticket.CategoryDocumentation
		case strings.Contains(l, "config"):
			return ticket.CategoryConfiguration
		case strings.Contains(l, "operational"), strings.Contains(l, "ops"):
			return ticket.CategoryOperational
		}
	}

	text := strings.ToLower(title + " " + body)
	for _, ck := range categoryKeywords {
		for _, keyword := range ck.keywords {
			if strings.Contains(text, keyword) {
				return ck.category
			}
		}
	}
	return ticket.CategoryGeneral
}
