// Package main implements the resolvd CLI: index support tickets from
// GitHub, search the index and synthesize resolution recommendations.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fyrsmithlabs/resolvd/internal/completion"
	"github.com/fyrsmithlabs/resolvd/internal/config"
	"github.com/fyrsmithlabs/resolvd/internal/embeddings"
	"github.com/fyrsmithlabs/resolvd/internal/logging"
	"github.com/fyrsmithlabs/resolvd/internal/recommend"
	"github.com/fyrsmithlabs/resolvd/internal/source"
	"github.com/fyrsmithlabs/resolvd/internal/ticket"
	"github.com/fyrsmithlabs/resolvd/internal/vectorstore"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath    string
	storeOverride string
	version       = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "resolvd",
	Short: "Ticket resolution recommendation engine",
	Long: `resolvd indexes support tickets as vector embeddings and recommends
resolutions for new problems based on similar historical tickets.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default ~/.config/resolvd/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&storeOverride, "store", "", "vector store provider override (flat or qdrant)")
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(recommendCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(initIndexCmd)
}

// app holds the wired components shared by the commands. Everything is
// constructed eagerly so misconfiguration fails before any work starts.
type app struct {
	config    *config.Config
	logger    *zap.Logger
	embedder  *embeddings.Service
	completer completion.Completer
	store     vectorstore.Store
}

func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if storeOverride != "" {
		cfg.VectorStore.Provider = storeOverride
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	logger = logger.With(zap.String("run_id", uuid.NewString()))

	embedder, err := embeddings.NewService(embeddings.Config{
		BaseURL:    cfg.Embeddings.BaseURL,
		Model:      cfg.Embeddings.Model,
		APIKey:     cfg.Embeddings.APIKey.Value(),
		Dimensions: cfg.Embeddings.Dimensions,
	}, logger)
	if err != nil {
		return nil, err
	}

	completer, err := completion.NewService(completion.Config{
		BaseURL: cfg.Completion.BaseURL,
		Model:   cfg.Completion.Model,
		APIKey:  cfg.Completion.APIKey.Value(),
	})
	if err != nil {
		return nil, err
	}

	store, err := vectorstore.New(cfg, embedder, completer, logger)
	if err != nil {
		return nil, err
	}

	return &app{
		config:    cfg,
		logger:    logger,
		embedder:  embedder,
		completer: completer,
		store:     store,
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing store", zap.Error(err))
	}
	_ = a.logger.Sync()
}

var (
	indexState  string
	indexLabels []string
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Fetch issues from GitHub and index them",
	Long: `Fetch issues from the configured GitHub repository, normalize them
into tickets and index them in the vector store.

Examples:
  resolvd index
  resolvd index --state closed
  resolvd index --label support --label bug --store qdrant`,
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().StringVar(&indexState, "state", "all", "issue state filter (open, closed, all)")
	indexCmd.Flags().StringArrayVar(&indexLabels, "label", nil, "label filter (repeatable)")
}

func runIndex(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	fetcher, err := source.NewFetcher(a.config.GitHub, a.logger)
	if err != nil {
		return err
	}

	tickets, err := fetcher.FetchIssues(cmd.Context(), source.FetchOptions{
		State:  indexState,
		Labels: indexLabels,
	})
	if err != nil {
		return err
	}
	if len(tickets) == 0 {
		fmt.Println("No issues matched the filters; nothing to index.")
		return nil
	}

	if err := a.store.UpsertBatch(cmd.Context(), tickets); err != nil {
		return err
	}

	stats, err := a.store.Stats(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("Indexed %d tickets.\n\n", len(tickets))
	printStats(stats)
	return nil
}

var (
	searchTopK     int
	searchCategory string
	searchContent  bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find tickets similar to a problem description",
	Long: `Search the index for tickets similar to the given problem description.

Examples:
  resolvd search "pods stuck in CrashLoopBackOff"
  resolvd search --top-k 10 --category operational "api latency spike"`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVar(&searchTopK, "top-k", 5, "number of results")
	searchCmd.Flags().StringVar(&searchCategory, "category", "", "restrict to one category")
	searchCmd.Flags().BoolVar(&searchContent, "content-vector", false, "rank against the content vector instead of intent (qdrant only)")
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	results, err := a.search(cmd, args[0])
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("No similar tickets found.")
		return nil
	}

	for i, r := range results {
		fmt.Printf("%d. #%d %s (score %.3f)\n", i+1, r.Ticket.Number, r.Ticket.Title, r.Score)
		fmt.Printf("   %s | %s | %s\n", r.Ticket.State, r.Ticket.Category, r.Ticket.URL)
		if r.SolutionSummary != "" {
			fmt.Printf("   Solution: %s\n", r.SolutionSummary)
		}
	}
	return nil
}

func (a *app) search(cmd *cobra.Command, query string) ([]vectorstore.SearchResult, error) {
	var opts []vectorstore.SearchOption
	if searchCategory != "" {
		opts = append(opts, vectorstore.WithCategory(ticket.Category(strings.ToLower(searchCategory))))
	}
	if searchContent {
		opts = append(opts, vectorstore.WithContentVector())
	}
	return a.store.Search(cmd.Context(), query, searchTopK, opts...)
}

var recommendCmd = &cobra.Command{
	Use:   "recommend <problem>",
	Short: "Recommend a resolution for a new problem",
	Long: `Search the index for similar historical tickets and synthesize a
resolution recommendation with a confidence grade.

Examples:
  resolvd recommend "users report 502 errors after deploy"
  resolvd recommend --top-k 3 "pvc stuck in pending"`,
	Args: cobra.ExactArgs(1),
	RunE: runRecommend,
}

func init() {
	recommendCmd.Flags().IntVar(&searchTopK, "top-k", 5, "number of neighbors to consider")
	recommendCmd.Flags().StringVar(&searchCategory, "category", "", "restrict neighbors to one category")
}

func runRecommend(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	neighbors, err := a.search(cmd, args[0])
	if err != nil {
		return err
	}

	syn, err := recommend.NewSynthesizer(a.completer, a.logger)
	if err != nil {
		return err
	}
	rec, err := syn.Recommend(cmd.Context(), args[0], neighbors)
	if err != nil {
		return err
	}

	fmt.Printf("Confidence: %s (avg similarity %.2f over %d tickets)\n\n",
		rec.Confidence, rec.AverageSimilarity, rec.SimilarTicketsCount)
	fmt.Println(rec.Text)
	if len(rec.SimilarTickets) > 0 {
		fmt.Println("\nSimilar tickets:")
		for _, s := range rec.SimilarTickets {
			fmt.Printf("  #%d %s (%.2f) %s\n", s.Number, s.Title, s.Score, s.URL)
		}
	}
	return nil
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		stats, err := a.store.Stats(cmd.Context())
		if err != nil {
			return err
		}
		printStats(stats)
		return nil
	},
}

var initIndexCmd = &cobra.Command{
	Use:   "init-index",
	Short: "Create the remote index schema",
	Long: `Create the Qdrant collection and payload indexes. Idempotent; only
meaningful with the qdrant store provider.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		qs, ok := a.store.(*vectorstore.QdrantStore)
		if !ok {
			return fmt.Errorf("init-index requires the qdrant store provider (current: %s)",
				a.config.VectorStore.Provider)
		}
		if err := qs.EnsureSchema(cmd.Context()); err != nil {
			return err
		}
		fmt.Printf("Collection %s is ready.\n", a.config.VectorStore.Qdrant.Collection)
		return nil
	},
}

func printStats(stats *vectorstore.Stats) {
	out, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		fmt.Printf("Total tickets: %d\n", stats.Total)
		return
	}
	fmt.Println(string(out))
}
