package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"newspipe/internal/classify"
	"newspipe/internal/collector"
	"newspipe/internal/config"
	"newspipe/internal/dedup"
	"newspipe/internal/fetch"
	"newspipe/internal/normalize"
	"newspipe/internal/scheduler"
	"newspipe/internal/server"
	"newspipe/internal/source"
	"newspipe/internal/store"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "newspipe",
	Short:   "Collect and classify news articles",
	Long:    "Newspipe polls RSS/Atom feeds and bulk event APIs, deduplicates and classifies articles, and stores them for export.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if cfg.Logging.Level == "DEBUG" {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(exportCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("newspipe", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/newspipe/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure sources, intervals, and the model endpoint.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and pipeline status",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		stats, err := st.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Println("Articles:")
		fmt.Printf("  Total collected: %d\n", stats.TotalArticles)
		fmt.Printf("  Unclassified: %d\n", stats.Unclassified)
		fmt.Printf("  Missing body: %d\n", stats.BodiesMissing)
		if !stats.LatestCollected.IsZero() {
			fmt.Printf("  Last collected: %s\n", stats.LatestCollected.Format(time.RFC3339))
		}

		if len(stats.ByCategory) > 0 {
			fmt.Println("\nBy category:")
			categories := make([]string, 0, len(stats.ByCategory))
			for name := range stats.ByCategory {
				categories = append(categories, name)
			}
			sort.Strings(categories)
			for _, name := range categories {
				fmt.Printf("  %s: %d\n", name, stats.ByCategory[name])
			}
		}

		fmt.Printf("\nCycle reports: %d\n", stats.CycleReports)
		return nil
	},
}

// --- collect command ---

var collectSource string

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run one collection cycle over the configured sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		orch := buildOrchestrator(st)

		var filter []string
		if collectSource != "" {
			filter = []string{collectSource}
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		fmt.Println("Collecting articles from sources...")
		report := orch.RunCycle(ctx, filter)

		fetched, duplicates, classified, failed := report.Totals()
		fmt.Println("\nCycle complete:")
		fmt.Printf("  Fetched: %d\n", fetched)
		fmt.Printf("  Duplicates skipped: %d\n", duplicates)
		fmt.Printf("  Classified: %d\n", classified)
		fmt.Printf("  Failed: %d\n", failed)
		if report.Cancelled {
			fmt.Println("  (cycle was interrupted)")
		}

		for _, sr := range report.Sources {
			fmt.Printf("\n  %s: %d fetched, %d new\n", sr.Source, sr.Fetched, sr.Classified)
			for _, e := range sr.Errors {
				fmt.Printf("    error: %s\n", e)
			}
		}
		return nil
	},
}

func init() {
	collectCmd.Flags().StringVar(&collectSource, "source", "", "Collect from a single named source")
}

// --- daemon command ---

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run scheduled collection with the control API",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		orch := buildOrchestrator(st)

		sched, err := scheduler.New(orch, configuredSources(), cfg.Collector.DefaultIntervalDuration())
		if err != nil {
			return fmt.Errorf("building scheduler: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		sched.Start(ctx)
		defer sched.Stop()

		fmt.Printf("Control API at http://127.0.0.1:%d\n", cfg.Server.Port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(ctx, st, orch, cfg.Server.Port)
	},
}

// --- export command ---

var (
	exportSince    string
	exportCategory string
	exportSourceID string
	exportLimit    int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write stored articles to stdout as JSON lines",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		filter := store.ExportFilter{
			Category: exportCategory,
			SourceID: exportSourceID,
			Limit:    exportLimit,
		}
		if exportSince != "" {
			since, err := parseSince(exportSince)
			if err != nil {
				return err
			}
			filter.Since = since
		}

		articles, err := st.ListForExport(filter)
		if err != nil {
			return fmt.Errorf("listing articles: %w", err)
		}

		enc := json.NewEncoder(os.Stdout)
		for _, a := range articles {
			if err := enc.Encode(a); err != nil {
				return err
			}
		}
		fmt.Fprintf(os.Stderr, "Exported %d articles\n", len(articles))
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportSince, "since", "", "Only articles collected after this time (duration like 24h, or date YYYY-MM-DD)")
	exportCmd.Flags().StringVar(&exportCategory, "category", "", "Only articles in this category")
	exportCmd.Flags().StringVar(&exportSourceID, "source", "", "Only articles from this source")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 0, "Cap the number of exported articles")
}

// parseSince accepts either a lookback duration ("24h") or an absolute
// date ("2026-08-30").
func parseSince(raw string) (time.Time, error) {
	if d, err := time.ParseDuration(raw); err == nil {
		return time.Now().UTC().Add(-d), nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid --since value: %s", raw)
}

// --- wiring ---

func configuredSources() []source.Source {
	defaultInterval := cfg.Collector.DefaultIntervalDuration()
	sources := make([]source.Source, 0, len(cfg.Sources))
	for _, s := range cfg.Sources {
		sources = append(sources, source.Source{
			Name:     s.Name,
			Type:     source.Type(s.Type),
			URL:      s.URL,
			Query:    s.Query,
			Interval: s.IntervalDuration(defaultInterval),
			Enabled:  s.Enabled,
			MaxItems: s.MaxItems,
		})
	}
	return sources
}

func buildClassifier() *classify.Classifier {
	rules := classify.DefaultRules()
	if len(cfg.Classifier.Categories) > 0 {
		rules = rules[:0]
		for _, c := range cfg.Classifier.Categories {
			rules = append(rules, classify.Rule{Category: c.Name, Keywords: c.Keywords})
		}
	}
	engine := classify.NewRuleEngine(rules, cfg.Classifier.MinRuleScore, cfg.Classifier.SpecificityThreshold)

	var predictor classify.Predictor
	if m := cfg.Classifier.Model; m.Enabled {
		apiKey := os.Getenv(m.APIKeyEnv)
		predictor = classify.NewHTTPPredictor(m.Endpoint, apiKey, m.TimeoutDuration(), m.MaxConcurrent)
	}
	return classify.New(engine, predictor, cfg.Classifier.ModelWeight)
}

func buildOrchestrator(st *store.Store) *collector.Orchestrator {
	cc := cfg.Collector
	connectors := map[source.Type]source.Connector{
		source.TypeFeed: source.NewFeedConnector(source.FeedOptions{
			Timeout:   cc.FetchTimeoutDuration(),
			Attempts:  cc.RetryAttempts,
			Backoff:   cc.RetryBackoffDuration(),
			RateLimit: cc.RateLimitDuration(),
		}),
		source.TypeBulk: source.NewGDELTConnector(source.GDELTOptions{
			Timeout:  cc.FetchTimeoutDuration(),
			Attempts: cc.RetryAttempts,
			Backoff:  cc.RetryBackoffDuration(),
			PageSize: cc.GDELTPageSize,
			MaxPages: cc.GDELTMaxPages,
			Lookback: cc.GDELTLookbackDuration(),
		}),
	}

	classifier := buildClassifier()

	var enricher collector.Enricher
	if cfg.Enrichment.Enabled {
		enricher = fetch.NewEnricher(st, classifier, cfg.Enrichment.TimeoutDuration(), cfg.Enrichment.Limit)
	}

	return collector.New(configuredSources(), connectors, dedup.New(st), normalize.New(),
		classifier, st, enricher, collector.Options{
			InFlight:        cc.MaxInFlight,
			PersistAttempts: cc.PersistAttempts,
		})
}

func openStore() (*store.Store, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return store.Open(filepath.Join(dataDir, "newspipe.db"))
}
