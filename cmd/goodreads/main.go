package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-scrape-reviews/config"
	"github.com/aluiziolira/go-scrape-reviews/models"
	"github.com/aluiziolira/go-scrape-reviews/parser"
	"github.com/aluiziolira/go-scrape-reviews/pipeline"
	"github.com/aluiziolira/go-scrape-reviews/scraper"
	"github.com/aluiziolira/go-scrape-reviews/storage"
	"github.com/aluiziolira/go-scrape-reviews/visualize"
)

type flags struct {
	configPath       string
	baseURL          string
	dataDir          string
	store            string
	sqlitePath       string
	failureThreshold int
	contentWait      time.Duration
	timeout          time.Duration
	delay            time.Duration
	randomDelay      time.Duration
	retryBackoff     time.Duration
	retryBackoffMax  time.Duration
	report           string
	format           string
	skipPlots        bool
	metricsAddr      string
	verbose          bool
	respectRobots    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	defaults := config.DefaultConfig()

	root := &cobra.Command{
		Use:           "goodreads",
		Short:         "Scrape a Goodreads genre and re-rank it by likes-weighted review ratings.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&f.configPath, "config", "", "YAML config file")
	pf.StringVar(&f.baseURL, "base-url", defaults.BaseURL, "Site base URL")
	pf.StringVar(&f.dataDir, "data-dir", defaults.DataDir, "Directory for scraped artifacts")
	pf.StringVar(&f.store, "store", defaults.StoreBackend, "Artifact store: file or sqlite")
	pf.StringVar(&f.sqlitePath, "sqlite-path", defaults.SQLitePath, "SQLite database path when --store=sqlite")
	pf.IntVar(&f.failureThreshold, "failure-threshold", defaults.FailureThreshold, "Consecutive transient failures before a book is skipped")
	pf.DurationVar(&f.contentWait, "content-wait", defaults.ContentWait, "Maximum wait for a review page to load")
	pf.DurationVar(&f.timeout, "timeout", defaults.Timeout, "HTTP request timeout")
	pf.DurationVar(&f.delay, "delay", defaults.Delay, "Delay between requests")
	pf.DurationVar(&f.randomDelay, "random-delay", defaults.RandomDelay, "Random jitter added to delay")
	pf.DurationVar(&f.retryBackoff, "retry-backoff", defaults.RetryBackoff, "Initial retry backoff")
	pf.DurationVar(&f.retryBackoffMax, "retry-backoff-max", defaults.RetryBackoffMax, "Maximum retry backoff")
	pf.StringVar(&f.report, "report", defaults.ReportFile, "Ranking report path")
	pf.StringVar(&f.format, "format", defaults.ReportFormat, "Report format: csv, json, or dual")
	pf.BoolVar(&f.skipPlots, "skip-plots", defaults.SkipPlots, "Do not render review plots")
	pf.StringVar(&f.metricsAddr, "metrics-addr", defaults.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	pf.BoolVarP(&f.verbose, "verbose", "v", defaults.Verbose, "Enable verbose logging")
	pf.BoolVar(&f.respectRobots, "respect-robots", defaults.RespectRobotsTxt, "Respect robots.txt directives")

	root.AddCommand(
		&cobra.Command{
			Use:   "scrape [genre]",
			Short: "Scrape the genre catalog and the reviews of every book",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return execute(cmd, f, args, true, false)
			},
		},
		&cobra.Command{
			Use:   "rank [genre]",
			Short: "Rank today's scraped genre by Bayesian-adjusted rating",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return execute(cmd, f, args, false, true)
			},
		},
		&cobra.Command{
			Use:   "run [genre]",
			Short: "Scrape then rank",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return execute(cmd, f, args, true, true)
			},
		},
	)
	return root
}

// buildConfig layers defaults, the config file, GOODREADS_* variables and
// explicitly set flags, in that order.
func buildConfig(cmd *cobra.Command, f *flags, args []string) (*config.Config, error) {
	cfg, err := config.LoadFile(f.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if changed("base-url") {
		cfg.BaseURL = f.baseURL
	}
	if changed("data-dir") {
		cfg.DataDir = f.dataDir
	}
	if changed("store") {
		cfg.StoreBackend = strings.ToLower(f.store)
	}
	if changed("sqlite-path") {
		cfg.SQLitePath = f.sqlitePath
	}
	if changed("failure-threshold") {
		cfg.FailureThreshold = f.failureThreshold
	}
	if changed("content-wait") {
		cfg.ContentWait = f.contentWait
	}
	if changed("timeout") {
		cfg.Timeout = f.timeout
	}
	if changed("delay") {
		cfg.Delay = f.delay
	}
	if changed("random-delay") {
		cfg.RandomDelay = f.randomDelay
	}
	if changed("retry-backoff") {
		cfg.RetryBackoff = f.retryBackoff
	}
	if changed("retry-backoff-max") {
		cfg.RetryBackoffMax = f.retryBackoffMax
	}
	if changed("report") {
		cfg.ReportFile = f.report
	}
	if changed("format") {
		cfg.ReportFormat = strings.ToLower(f.format)
	}
	if changed("skip-plots") {
		cfg.SkipPlots = f.skipPlots
	}
	if changed("metrics-addr") {
		cfg.MetricsAddr = f.metricsAddr
	}
	if changed("verbose") {
		cfg.Verbose = f.verbose
	}
	if changed("respect-robots") {
		cfg.RespectRobotsTxt = f.respectRobots
	}
	if len(args) == 1 {
		cfg.Genre = args[0]
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func execute(cmd *cobra.Command, f *flags, args []string, scrape, rank bool) error {
	cfg, err := buildConfig(cmd, f, args)
	if err != nil {
		return err
	}

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lock, err := storage.AcquireRunLock(cfg.DataDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			slog.Error("release run lock", slog.Any("error", err))
		}
	}()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	metrics := scraper.NewMetrics()
	shutdown := serveMetrics(cfg.MetricsAddr, metrics)
	defer shutdown()

	if scrape {
		if err := runScrape(ctx, cfg, store, metrics, logger); err != nil {
			return err
		}
	}
	if rank {
		if err := runRank(ctx, cfg, store, logger); err != nil {
			return err
		}
	}
	return nil
}

func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.StoreBackend {
	case "sqlite":
		return storage.OpenSQLite(cfg.SQLitePath, nil)
	default:
		return storage.NewFileStore(cfg.DataDir, nil)
	}
}

func runScrape(ctx context.Context, cfg *config.Config, store storage.Store, metrics *scraper.Metrics, logger *slog.Logger) error {
	slog.Info("starting scrape",
		slog.String("base_url", cfg.BaseURL),
		slog.String("genre", cfg.Genre),
		slog.String("store", cfg.StoreBackend),
	)

	extractor := parser.NewExtractor(logger)
	catalog, err := scraper.NewCatalogScraper(cfg, extractor, scraper.WithMetrics(metrics), scraper.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("initialising catalog scraper: %w", err)
	}
	fetcher, err := scraper.NewFetcher(cfg, scraper.WithMetrics(metrics), scraper.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("initialising fetcher: %w", err)
	}
	defer fetcher.Close()
	paginator := scraper.NewPaginator(fetcher, extractor, os.Stderr, scraper.WithMetrics(metrics), scraper.WithLogger(logger))

	opts := []pipeline.OrchestratorOption{pipeline.WithMetrics(metrics), pipeline.WithLogger(logger)}
	if !cfg.SkipPlots {
		opts = append(opts, pipeline.WithRenderer(visualize.NewScatterRenderer(cfg.DataDir)))
	}
	orch := pipeline.NewOrchestrator(cfg, catalog, paginator, store, opts...)

	result, err := orch.Run(ctx, cfg.Genre)
	if result != nil {
		printSummary(result)
	}
	if err != nil {
		return fmt.Errorf("scraping failed: %w", err)
	}
	return nil
}

func runRank(ctx context.Context, cfg *config.Config, store storage.Store, logger *slog.Logger) error {
	writer, err := pipeline.NewReportWriter(cfg.ReportFormat, cfg.ReportFile)
	if err != nil {
		return fmt.Errorf("creating writer: %w", err)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Error("close writer", slog.Any("error", err))
		}
	}()

	ranker := pipeline.NewRanker(store,
		pipeline.WithReport(writer),
		pipeline.WithTable(os.Stdout),
		pipeline.WithRankLogger(logger),
	)
	ranking, err := ranker.Rank(ctx, cfg.Genre)
	if err != nil {
		return err
	}

	fmt.Printf("Official top book:   %s (%.2f)\n", ranking.Comparison.OfficialTop.Book, ranking.Comparison.OfficialTop.Official)
	fmt.Printf("Calculated top book: %s (%.3f)\n", ranking.Comparison.CalculatedTop.Book, ranking.Comparison.CalculatedTop.Bayesian)
	if len(ranking.Skipped) > 0 {
		fmt.Printf("Skipped books:       %s\n", strings.Join(ranking.Skipped, ", "))
	}
	fmt.Printf("Report:              %s\n", cfg.ReportFile)
	return nil
}

// serveMetrics starts the metrics server when addr is set and returns its shutdown func.
func serveMetrics(addr string, metrics *scraper.Metrics) func() {
	if addr == "" {
		return func() {}
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", addr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
	}
}

func printSummary(result *models.RunResult) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Scrape complete")
	fmt.Printf("  Run:            %s\n", result.RunID)
	fmt.Printf("  Genre:          %s\n", result.Genre)
	fmt.Printf("  Catalog books:  %d\n", result.CatalogSize)
	fmt.Printf("  Scraped:        %d\n", result.Done)
	fmt.Printf("  Fresh skipped:  %d\n", result.FreshSkipped)
	fmt.Printf("  Forced skipped: %d\n", result.ForcedSkipped)
	fmt.Printf("  Retries:        %d\n", result.RetryCount)
	fmt.Printf("  Review pages:   %d\n", result.PageCount)
	fmt.Printf("  Reviews:        %d\n", result.ReviewCount)
	if len(result.SkippedBooks) > 0 {
		fmt.Printf("  Skipped:        %s\n", strings.Join(result.SkippedBooks, ", "))
	}
	if len(result.ErrorsByType) > 0 {
		fmt.Printf("  Error types:    %v\n", result.ErrorsByType)
	}
	fmt.Printf("  Duration:       %v\n", result.EndTime.Sub(result.StartTime))
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
