// Package pipeline drives a genre through its two stages: scraping the catalog
// and every book's reviews, then ranking the scraped books.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aluiziolira/go-scrape-reviews/config"
	"github.com/aluiziolira/go-scrape-reviews/models"
	"github.com/aluiziolira/go-scrape-reviews/parser"
	"github.com/aluiziolira/go-scrape-reviews/scraper"
	"github.com/aluiziolira/go-scrape-reviews/storage"
	"github.com/aluiziolira/go-scrape-reviews/visualize"
)

// Book outcomes, also used as metric labels.
const (
	OutcomeDone       = "done"
	OutcomeFreshSkip  = "fresh_skip"
	OutcomeForcedSkip = "forced_skip"
)

// CatalogSource lists the books of a genre in site rank order.
type CatalogSource interface {
	FetchCatalog(ctx context.Context, genre string) ([]models.CatalogEntry, error)
}

// ReviewCollector gathers every review of one book.
type ReviewCollector interface {
	Collect(ctx context.Context, bookURL string, resetSession bool) (*models.BookReviewSet, error)
}

// Renderer draws a book's reviews.
type Renderer interface {
	Render(bookName string, set *models.BookReviewSet) error
}

// Orchestrator scrapes the reviews of every catalog book at most once a day.
type Orchestrator struct {
	catalog   CatalogSource
	collector ReviewCollector
	store     storage.Store
	renderer  Renderer
	metrics   *scraper.Metrics
	logger    *slog.Logger
	retry     *retryPolicy

	progress models.ScrapeProgress
}

// OrchestratorOption customises an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithRenderer renders a plot of each scraped book.
func WithRenderer(r Renderer) OrchestratorOption {
	return func(o *Orchestrator) { o.renderer = r }
}

// WithMetrics records book outcomes.
func WithMetrics(m *scraper.Metrics) OrchestratorOption {
	return func(o *Orchestrator) {
		o.metrics = m
		o.retry.metrics = m
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewOrchestrator wires the scrape stage.
func NewOrchestrator(cfg *config.Config, catalog CatalogSource, collector ReviewCollector, store storage.Store, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		catalog:   catalog,
		collector: collector,
		store:     store,
		logger:    slog.Default(),
		retry:     newRetryPolicy(cfg, nil),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Progress returns the current position in the catalog.
func (o *Orchestrator) Progress() models.ScrapeProgress {
	return o.progress
}

// Run scrapes the genre catalog and then every book not yet scraped today.
func (o *Orchestrator) Run(ctx context.Context, genre string) (*models.RunResult, error) {
	result := &models.RunResult{
		RunID:        uuid.NewString(),
		Genre:        genre,
		StartTime:    time.Now(),
		SkippedBooks: []string{},
		ErrorsByType: make(map[string]int),
	}
	defer func() { result.EndTime = time.Now() }()

	logger := o.logger.With(slog.String("run_id", result.RunID), slog.String("genre", genre))

	catalog, err := o.snapshotCatalog(ctx, genre, logger)
	if err != nil {
		return result, err
	}
	result.CatalogSize = len(catalog)
	logger.Info("catalog ready", slog.Int("books", len(catalog)))

	o.progress = models.ScrapeProgress{}
	for o.progress.BookIndex < len(catalog) {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		entry := catalog[o.progress.BookIndex]
		if err := o.step(ctx, entry, result, logger); err != nil {
			return result, err
		}
	}

	logger.Info("scrape finished",
		slog.Int("done", result.Done),
		slog.Int("fresh_skipped", result.FreshSkipped),
		slog.Int("forced_skipped", result.ForcedSkipped),
		slog.Int("retries", result.RetryCount),
	)
	return result, nil
}

// snapshotCatalog fetches the catalog, saves it for today and reloads the
// latest snapshot, so a second run on the same day keeps the first snapshot.
func (o *Orchestrator) snapshotCatalog(ctx context.Context, genre string, logger *slog.Logger) ([]models.CatalogEntry, error) {
	entries, err := o.catalog.FetchCatalog(ctx, genre)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}

	key := storage.CatalogKey(genre)
	switch err := o.store.Save(ctx, key, o.store.Today(), entries); {
	case errors.Is(err, storage.ErrAlreadyExists):
		logger.Info("catalog snapshot already saved today")
	case err != nil:
		return nil, fmt.Errorf("save catalog: %w", err)
	}

	var catalog []models.CatalogEntry
	if err := o.store.LoadLatest(ctx, key, &catalog); err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return catalog, nil
}

// step handles the book at the current index. It advances the index unless
// the book is retried. A returned error ends the run.
func (o *Orchestrator) step(ctx context.Context, entry models.CatalogEntry, result *models.RunResult, logger *slog.Logger) error {
	name, err := parser.BookNameFromURL(entry.URL)
	if err != nil {
		logger.Warn("skipping book with unusable url", slog.String("url", entry.URL), slog.Any("error", err))
		o.forcedSkip(entry.URL, result)
		return nil
	}
	logger = logger.With(slog.String("book", name), slog.Int("index", o.progress.BookIndex))

	key := storage.BookKey(name)
	fresh, err := o.store.ExistsForToday(ctx, key)
	if err != nil {
		return fmt.Errorf("check %s: %w", name, err)
	}
	if fresh {
		logger.Info("reviews already scraped today")
		result.FreshSkipped++
		o.metrics.IncBook(OutcomeFreshSkip)
		o.advance()
		return nil
	}

	set, err := o.collector.Collect(ctx, entry.URL, true)
	if err != nil {
		return o.failed(ctx, name, err, result, logger)
	}
	set.Book = name

	switch err := o.store.Save(ctx, key, o.store.Today(), set); {
	case errors.Is(err, storage.ErrAlreadyExists):
		logger.Warn("review set already saved today")
	case err != nil:
		return fmt.Errorf("save reviews of %s: %w", name, err)
	}

	if o.renderer != nil {
		if err := o.renderer.Render(name, set); err != nil {
			if errors.Is(err, visualize.ErrEmptySet) {
				logger.Debug("no reviews to plot")
			} else {
				logger.Warn("review plot failed", slog.Any("error", err))
			}
		}
	}

	result.Done++
	result.PageCount += set.Pages
	result.ReviewCount += set.Len()
	o.metrics.IncBook(OutcomeDone)
	o.advance()
	return nil
}

// failed applies the retry rules to a collect error.
func (o *Orchestrator) failed(ctx context.Context, name string, err error, result *models.RunResult, logger *slog.Logger) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	label := scraper.ErrorTypeLabel(err)
	result.ErrorsByType[label]++
	o.metrics.IncError(label)

	if !scraper.IsTransient(err) {
		logger.Warn("abandoning book after permanent error", slog.String("error_type", label), slog.Any("error", err))
		o.forcedSkip(name, result)
		return nil
	}

	o.progress.ConsecutiveFailures++
	failures := o.progress.ConsecutiveFailures
	if o.retry.exhausted(failures) {
		logger.Warn("too many consecutive failures, skipping book",
			slog.Int("failures", failures),
			slog.Any("error", err),
		)
		o.forcedSkip(name, result)
		return nil
	}

	logger.Info("retrying book after transient error",
		slog.Int("attempt", failures),
		slog.String("error_type", label),
		slog.Any("error", err),
	)
	result.RetryCount++
	return o.retry.wait(ctx, failures)
}

func (o *Orchestrator) forcedSkip(name string, result *models.RunResult) {
	result.ForcedSkipped++
	result.SkippedBooks = append(result.SkippedBooks, name)
	o.metrics.IncBook(OutcomeForcedSkip)
	o.advance()
}

func (o *Orchestrator) advance() {
	o.progress.BookIndex++
	o.progress.ConsecutiveFailures = 0
}
