package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/go-scrape-reviews/models"
	"github.com/aluiziolira/go-scrape-reviews/parser"
)

const (
	// seenPageLabels bounds the per-book memory of consumed page labels.
	seenPageLabels = 256
	// maxDuplicatePages ends pagination when the site keeps serving pages
	// that were already consumed.
	maxDuplicatePages = 3
)

// ReviewExtractor maps one page of content into reviews.
type ReviewExtractor interface {
	ExtractReviews(content []byte) ([]models.Review, error)
}

// Paginator walks every review page of a book.
type Paginator struct {
	fetcher   PageFetcher
	extractor ReviewExtractor
	progress  io.Writer
	metrics   *Metrics
	logger    *slog.Logger
}

// NewPaginator wires a paginator. progress receives a "###" per consumed page
// and may be nil.
func NewPaginator(fetcher PageFetcher, extractor ReviewExtractor, progress io.Writer, opts ...Option) *Paginator {
	o := buildOptions(opts)
	if progress == nil {
		progress = io.Discard
	}
	return &Paginator{
		fetcher:   fetcher,
		extractor: extractor,
		progress:  progress,
		metrics:   o.metrics,
		logger:    o.logger,
	}
}

// Collect returns every rated review of the book in document order. A book
// without a review block yields an empty set. Transient fetch errors are
// returned unchanged for the caller to retry.
func (p *Paginator) Collect(ctx context.Context, bookURL string, resetSession bool) (*models.BookReviewSet, error) {
	name, err := parser.BookNameFromURL(bookURL)
	if err != nil {
		return nil, err
	}
	set := models.NewBookReviewSet(name, bookURL)
	logger := p.logger.With(slog.String("book", name))

	logger.Info("review scraping started")
	content, ok, err := p.fetcher.FirstPage(ctx, bookURL, resetSession)
	if err != nil {
		return nil, fmt.Errorf("first review page of %s: %w", name, err)
	}
	if !ok {
		logger.Warn("book has no review block")
		return set, nil
	}

	fmt.Fprint(p.progress, "[")
	defer fmt.Fprint(p.progress, "]\n")

	if err := p.consume(set, content); err != nil {
		return nil, err
	}

	seen, err := lru.New[string, struct{}](seenPageLabels)
	if err != nil {
		return nil, fmt.Errorf("page label cache: %w", err)
	}
	pages := 1
	duplicates := 0

	for {
		page, err := p.fetcher.NextPage(ctx, bookURL)
		if errors.Is(err, ErrNoSuchPage) {
			logger.Info("review page vanished, treating as last page", slog.Any("error", err))
			break
		}
		if err != nil {
			return nil, fmt.Errorf("review page %d of %s: %w", pages+1, name, err)
		}
		if !page.HasNext {
			break
		}

		if page.Label != "" {
			if seen.Contains(page.Label) {
				duplicates++
				logger.Warn("skipping already consumed review page",
					slog.String("page", page.Label),
					slog.Int("consecutive", duplicates),
				)
				if duplicates >= maxDuplicatePages {
					logger.Warn("review pages stopped advancing, ending pagination")
					break
				}
				continue
			}
			seen.Add(page.Label, struct{}{})
		}
		duplicates = 0

		if err := p.consume(set, page.Content); err != nil {
			return nil, err
		}
		pages++
		logger.Debug("review page consumed",
			slog.String("page", page.Label),
			slog.Int("reviews", set.Len()),
		)
	}

	set.Pages = pages
	logger.Info("review scraping finished",
		slog.Int("pages", pages),
		slog.Int("reviews", set.Len()),
	)
	return set, nil
}

func (p *Paginator) consume(set *models.BookReviewSet, content []byte) error {
	reviews, err := p.extractor.ExtractReviews(content)
	if err != nil {
		return fmt.Errorf("extract reviews of %s: %w", set.Book, err)
	}
	kept := set.Append(reviews...)
	p.metrics.AddPage(kept)
	fmt.Fprint(p.progress, "###")
	return nil
}
