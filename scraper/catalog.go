package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/aluiziolira/go-scrape-reviews/config"
	"github.com/aluiziolira/go-scrape-reviews/models"
	"github.com/aluiziolira/go-scrape-reviews/parser"
)

// CatalogExtractor maps a shelf page into catalog entries.
type CatalogExtractor interface {
	ExtractCatalogEntries(content []byte, base *url.URL) ([]models.CatalogEntry, error)
}

// CatalogScraper fetches the most popular books of a genre shelf.
type CatalogScraper struct {
	cfg       *config.Config
	base      *url.URL
	extractor CatalogExtractor
	opts      options
}

// NewCatalogScraper builds a catalog scraper. A nil extractor uses parser.Extractor.
func NewCatalogScraper(cfg *config.Config, extractor CatalogExtractor, opts ...Option) (*CatalogScraper, error) {
	base, err := parseBase(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	if extractor == nil {
		extractor = parser.NewExtractor(o.logger)
	}
	return &CatalogScraper{cfg: cfg, base: base, extractor: extractor, opts: o}, nil
}

// ShelfURL returns the shelf page of genre.
func (c *CatalogScraper) ShelfURL(genre string) string {
	shelf := *c.base
	shelf.Path = strings.TrimSuffix(shelf.Path, "/") + "/shelf/show/" + url.PathEscape(genre)
	return shelf.String()
}

// FetchCatalog returns the genre's books in site order with contiguous indices.
func (c *CatalogScraper) FetchCatalog(ctx context.Context, genre string) ([]models.CatalogEntry, error) {
	session, err := newSession(c.cfg, c.opts)
	if err != nil {
		return nil, err
	}
	defer session.close()

	target := c.ShelfURL(genre)
	c.opts.logger.Info("scraping genre catalog",
		slog.String("genre", genre),
		slog.String("url", target),
	)

	body, err := session.fetch(ctx, "catalog", target, c.cfg.Timeout)
	if err != nil {
		return nil, err
	}

	base, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("parse shelf url: %w", err)
	}
	entries, err := c.extractor.ExtractCatalogEntries(body, base)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].Index = i
	}

	c.opts.logger.Info("catalog scraped",
		slog.String("genre", genre),
		slog.Int("books", len(entries)),
	)
	return entries, nil
}
