package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/aluiziolira/go-scrape-reviews/models"
	"github.com/aluiziolira/go-scrape-reviews/parser"
	"github.com/aluiziolira/go-scrape-reviews/rating"
	"github.com/aluiziolira/go-scrape-reviews/storage"
)

// ErrCatalogMissing is returned by Rank when the genre was not scraped today.
var ErrCatalogMissing = errors.New("pipeline: no catalog snapshot for today, run scrape first")

// Ranking is the output of one rank stage.
type Ranking struct {
	Genre      string
	Infos      []models.ProcessedRatingInfo
	Rows       []models.RankRow
	Comparison rating.Comparison
	// Skipped lists books without usable reviews.
	Skipped []string
}

// Ranker re-ranks a scraped genre by Bayesian-adjusted rating.
type Ranker struct {
	store  storage.Store
	report OutputWriter
	table  io.Writer
	logger *slog.Logger
}

// RankerOption customises a Ranker.
type RankerOption func(*Ranker)

// WithReport writes the ranking rows to w.
func WithReport(w OutputWriter) RankerOption {
	return func(r *Ranker) { r.report = w }
}

// WithTable prints the ranking as a table to w.
func WithTable(w io.Writer) RankerOption {
	return func(r *Ranker) { r.table = w }
}

// WithRankLogger sets the logger. Defaults to slog.Default().
func WithRankLogger(l *slog.Logger) RankerOption {
	return func(r *Ranker) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRanker returns a Ranker reading from store.
func NewRanker(store storage.Store, opts ...RankerOption) *Ranker {
	r := &Ranker{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rank loads today's catalog of genre and the latest review set of each book,
// aggregates their ratings and compares the site's top book with ours.
func (r *Ranker) Rank(ctx context.Context, genre string) (*Ranking, error) {
	logger := r.logger.With(slog.String("genre", genre))

	var catalog []models.CatalogEntry
	err := r.store.Load(ctx, storage.CatalogKey(genre), r.store.Today(), &catalog)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("genre %q: %w", genre, ErrCatalogMissing)
	}
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	ranking := &Ranking{Genre: genre, Skipped: []string{}}
	official := officialTop(catalog)
	tuples := make([]rating.Tuple, 0, len(catalog))
	counts := make(map[string]int, len(catalog))

	for i, entry := range catalog {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info, ok, err := r.rateBook(ctx, entry, logger)
		if err != nil {
			return nil, err
		}
		if !ok {
			skipped := info.BookName
			if skipped == "" {
				skipped = entry.Name
			}
			ranking.Skipped = append(ranking.Skipped, skipped)
			if i == 0 {
				logger.Warn("official top book could not be rated", slog.String("book", official.Book))
			}
			continue
		}
		ranking.Infos = append(ranking.Infos, info)
		counts[info.BookName] = info.ReviewCount
		tuple := rating.Tuple{
			Bayesian: info.BayesianAdjRating,
			Official: info.AvgRatingSiteOfficial,
			Simple:   info.AvgRatingSimple,
			Book:     info.BookName,
		}
		if i == 0 {
			official = tuple
		}
		tuples = append(tuples, tuple)
	}

	if len(tuples) == 0 {
		return nil, fmt.Errorf("genre %q has no scraped reviews: %w", genre, rating.ErrNoReviews)
	}

	switch err := r.store.Save(ctx, storage.ProcessedKey(genre), r.store.Today(), ranking.Infos); {
	case errors.Is(err, storage.ErrAlreadyExists):
		logger.Info("processed ratings already saved today")
	case err != nil:
		return nil, fmt.Errorf("save processed ratings: %w", err)
	}

	comparison, err := rating.Compare(official, tuples)
	if err != nil {
		return nil, err
	}
	ranking.Comparison = comparison
	ranking.Rows = rankRows(comparison.Sorted, counts)

	logger.Info("top book comparison",
		slog.String("official_top", comparison.OfficialTop.Book),
		slog.Float64("official_rating", comparison.OfficialTop.Official),
		slog.String("calculated_top", comparison.CalculatedTop.Book),
		slog.Float64("calculated_rating", comparison.CalculatedTop.Bayesian),
		slog.Bool("agree", comparison.Agree()),
	)

	if r.report != nil {
		if err := r.report.Write(ranking.Rows); err != nil {
			return nil, fmt.Errorf("write report: %w", err)
		}
		if err := r.report.Validate(); err != nil {
			return nil, fmt.Errorf("validate report: %w", err)
		}
	}
	if r.table != nil {
		renderTable(r.table, ranking)
	}
	return ranking, nil
}

// officialTop is the first catalog entry with only its site rating filled in.
func officialTop(catalog []models.CatalogEntry) rating.Tuple {
	if len(catalog) == 0 {
		return rating.Tuple{}
	}
	first := catalog[0]
	name, err := parser.BookNameFromURL(first.URL)
	if err != nil {
		name = first.Name
	}
	return rating.Tuple{Book: name, Official: first.AvgRating}
}

func (r *Ranker) rateBook(ctx context.Context, entry models.CatalogEntry, logger *slog.Logger) (models.ProcessedRatingInfo, bool, error) {
	name, err := parser.BookNameFromURL(entry.URL)
	if err != nil {
		logger.Warn("skipping book with unusable url", slog.String("url", entry.URL), slog.Any("error", err))
		return models.ProcessedRatingInfo{}, false, nil
	}

	skip := models.ProcessedRatingInfo{BookName: name}

	var set models.BookReviewSet
	err = r.store.LoadLatest(ctx, storage.BookKey(name), &set)
	if errors.Is(err, storage.ErrNotFound) {
		logger.Warn("no review set for book, skipping", slog.String("book", name))
		return skip, false, nil
	}
	if err != nil {
		return models.ProcessedRatingInfo{}, false, fmt.Errorf("load reviews of %s: %w", name, err)
	}

	result, err := rating.Aggregate(set.Reviews)
	if errors.Is(err, rating.ErrNoReviews) {
		logger.Warn("book has no rated reviews, skipping", slog.String("book", name))
		return skip, false, nil
	}
	if err != nil {
		return models.ProcessedRatingInfo{}, false, fmt.Errorf("rate %s: %w", name, err)
	}
	if result.Smoothed {
		logger.Debug("likes smoothed", slog.String("book", name))
	}

	return models.ProcessedRatingInfo{
		Index:                 entry.Index,
		BookName:              name,
		AvgRatingSimple:       result.Simple,
		AvgRatingSiteOfficial: entry.AvgRating,
		BayesianAdjRating:     result.Bayesian,
		ReviewCount:           result.Count,
	}, true, nil
}

// rankRows turns the ascending sort into report rows, best first.
func rankRows(sorted []rating.Tuple, counts map[string]int) []models.RankRow {
	rows := make([]models.RankRow, 0, len(sorted))
	for i := len(sorted) - 1; i >= 0; i-- {
		t := sorted[i]
		rows = append(rows, models.RankRow{
			Position:              len(rows) + 1,
			BookName:              t.Book,
			BayesianAdjRating:     t.Bayesian,
			AvgRatingSiteOfficial: t.Official,
			AvgRatingSimple:       t.Simple,
			ReviewCount:           counts[t.Book],
		})
	}
	return rows
}

func renderTable(w io.Writer, ranking *Ranking) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("%s: official top %q, calculated top %q",
		ranking.Genre, ranking.Comparison.OfficialTop.Book, ranking.Comparison.CalculatedTop.Book))
	t.AppendHeader(table.Row{"#", "Book", "Bayesian", "Official", "Simple", "Reviews"})
	for _, row := range ranking.Rows {
		t.AppendRow(table.Row{
			row.Position,
			row.BookName,
			fmt.Sprintf("%.3f", row.BayesianAdjRating),
			fmt.Sprintf("%.2f", row.AvgRatingSiteOfficial),
			fmt.Sprintf("%.3f", row.AvgRatingSimple),
			row.ReviewCount,
		})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}
