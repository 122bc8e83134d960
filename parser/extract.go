// Package parser maps raw goodreads pages into catalog entries and reviews.
package parser

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-reviews/models"
)

// Extractor turns page content into typed records. Malformed records are
// skipped with a warning; only an unparsable document is an error.
type Extractor struct {
	logger *slog.Logger
}

// NewExtractor returns an extractor logging to logger, or slog.Default when nil.
func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger}
}

// ExtractCatalogEntries reads the book blocks of a shelf page in site order.
// Relative links are resolved against base.
func (x *Extractor) ExtractCatalogEntries(content []byte, base *url.URL) ([]models.CatalogEntry, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse catalog page: %w", err)
	}

	entries := make([]models.CatalogEntry, 0, 50)
	doc.Find("div.elementList").Each(func(_ int, block *goquery.Selection) {
		name := strings.TrimSpace(block.Find("a.bookTitle").First().Text())
		if name == "" {
			x.logger.Debug("catalog block without a book title")
			return
		}

		entry := models.CatalogEntry{Index: len(entries), Name: name}

		link := block.Find("a.leftAlignedImage").First()
		if href, ok := link.Attr("href"); ok {
			entry.URL = resolve(base, href)
		}
		if src, ok := link.Find("img").First().Attr("src"); ok {
			entry.ImageURL = resolve(base, src)
		}

		container := block.Find("div.authorName__container").First()
		author := container.Find("a.authorName").First()
		entry.Author.Name = strings.TrimSpace(author.Find("span").First().Text())
		if href, ok := author.Attr("href"); ok {
			entry.Author.URL = resolve(base, href)
		}
		entry.Author.IsOnSite = container.Find("span.greyText").Length() > 0

		if shelf := block.Find("a.smallText").First(); shelf.Length() > 0 {
			entry.ShelvedCount = ParseShelved(shelf.Text())
		}

		details := block.Find("span.greyText.smallText").First().Text()
		avg, count, year, err := ParseRatingDetails(details)
		if err != nil {
			x.logger.Warn("skipping catalog entry",
				slog.String("book", name),
				slog.Any("error", err),
			)
			return
		}
		entry.AvgRating = avg
		entry.NumRatings = count
		entry.PublishedYear = year

		if err := ValidateEntry(&entry); err != nil {
			x.logger.Warn("skipping catalog entry",
				slog.String("book", name),
				slog.Any("error", err),
			)
			return
		}
		entries = append(entries, entry)
	})

	return entries, nil
}

// ExtractReviews reads the review blocks of one review page in document order.
// Unrated reviews are dropped.
func (x *Extractor) ExtractReviews(content []byte) ([]models.Review, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse review page: %w", err)
	}

	reviews := make([]models.Review, 0, 30)
	doc.Find("div.friendReviews.elementListBrown").Each(func(i int, block *goquery.Selection) {
		title := ""
		if stars := block.Find("span.staticStars.notranslate"); stars.Length() == 1 {
			title, _ = stars.Attr("title")
		}
		rating, ok := RatingFromTitle(title)
		if !ok {
			x.logger.Warn("skipping review with unknown rating",
				slog.Int("position", i),
				slog.String("title", title),
			)
			return
		}
		if rating == 0 {
			return
		}

		likes := 0
		if count := block.Find("span.likesCount").First(); count.Length() > 0 {
			likes = ParseLikes(count.Text())
		}

		date := block.Find("a.reviewDate.createdAt.right").First()
		if date.Length() == 0 {
			date = block.Find("a.reviewDate").First()
		}

		reviews = append(reviews, models.Review{
			Rating: rating,
			Likes:  likes,
			Date:   strings.TrimSpace(date.Text()),
		})
	})

	return reviews, nil
}

func resolve(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if base == nil || ref == "" {
		return ref
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(parsed).String()
}
