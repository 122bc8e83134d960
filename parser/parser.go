package parser

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-scrape-reviews/models"
)

var (
	digitsRe    = regexp.MustCompile(`\d[\d,]*`)
	avgRatingRe = regexp.MustCompile(`avg rating (\d+(?:\.\d+)?)`)
	numRatingRe = regexp.MustCompile(`([\d,]+) ratings?`)
	publishedRe = regexp.MustCompile(`published (\d{4})`)
)

// reviewRatings maps the star widget's title text to a numeric rating.
var reviewRatings = map[string]int{
	"did not like it": 1,
	"it was ok":       2,
	"liked it":        3,
	"really liked it": 4,
	"it was amazing":  5,
}

// ValidateEntry ensures the extractor captured the required catalog fields.
func ValidateEntry(e *models.CatalogEntry) error {
	if e == nil {
		return fmt.Errorf("entry is nil")
	}
	if strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("entry missing name")
	}
	if strings.TrimSpace(e.URL) == "" {
		return fmt.Errorf("entry missing url for %s", e.Name)
	}
	if e.AvgRating <= 0 {
		return fmt.Errorf("entry missing avg rating for %s", e.Name)
	}
	return nil
}

// BookNameFromURL derives the stable book name from a book URL: the path
// segment after /show/, with dots replaced by underscores.
func BookNameFromURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("parse book url: %w", err)
	}

	segments := make([]string, 0, 4)
	for _, s := range strings.Split(u.Path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}

	name := ""
	for i, s := range segments {
		if s == "show" && i+1 < len(segments) {
			name = segments[i+1]
			break
		}
	}
	if name == "" && len(segments) > 0 {
		name = segments[len(segments)-1]
	}
	if name == "" {
		return "", fmt.Errorf("book url %q has no name segment", raw)
	}
	return strings.ReplaceAll(name, ".", "_"), nil
}

// RatingFromTitle converts the star widget title to a numeric rating.
// An empty title is an unrated review (0, true); unknown titles report false.
func RatingFromTitle(title string) (int, bool) {
	title = strings.ToLower(strings.TrimSpace(title))
	if title == "" {
		return 0, true
	}
	rating, ok := reviewRatings[title]
	return rating, ok
}

// ParseLikes reads counts such as "12 likes" or "1 like". Anything unparsable is 0.
func ParseLikes(text string) int {
	match := digitsRe.FindString(text)
	if match == "" {
		return 0
	}
	n, err := strconv.Atoi(strings.ReplaceAll(match, ",", ""))
	if err != nil {
		return 0
	}
	return n
}

// ParseShelved reads "shelved 12,345 times".
func ParseShelved(text string) int {
	return ParseLikes(text)
}

// ParseRatingDetails reads "avg rating 4.19 — 1,234,567 ratings — published 1965".
// The average rating is required; the count and year default to 0.
func ParseRatingDetails(text string) (avg float64, count int, year int, err error) {
	m := avgRatingRe.FindStringSubmatch(text)
	if m == nil {
		return 0, 0, 0, fmt.Errorf("no avg rating in %q", strings.TrimSpace(text))
	}
	avg, err = strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("parse avg rating: %w", err)
	}
	if m := numRatingRe.FindStringSubmatch(text); m != nil {
		count, _ = strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
	}
	if m := publishedRe.FindStringSubmatch(text); m != nil {
		year, _ = strconv.Atoi(m[1])
	}
	return avg, count, year, nil
}
