// Package models defines data structures for the scraper.
package models

// Author describes the author block attached to a catalog entry.
type Author struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	IsOnSite bool   `json:"is_on_site"`
}

// CatalogEntry is one book of a genre shelf, in the order the site ranks it.
type CatalogEntry struct {
	Index         int     `json:"index"`
	Name          string  `json:"name"`
	URL           string  `json:"url"`
	ImageURL      string  `json:"image_url"`
	Author        Author  `json:"author"`
	ShelvedCount  int     `json:"shelved_count"`
	AvgRating     float64 `json:"avg_rating"`
	NumRatings    int     `json:"num_ratings"`
	PublishedYear int     `json:"published_year"`
}

// Review is a single reader review. A Rating of 0 means the reader did not rate the book.
type Review struct {
	Rating int    `json:"rating"`
	Likes  int    `json:"likes"`
	Date   string `json:"date"`
}

// Rated reports whether the review carries a star rating.
func (r Review) Rated() bool {
	return r.Rating > 0
}

// BookReviewSet is the ordered, append-only list of rated reviews of one book.
// A review's index is its position in Reviews; indices continue across pages.
type BookReviewSet struct {
	Book    string   `json:"book"`
	URL     string   `json:"url"`
	Pages   int      `json:"pages"`
	Reviews []Review `json:"reviews"`
}

// NewBookReviewSet returns an empty set for the named book.
func NewBookReviewSet(book, url string) *BookReviewSet {
	return &BookReviewSet{Book: book, URL: url, Reviews: []Review{}}
}

// Append adds reviews in order and drops unrated ones. It returns how many were kept.
func (s *BookReviewSet) Append(reviews ...Review) int {
	kept := 0
	for _, review := range reviews {
		if !review.Rated() {
			continue
		}
		s.Reviews = append(s.Reviews, review)
		kept++
	}
	return kept
}

// Len returns the number of stored reviews.
func (s *BookReviewSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Reviews)
}

// ProcessedRatingInfo holds the derived ratings of one catalog entry.
type ProcessedRatingInfo struct {
	Index                 int     `json:"index"`
	BookName              string  `json:"book_name"`
	AvgRatingSimple       float64 `json:"avg_rating_simple"`
	AvgRatingSiteOfficial float64 `json:"avg_rating_site_official"`
	BayesianAdjRating     float64 `json:"bayesian_adj_rating"`
	ReviewCount           int     `json:"review_count"`
}

// RankRow is one line of the ranking report, ordered by BayesianAdjRating descending.
type RankRow struct {
	Position              int     `csv:"position" json:"position"`
	BookName              string  `csv:"book_name" json:"book_name"`
	BayesianAdjRating     float64 `csv:"bayesian_adj_rating" json:"bayesian_adj_rating"`
	AvgRatingSiteOfficial float64 `csv:"avg_rating_site_official" json:"avg_rating_site_official"`
	AvgRatingSimple       float64 `csv:"avg_rating_simple" json:"avg_rating_simple"`
	ReviewCount           int     `csv:"review_count" json:"review_count"`
}
