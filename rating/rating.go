// Package rating computes simple and likes-weighted Bayesian ratings for a
// book's reviews and compares the site's ranking against ours.
package rating

import (
	"errors"

	"github.com/aluiziolira/go-scrape-reviews/models"
)

// ErrNoReviews is returned when there is nothing to average.
var ErrNoReviews = errors.New("rating: no rated reviews")

// Result is the aggregate rating of one book.
type Result struct {
	Simple   float64
	Bayesian float64
	// Smoothed is true when likes were shifted by one before weighting.
	Smoothed bool
	Count    int
}

// SimpleAverage is the arithmetic mean of the star ratings.
func SimpleAverage(reviews []models.Review) (float64, error) {
	if len(reviews) == 0 {
		return 0, ErrNoReviews
	}
	sum := 0
	for _, review := range reviews {
		sum += review.Rating
	}
	return float64(sum) / float64(len(reviews)), nil
}

// SmoothLikes returns a copy of likes where, if any element is zero, every
// element is incremented by one. The second return reports whether that happened.
func SmoothLikes(likes []int) ([]int, bool) {
	out := make([]int, len(likes))
	copy(out, likes)

	smoothed := false
	for _, l := range likes {
		if l == 0 {
			smoothed = true
			break
		}
	}
	if smoothed {
		for i := range out {
			out[i]++
		}
	}
	return out, smoothed
}

// BayesianScores weights each rating by its likes against the whole set:
//
//	score[i] = (l[i]*r[i] + Σ l[j]*r[j]) / (l[i] + Σ l[j])
//
// likes must already be smoothed so that the denominator is positive.
func BayesianScores(likes, ratings []int) []float64 {
	n := len(likes)
	if len(ratings) < n {
		n = len(ratings)
	}

	var likeSum, weightedSum float64
	for i := 0; i < n; i++ {
		likeSum += float64(likes[i])
		weightedSum += float64(likes[i] * ratings[i])
	}

	scores := make([]float64, n)
	for i := 0; i < n; i++ {
		l := float64(likes[i])
		denominator := l + likeSum
		if denominator == 0 {
			scores[i] = float64(ratings[i])
			continue
		}
		scores[i] = (l*float64(ratings[i]) + weightedSum) / denominator
	}
	return scores
}

// Aggregate computes the simple and Bayesian-adjusted ratings of reviews.
// Unrated reviews are ignored.
func Aggregate(reviews []models.Review) (Result, error) {
	rated := make([]models.Review, 0, len(reviews))
	for _, review := range reviews {
		if review.Rated() {
			rated = append(rated, review)
		}
	}

	simple, err := SimpleAverage(rated)
	if err != nil {
		return Result{}, err
	}

	likes := make([]int, len(rated))
	ratings := make([]int, len(rated))
	for i, review := range rated {
		likes[i] = review.Likes
		ratings[i] = review.Rating
	}
	likes, smoothed := SmoothLikes(likes)

	scores := BayesianScores(likes, ratings)
	var total float64
	for _, score := range scores {
		total += score
	}

	return Result{
		Simple:   simple,
		Bayesian: total / float64(len(scores)),
		Smoothed: smoothed,
		Count:    len(rated),
	}, nil
}
