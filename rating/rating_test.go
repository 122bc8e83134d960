package rating

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/aluiziolira/go-scrape-reviews/models"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSimpleAverage(t *testing.T) {
	got, err := SimpleAverage([]models.Review{{Rating: 5}, {Rating: 2}, {Rating: 2}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !approx(got, 3) {
		t.Fatalf("expected 3, got %v", got)
	}

	if _, err := SimpleAverage(nil); !errors.Is(err, ErrNoReviews) {
		t.Fatalf("expected ErrNoReviews, got %v", err)
	}
}

func TestSmoothLikes(t *testing.T) {
	tests := []struct {
		name     string
		input    []int
		want     []int
		smoothed bool
	}{
		{"has zero", []int{0, 10}, []int{1, 11}, true},
		{"no zero", []int{3, 4}, []int{3, 4}, false},
		{"all zero", []int{0, 0, 0}, []int{1, 1, 1}, true},
		{"empty", []int{}, []int{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := append([]int(nil), tt.input...)
			got, smoothed := SmoothLikes(tt.input)
			if smoothed != tt.smoothed {
				t.Fatalf("smoothed = %v, want %v", smoothed, tt.smoothed)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("likes mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(original, tt.input); diff != "" {
				t.Fatalf("input was modified (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBayesianScores(t *testing.T) {
	// likes [1, 11], ratings [5, 1]: Σl = 12, Σlr = 16.
	got := BayesianScores([]int{1, 11}, []int{5, 1})
	want := []float64{(5.0 + 16) / 13, (11.0 + 16) / 23}
	if len(got) != len(want) {
		t.Fatalf("expected %d scores, got %d", len(want), len(got))
	}
	for i := range want {
		if !approx(got[i], want[i]) {
			t.Fatalf("score[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestAggregateSmoothingChangesScores(t *testing.T) {
	reviews := []models.Review{{Rating: 5, Likes: 0}, {Rating: 1, Likes: 10}}

	result, err := Aggregate(reviews)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Smoothed {
		t.Fatalf("expected likes to be smoothed")
	}
	if result.Count != 2 {
		t.Fatalf("expected 2 reviews, got %d", result.Count)
	}
	if !approx(result.Simple, 3) {
		t.Fatalf("expected simple 3, got %v", result.Simple)
	}

	smoothed := BayesianScores([]int{1, 11}, []int{5, 1})
	wantBayesian := (smoothed[0] + smoothed[1]) / 2
	if !approx(result.Bayesian, wantBayesian) {
		t.Fatalf("expected bayesian %v, got %v", wantBayesian, result.Bayesian)
	}

	raw := BayesianScores([]int{0, 10}, []int{5, 1})
	rawMean := (raw[0] + raw[1]) / 2
	if approx(rawMean, result.Bayesian) {
		t.Fatalf("smoothing should change the bayesian rating, both are %v", rawMean)
	}
}

func TestAggregateIgnoresUnrated(t *testing.T) {
	result, err := Aggregate([]models.Review{{Rating: 0, Likes: 100}, {Rating: 4, Likes: 2}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Count != 1 || !approx(result.Simple, 4) || !approx(result.Bayesian, 4) {
		t.Fatalf("unexpected result %+v", result)
	}

	if _, err := Aggregate([]models.Review{{Rating: 0}}); !errors.Is(err, ErrNoReviews) {
		t.Fatalf("expected ErrNoReviews, got %v", err)
	}
}

func TestAggregateBoundedByRatings(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 200; round++ {
		n := 1 + rng.Intn(30)
		reviews := make([]models.Review, n)
		lo, hi := 5, 1
		for i := range reviews {
			r := 1 + rng.Intn(5)
			reviews[i] = models.Review{Rating: r, Likes: rng.Intn(50)}
			if r < lo {
				lo = r
			}
			if r > hi {
				hi = r
			}
		}

		result, err := Aggregate(reviews)
		if err != nil {
			t.Fatalf("round %d: unexpected error: %v", round, err)
		}
		if result.Bayesian < float64(lo)-1e-9 || result.Bayesian > float64(hi)+1e-9 {
			t.Fatalf("round %d: bayesian %v outside [%d, %d]", round, result.Bayesian, lo, hi)
		}
	}
}
