package visualize

import (
	"errors"
	"image/png"
	"os"
	"testing"

	"github.com/aluiziolira/go-scrape-reviews/models"
)

func TestNormalizeLikes(t *testing.T) {
	tests := []struct {
		name    string
		reviews []models.Review
		want    []float64
	}{
		{
			name:    "spread",
			reviews: []models.Review{{Likes: 0}, {Likes: 5}, {Likes: 10}},
			want:    []float64{100, 550, 1000},
		},
		{
			name:    "equal likes",
			reviews: []models.Review{{Likes: 3}, {Likes: 3}},
			want:    []float64{1000, 1000},
		},
		{
			name:    "empty",
			reviews: nil,
			want:    []float64{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeLikes(tt.reviews)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d sizes, got %d", len(tt.want), len(got))
			}
			for i := range got {
				if diff := got[i] - tt.want[i]; diff > 1e-9 || diff < -1e-9 {
					t.Fatalf("size[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestRenderWritesPNG(t *testing.T) {
	renderer := NewScatterRenderer(t.TempDir())
	set := models.NewBookReviewSet("Dune", "https://example.test/book/show/1.Dune")
	set.Append(
		models.Review{Rating: 5, Likes: 12},
		models.Review{Rating: 1, Likes: 0},
		models.Review{Rating: 3, Likes: 4},
	)

	if err := renderer.Render("Dune", set); err != nil {
		t.Fatalf("render: %v", err)
	}

	f, err := os.Open(renderer.Path("Dune"))
	if err != nil {
		t.Fatalf("open plot: %v", err)
	}
	defer f.Close()

	cfg, err := png.DecodeConfig(f)
	if err != nil {
		t.Fatalf("decode plot: %v", err)
	}
	if cfg.Width != width || cfg.Height != height {
		t.Fatalf("unexpected plot size %dx%d", cfg.Width, cfg.Height)
	}

	// Rendering again replaces the plot.
	if err := renderer.Render("Dune", set); err != nil {
		t.Fatalf("second render: %v", err)
	}
}

func TestRenderDeterministic(t *testing.T) {
	reviews := []models.Review{{Rating: 2, Likes: 1}, {Rating: 4, Likes: 8}}
	a := Plot("Dune", reviews)
	b := Plot("Dune", reviews)
	if string(a.Pix) != string(b.Pix) {
		t.Fatalf("plots of the same reviews differ")
	}
}

func TestRenderEmpty(t *testing.T) {
	renderer := NewScatterRenderer(t.TempDir())
	err := renderer.Render("Empty", models.NewBookReviewSet("Empty", ""))
	if !errors.Is(err, ErrEmptySet) {
		t.Fatalf("expected ErrEmptySet, got %v", err)
	}
}
