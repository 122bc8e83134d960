// Package visualize renders a book's reviews as a scatter plot: one circle per
// review, sized by likes and coloured by star rating.
package visualize

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"math/rand"
	"os"
	"path/filepath"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/aluiziolira/go-scrape-reviews/models"
)

const (
	// Seed keeps circle positions identical between renders of the same set.
	Seed = 19680801

	minSize = 100
	maxSize = 1000

	width   = 800
	height  = 600
	margin  = 40
	legendW = 150
)

// ErrEmptySet is returned when there are no reviews to plot.
var ErrEmptySet = errors.New("visualize: no reviews to plot")

var ratingColors = map[int]color.NRGBA{
	1: {R: 0xff, A: 0xff},
	2: {B: 0xff, A: 0xff},
	3: {R: 0xff, G: 0xff, A: 0xff},
	4: {A: 0xff},
	5: {G: 0x80, A: 0xff},
}

var ratingLabels = []string{"did not like it", "it was ok", "liked it", "really liked it", "it was amazing"}

// ScatterRenderer writes <outDir>/<book>/<book>.png.
type ScatterRenderer struct {
	outDir string
}

// NewScatterRenderer returns a renderer writing under outDir.
func NewScatterRenderer(outDir string) *ScatterRenderer {
	return &ScatterRenderer{outDir: outDir}
}

// Path returns where the plot of bookName is written.
func (r *ScatterRenderer) Path(bookName string) string {
	return filepath.Join(r.outDir, bookName, bookName+".png")
}

// Render draws the plot for set and writes it as PNG, replacing an older one.
func (r *ScatterRenderer) Render(bookName string, set *models.BookReviewSet) error {
	if set.Len() == 0 {
		return fmt.Errorf("%s: %w", bookName, ErrEmptySet)
	}

	img := Plot(bookName, set.Reviews)

	path := r.Path(bookName)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create plot file: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode plot: %w", err)
	}
	return f.Close()
}

// Plot draws the scatter plot in memory.
func Plot(title string, reviews []models.Review) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	sizes := NormalizeLikes(reviews)
	rng := rand.New(rand.NewSource(Seed))
	plotW := width - 2*margin - legendW
	plotH := height - 2*margin

	for i, review := range reviews {
		x := margin + int(rng.Float64()*float64(plotW))
		y := margin + int(rng.Float64()*float64(plotH))
		fill := colorFor(review.Rating)
		fill.A = 0x80
		radius := int(math.Sqrt(sizes[i]) / 2 * 1.5)
		drawCircle(img, image.Pt(x, y), radius, fill)
	}

	drawText(img, width/2-len(title)*basicfont.Face7x13.Advance/2, margin/2+6, title)
	drawLegend(img, width-legendW, margin)
	return img
}

// NormalizeLikes maps likes linearly onto [100, 1000]. When every review has
// the same number of likes all sizes are 1000.
func NormalizeLikes(reviews []models.Review) []float64 {
	sizes := make([]float64, len(reviews))
	if len(reviews) == 0 {
		return sizes
	}

	lo, hi := reviews[0].Likes, reviews[0].Likes
	for _, review := range reviews[1:] {
		if review.Likes < lo {
			lo = review.Likes
		}
		if review.Likes > hi {
			hi = review.Likes
		}
	}

	if hi == lo {
		for i := range sizes {
			sizes[i] = maxSize
		}
		return sizes
	}

	a := float64(maxSize-minSize) / float64(hi-lo)
	b := maxSize - a*float64(hi)
	for i, review := range reviews {
		sizes[i] = a*float64(review.Likes) + b
	}
	return sizes
}

func colorFor(rating int) color.NRGBA {
	if c, ok := ratingColors[rating]; ok {
		return c
	}
	return ratingColors[5]
}

func drawLegend(img draw.Image, x, y int) {
	for i, label := range ratingLabels {
		row := y + i*20
		drawCircle(img, image.Pt(x+6, row), 5, colorFor(i+1))
		drawText(img, x+16, row+4, label)
	}
}

func drawText(img draw.Image, x, y int, text string) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.Black,
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

func drawCircle(img draw.Image, center image.Point, radius int, fill color.NRGBA) {
	if radius < 1 {
		radius = 1
	}
	mask := &circle{center: center, radius: radius}
	draw.DrawMask(img, mask.Bounds(), image.NewUniform(fill), image.Point{}, mask, mask.Bounds().Min, draw.Over)
}

type circle struct {
	center image.Point
	radius int
}

func (c *circle) ColorModel() color.Model {
	return color.AlphaModel
}

func (c *circle) Bounds() image.Rectangle {
	return image.Rect(c.center.X-c.radius, c.center.Y-c.radius, c.center.X+c.radius, c.center.Y+c.radius)
}

func (c *circle) At(x, y int) color.Color {
	dx := float64(x-c.center.X) + 0.5
	dy := float64(y-c.center.Y) + 0.5
	if dx*dx+dy*dy < float64(c.radius*c.radius) {
		return color.Alpha{A: 0xff}
	}
	return color.Alpha{}
}
