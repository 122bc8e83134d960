package parser

import (
	"net/url"
	"testing"

	"github.com/aluiziolira/go-scrape-reviews/models"
)

func TestValidateEntry(t *testing.T) {
	tests := []struct {
		name    string
		entry   *models.CatalogEntry
		wantErr bool
	}{
		{
			name: "valid entry",
			entry: &models.CatalogEntry{
				Name:      "Dune",
				URL:       "https://www.goodreads.com/book/show/234225.Dune",
				AvgRating: 4.25,
			},
			wantErr: false,
		},
		{
			name:    "nil entry",
			entry:   nil,
			wantErr: true,
		},
		{
			name: "missing name",
			entry: &models.CatalogEntry{
				URL:       "https://www.goodreads.com/book/show/234225.Dune",
				AvgRating: 4.25,
			},
			wantErr: true,
		},
		{
			name: "missing url",
			entry: &models.CatalogEntry{
				Name:      "Dune",
				AvgRating: 4.25,
			},
			wantErr: true,
		},
		{
			name: "missing rating",
			entry: &models.CatalogEntry{
				Name: "Dune",
				URL:  "https://www.goodreads.com/book/show/234225.Dune",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEntry(tt.entry)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateEntry() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBookNameFromURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		wantErr  bool
	}{
		{
			name:     "dash slug",
			input:    "https://www.goodreads.com/book/show/6148028-catching-fire",
			expected: "6148028-catching-fire",
		},
		{
			name:     "dotted slug",
			input:    "https://www.goodreads.com/book/show/234225.Dune",
			expected: "234225_Dune",
		},
		{
			name:     "query string ignored",
			input:    "https://www.goodreads.com/book/show/5470.1984?from_search=true",
			expected: "5470_1984",
		},
		{
			name:     "no show segment",
			input:    "https://example.test/books/42.Hitchhiker",
			expected: "42_Hitchhiker",
		},
		{
			name:    "no path",
			input:   "https://www.goodreads.com/",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BookNameFromURL(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("BookNameFromURL(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.expected {
				t.Errorf("BookNameFromURL(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestRatingFromTitle(t *testing.T) {
	tests := []struct {
		input    string
		expected int
		ok       bool
	}{
		{input: "did not like it", expected: 1, ok: true},
		{input: "it was ok", expected: 2, ok: true},
		{input: "liked it", expected: 3, ok: true},
		{input: "really liked it", expected: 4, ok: true},
		{input: "it was amazing", expected: 5, ok: true},
		{input: " It Was Amazing ", expected: 5, ok: true},
		{input: "", expected: 0, ok: true},
		{input: "meh", expected: 0, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := RatingFromTitle(tt.input)
			if got != tt.expected || ok != tt.ok {
				t.Errorf("RatingFromTitle(%q) = %d, %v, want %d, %v", tt.input, got, ok, tt.expected, tt.ok)
			}
		})
	}
}

func TestParseLikes(t *testing.T) {
	tests := []struct {
		input    string
		expected int
	}{
		{input: "12 likes", expected: 12},
		{input: "1 like", expected: 1},
		{input: "1,204 likes", expected: 1204},
		{input: "", expected: 0},
		{input: "likes", expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLikes(tt.input); got != tt.expected {
				t.Errorf("ParseLikes(%q) = %d, want %d", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParseRatingDetails(t *testing.T) {
	avg, count, year, err := ParseRatingDetails("avg rating 4.19 — 1,234,567 ratings — published 1965")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if avg != 4.19 || count != 1234567 || year != 1965 {
		t.Fatalf("got %v/%d/%d, want 4.19/1234567/1965", avg, count, year)
	}

	if _, _, _, err := ParseRatingDetails("no numbers here"); err == nil {
		t.Fatalf("expected error without an avg rating")
	}
}

const catalogPage = `<html><body>
<div class="elementList">
  <a class="leftAlignedImage" href="/book/show/234225.Dune"><img src="https://images.test/dune.jpg"/></a>
  <a class="bookTitle" href="/book/show/234225.Dune">Dune (Dune, #1)</a>
  <div class="authorName__container">
    <a class="authorName" href="https://www.goodreads.com/author/show/58.Frank_Herbert"><span>Frank Herbert</span></a>
  </div>
  <span class="greyText smallText">avg rating 4.25 — 1,087,120 ratings — published 1965</span>
  <a class="smallText" href="/shelf/users">shelved 12,310 times</a>
</div>
<div class="elementList">
  <span>advertising block without a title</span>
</div>
<div class="elementList">
  <a class="leftAlignedImage" href="/book/show/1.Broken"><img src="x.jpg"/></a>
  <a class="bookTitle" href="/book/show/1.Broken">Broken Entry</a>
  <span class="greyText smallText">no rating text</span>
</div>
<div class="elementList">
  <a class="leftAlignedImage" href="/book/show/5470.1984"><img src="1984.jpg"/></a>
  <a class="bookTitle" href="/book/show/5470.1984">1984</a>
  <div class="authorName__container">
    <a class="authorName" href="/author/show/3706.George_Orwell"><span>George Orwell</span></a>
    <span class="greyText">(Goodreads Author)</span>
  </div>
  <span class="greyText smallText">avg rating 4.19 — 4,212 ratings — published 1949</span>
</div>
</body></html>`

func TestExtractCatalogEntries(t *testing.T) {
	base, _ := url.Parse("https://www.goodreads.com/shelf/show/science-fiction")
	entries, err := NewExtractor(nil).ExtractCatalogEntries([]byte(catalogPage), base)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2: %+v", len(entries), entries)
	}

	dune := entries[0]
	if dune.Index != 0 || dune.Name != "Dune (Dune, #1)" {
		t.Fatalf("unexpected first entry: %+v", dune)
	}
	if dune.URL != "https://www.goodreads.com/book/show/234225.Dune" {
		t.Fatalf("url = %q", dune.URL)
	}
	if dune.AvgRating != 4.25 || dune.NumRatings != 1087120 || dune.PublishedYear != 1965 {
		t.Fatalf("rating details = %+v", dune)
	}
	if dune.ShelvedCount != 12310 {
		t.Fatalf("shelved = %d, want 12310", dune.ShelvedCount)
	}
	if dune.Author.Name != "Frank Herbert" || dune.Author.IsOnSite {
		t.Fatalf("author = %+v", dune.Author)
	}

	orwell := entries[1]
	if orwell.Index != 1 {
		t.Fatalf("indices must be contiguous, got %d", orwell.Index)
	}
	if orwell.ImageURL != "https://www.goodreads.com/shelf/show/1984.jpg" {
		t.Fatalf("image url = %q", orwell.ImageURL)
	}
	if !orwell.Author.IsOnSite || orwell.Author.URL != "https://www.goodreads.com/author/show/3706.George_Orwell" {
		t.Fatalf("author = %+v", orwell.Author)
	}
}

const reviewPage = `<div id="bookReviews">
<div class="friendReviews elementListBrown">
  <span class="staticStars notranslate" title="it was amazing"></span>
  <a class="reviewDate createdAt right">Mar 02, 2019</a>
  <span class="likesCount">12 likes</span>
</div>
<div class="friendReviews elementListBrown">
  <a class="reviewDate">Apr 11, 2020</a>
  <span class="likesCount">99 likes</span>
</div>
<div class="friendReviews elementListBrown">
  <span class="staticStars notranslate" title="it was ok"></span>
  <a class="reviewDate">May 05, 2021</a>
</div>
<div class="friendReviews elementListBrown">
  <span class="staticStars notranslate" title="unheard of"></span>
  <a class="reviewDate">Jun 06, 2021</a>
</div>
<div class="friendReviews elementListBrown">
  <span class="staticStars notranslate" title="did not like it"></span>
  <a class="reviewDate createdAt right">Jul 07, 2022</a>
  <span class="likesCount">1 like</span>
</div>
</div>`

func TestExtractReviews(t *testing.T) {
	reviews, err := NewExtractor(nil).ExtractReviews([]byte(reviewPage))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	want := []models.Review{
		{Rating: 5, Likes: 12, Date: "Mar 02, 2019"},
		{Rating: 2, Likes: 0, Date: "May 05, 2021"},
		{Rating: 1, Likes: 1, Date: "Jul 07, 2022"},
	}
	if len(reviews) != len(want) {
		t.Fatalf("reviews = %+v, want %+v", reviews, want)
	}
	for i := range want {
		if reviews[i] != want[i] {
			t.Errorf("review %d = %+v, want %+v", i, reviews[i], want[i])
		}
	}
}
