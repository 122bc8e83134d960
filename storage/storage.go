// Package storage persists day-stamped artifacts: the genre catalog, each
// book's review set and the processed ratings.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrAlreadyExists is returned by Save when the artifact was already written that day.
	ErrAlreadyExists = errors.New("storage: artifact already exists")
	// ErrNotFound is returned by Load and LoadLatest when no artifact matches.
	ErrNotFound = errors.New("storage: artifact not found")
)

const dayLayout = "2006-01-02"

// Day is a calendar date stamp such as 2024-03-01.
type Day string

// DayOf returns the local calendar date of t.
func DayOf(t time.Time) Day {
	return Day(t.Format(dayLayout))
}

// Key names an artifact. Dir groups artifacts of one book or stage; Name is the
// artifact kind inside it.
type Key struct {
	Dir  string
	Name string
}

func (k Key) String() string {
	if k.Dir == "" {
		return k.Name
	}
	return k.Dir + "/" + k.Name
}

// CatalogKey is the genre catalog snapshot.
func CatalogKey(genre string) Key {
	return Key{Name: genre + "-books-list"}
}

// BookKey is one book's review set.
func BookKey(bookName string) Key {
	return Key{Dir: bookName, Name: "book_review_details"}
}

// ProcessedKey is the ranking stage output of a genre.
func ProcessedKey(genre string) Key {
	return Key{Dir: "processed book rating info", Name: genre + "-processed_book_rating_info"}
}

// Store keeps at most one artifact per key and day.
type Store interface {
	Save(ctx context.Context, key Key, day Day, v any) error
	Load(ctx context.Context, key Key, day Day, v any) error
	LoadLatest(ctx context.Context, key Key, v any) error
	ExistsForToday(ctx context.Context, key Key) (bool, error)
	Today() Day
	Close() error
}

// Clock returns the current time.
type Clock func() time.Time

func notFound(key Key, day Day) error {
	if day == "" {
		return fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return fmt.Errorf("%s@%s: %w", key, day, ErrNotFound)
}

func alreadyExists(key Key, day Day) error {
	return fmt.Errorf("%s@%s: %w", key, day, ErrAlreadyExists)
}
