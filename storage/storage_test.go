package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type payload struct {
	Book  string `json:"book"`
	Count int    `json:"count"`
}

func fixedClock(day string) Clock {
	t, err := time.ParseInLocation(dayLayout, day, time.Local)
	if err != nil {
		panic(err)
	}
	return func() time.Time { return t.Add(9 * time.Hour) }
}

// openStores returns both backends over fresh temp dirs so every behaviour is
// checked against each.
func openStores(t *testing.T, clock Clock) map[string]Store {
	t.Helper()

	fs, err := NewFileStore(t.TempDir(), clock)
	require.NoError(t, err)

	db, err := OpenSQLite(filepath.Join(t.TempDir(), "artifacts.db"), clock)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return map[string]Store{"file": fs, "sqlite": db}
}

func TestStoreSaveLoad(t *testing.T) {
	ctx := context.Background()
	for name, store := range openStores(t, fixedClock("2024-03-01")) {
		t.Run(name, func(t *testing.T) {
			key := BookKey("Dune")
			day := store.Today()
			require.Equal(t, Day("2024-03-01"), day)

			exists, err := store.ExistsForToday(ctx, key)
			require.NoError(t, err)
			require.False(t, exists)

			require.NoError(t, store.Save(ctx, key, day, payload{Book: "Dune", Count: 3}))

			exists, err = store.ExistsForToday(ctx, key)
			require.NoError(t, err)
			require.True(t, exists)

			var got payload
			require.NoError(t, store.Load(ctx, key, day, &got))
			require.Equal(t, payload{Book: "Dune", Count: 3}, got)
		})
	}
}

func TestStoreSaveTwiceSameDay(t *testing.T) {
	ctx := context.Background()
	for name, store := range openStores(t, fixedClock("2024-03-01")) {
		t.Run(name, func(t *testing.T) {
			key := CatalogKey("fantasy")
			day := store.Today()
			require.NoError(t, store.Save(ctx, key, day, payload{Book: "first"}))

			err := store.Save(ctx, key, day, payload{Book: "second"})
			require.ErrorIs(t, err, ErrAlreadyExists)

			var got payload
			require.NoError(t, store.Load(ctx, key, day, &got))
			require.Equal(t, "first", got.Book)
		})
	}
}

func TestStoreLoadLatest(t *testing.T) {
	ctx := context.Background()
	for name, store := range openStores(t, fixedClock("2024-03-05")) {
		t.Run(name, func(t *testing.T) {
			key := ProcessedKey("fantasy")
			require.NoError(t, store.Save(ctx, key, "2024-03-05", payload{Book: "newest"}))
			require.NoError(t, store.Save(ctx, key, "2023-12-31", payload{Book: "oldest"}))
			require.NoError(t, store.Save(ctx, key, "2024-02-10", payload{Book: "middle"}))

			var got payload
			require.NoError(t, store.LoadLatest(ctx, key, &got))
			require.Equal(t, "newest", got.Book)
		})
	}
}

func TestStoreNotFound(t *testing.T) {
	ctx := context.Background()
	for name, store := range openStores(t, fixedClock("2024-03-01")) {
		t.Run(name, func(t *testing.T) {
			var got payload
			err := store.Load(ctx, CatalogKey("horror"), store.Today(), &got)
			require.ErrorIs(t, err, ErrNotFound)

			err = store.LoadLatest(ctx, CatalogKey("horror"), &got)
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestFileStoreLayout(t *testing.T) {
	root := t.TempDir()
	store, err := NewFileStore(root, fixedClock("2024-03-01"))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, BookKey("The_Hobbit"), store.Today(), payload{}))
	require.NoError(t, store.Save(ctx, CatalogKey("fantasy"), store.Today(), payload{}))

	_, err = os.Stat(filepath.Join(root, "The_Hobbit", "book_review_details_2024-03-01.json"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, "fantasy-books-list_2024-03-01.json"))
	require.NoError(t, err)

	// Stray files next to artifacts are ignored by LoadLatest.
	require.NoError(t, os.WriteFile(filepath.Join(root, "fantasy-books-list_notes.json"), []byte("{}"), 0o644))
	var got payload
	require.NoError(t, store.LoadLatest(ctx, CatalogKey("fantasy"), &got))
}

func TestFileStoreRejectsEmptyRoot(t *testing.T) {
	_, err := NewFileStore("", nil)
	require.Error(t, err)
}

func TestRunLock(t *testing.T) {
	dir := t.TempDir()

	first, err := AcquireRunLock(dir)
	require.NoError(t, err)

	_, err = AcquireRunLock(dir)
	require.True(t, errors.Is(err, ErrLocked), "expected ErrLocked, got %v", err)

	require.NoError(t, first.Release())

	again, err := AcquireRunLock(dir)
	require.NoError(t, err)
	require.NoError(t, again.Release())
}
