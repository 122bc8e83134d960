package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// FileStore writes each artifact as <root>/<dir>/<name>_<day>.json.
type FileStore struct {
	root string
	now  Clock
}

var _ Store = (*FileStore)(nil)

// NewFileStore returns a store rooted at root. A nil clock uses time.Now.
func NewFileStore(root string, now Clock) (*FileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("file store root cannot be empty")
	}
	if now == nil {
		now = time.Now
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %q: %w", root, err)
	}
	return &FileStore{root: root, now: now}, nil
}

// Root returns the data directory.
func (fs *FileStore) Root() string {
	return fs.root
}

// Today implements Store.
func (fs *FileStore) Today() Day {
	return DayOf(fs.now())
}

// Save implements Store. The artifact is written to a temporary file and
// renamed into place.
func (fs *FileStore) Save(_ context.Context, key Key, day Day, v any) error {
	dir := fs.dir(key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}

	path := fs.path(key, day)
	if _, err := os.Stat(path); err == nil {
		return alreadyExists(key, day)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	buffer := bufio.NewWriter(tmp)
	encoder := json.NewEncoder(buffer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		tmp.Close()
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := buffer.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", key, err)
	}
	return nil
}

// Load implements Store.
func (fs *FileStore) Load(_ context.Context, key Key, day Day, v any) error {
	return fs.decode(key, day, fs.path(key, day), v)
}

// LoadLatest implements Store. The latest artifact is the one with the most
// recent day stamp.
func (fs *FileStore) LoadLatest(_ context.Context, key Key, v any) error {
	days, err := fs.days(key)
	if err != nil {
		return err
	}
	if len(days) == 0 {
		return notFound(key, "")
	}
	latest := days[len(days)-1]
	return fs.decode(key, latest, fs.path(key, latest), v)
}

// ExistsForToday implements Store.
func (fs *FileStore) ExistsForToday(_ context.Context, key Key) (bool, error) {
	_, err := os.Stat(fs.path(key, fs.Today()))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", key, err)
}

// Close implements Store.
func (fs *FileStore) Close() error {
	return nil
}

func (fs *FileStore) dir(key Key) string {
	return filepath.Join(fs.root, key.Dir)
}

func (fs *FileStore) path(key Key, day Day) string {
	return filepath.Join(fs.dir(key), fmt.Sprintf("%s_%s.json", key.Name, day))
}

func (fs *FileStore) days(key Key) ([]Day, error) {
	pattern := filepath.Join(fs.dir(key), key.Name+"_*.json")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", key, err)
	}

	prefix := key.Name + "_"
	days := make([]Day, 0, len(matches))
	for _, match := range matches {
		stamp := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(match), prefix), ".json")
		if _, err := time.Parse(dayLayout, stamp); err != nil {
			continue
		}
		days = append(days, Day(stamp))
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	return days, nil
}

func (fs *FileStore) decode(key Key, day Day, path string, v any) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return notFound(key, day)
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", key, err)
	}
	defer f.Close()

	if err := json.NewDecoder(bufio.NewReader(f)).Decode(v); err != nil {
		return fmt.Errorf("decode %s@%s: %w", key, day, err)
	}
	return nil
}
