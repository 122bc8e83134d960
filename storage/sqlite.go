package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps artifacts as JSON rows, one per (dir, name, day).
type SQLiteStore struct {
	db  *sql.DB
	now Clock
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (and migrates) the database at path.
func OpenSQLite(path string, now Clock) (*SQLiteStore, error) {
	if now == nil {
		now = time.Now
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %q: %w", dir, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, now: now}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var v int
	if err := tx.QueryRowContext(ctx, `PRAGMA user_version;`).Scan(&v); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if v >= 1 {
		return tx.Commit()
	}

	if _, err := tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS artifacts (
  dir TEXT NOT NULL,
  name TEXT NOT NULL,
  day TEXT NOT NULL,
  payload BLOB NOT NULL,
  created_at TEXT NOT NULL,
  PRIMARY KEY (dir, name, day)
);
`); err != nil {
		return fmt.Errorf("create artifacts table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `PRAGMA user_version = 1;`); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}
	return tx.Commit()
}

// Today implements Store.
func (s *SQLiteStore) Today() Day {
	return DayOf(s.now())
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, key Key, day Day, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	res, err := s.db.ExecContext(ctx, `
INSERT INTO artifacts (dir, name, day, payload, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (dir, name, day) DO NOTHING;
`, key.Dir, key.Name, string(day), payload, s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert %s: %w", key, err)
	}
	if n == 0 {
		return alreadyExists(key, day)
	}
	return nil
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, key Key, day Day, v any) error {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `
SELECT payload FROM artifacts WHERE dir = ? AND name = ? AND day = ?;
`, key.Dir, key.Name, string(day)).Scan(&payload)
	return decodeRow(key, day, payload, err, v)
}

// LoadLatest implements Store.
func (s *SQLiteStore) LoadLatest(ctx context.Context, key Key, v any) error {
	var payload []byte
	var day string
	err := s.db.QueryRowContext(ctx, `
SELECT payload, day FROM artifacts WHERE dir = ? AND name = ?
ORDER BY day DESC, created_at DESC LIMIT 1;
`, key.Dir, key.Name).Scan(&payload, &day)
	return decodeRow(key, Day(day), payload, err, v)
}

// ExistsForToday implements Store.
func (s *SQLiteStore) ExistsForToday(ctx context.Context, key Key) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
SELECT 1 FROM artifacts WHERE dir = ? AND name = ? AND day = ?;
`, key.Dir, key.Name, string(s.Today())).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query %s: %w", key, err)
	}
	return true, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func decodeRow(key Key, day Day, payload []byte, err error, v any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(key, day)
	}
	if err != nil {
		return fmt.Errorf("query %s: %w", key, err)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decode %s@%s: %w", key, day, err)
	}
	return nil
}
