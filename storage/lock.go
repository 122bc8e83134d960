package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another scrape already holds the data directory.
var ErrLocked = errors.New("storage: data directory is locked by another run")

// RunLock is an exclusive lock on a data directory.
type RunLock struct {
	lock *flock.Flock
}

// AcquireRunLock takes the lock without blocking.
func AcquireRunLock(dir string) (*RunLock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory %q: %w", dir, err)
	}
	lock := flock.New(filepath.Join(dir, ".scrape.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %q: %w", dir, err)
	}
	if !locked {
		return nil, fmt.Errorf("%s: %w", dir, ErrLocked)
	}
	return &RunLock{lock: lock}, nil
}

// Release unlocks the data directory.
func (l *RunLock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	return l.lock.Unlock()
}
