package state

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another process holds the repository lock
// past the wait deadline.
var ErrLocked = fmt.Errorf("another claudemix process is working on this repository")

// Lock is an exclusive advisory lock on a repository's ClaudeMix state.
type Lock struct {
	fl *flock.Flock
}

// LockPath returns the lock file path next to the state database.
func LockPath(dbPath string) string {
	return filepath.Join(filepath.Dir(dbPath), "lock")
}

// AcquireLock takes the lock at path, retrying until ctx is done or wait
// elapses.
func AcquireLock(ctx context.Context, path string, wait time.Duration) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating lock dir: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	fl := flock.New(path)
	ok, err := fl.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil && ctx.Err() == nil {
		return nil, fmt.Errorf("acquiring lock %s: %w", path, err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return &Lock{fl: fl}, nil
}

// Release drops the lock.
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}
