// Package lock guards the install directory against concurrent installers
// running in other processes.
package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// FileName is the lock file created inside the storage directory.
const FileName = "install.lock"

// ErrLocked is returned when another process holds the install lock.
var ErrLocked = errors.New("install lock held: another installation may be in progress")

// Lock represents a held install lock.
type Lock struct {
	path  string
	flock *flock.Flock
}

// TryAcquire takes the install lock in dir without blocking.
// The kernel drops the lock if the holder dies, so there is no stale-lock handling.
func TryAcquire(ctx context.Context, dir string) (*Lock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	lockPath := filepath.Join(dir, FileName)
	fl := flock.New(lockPath)

	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return nil, ErrLocked
	}

	return &Lock{path: lockPath, flock: fl}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Release releases the lock. The lock file itself is left in place.
func (l *Lock) Release() error {
	if l == nil || l.flock == nil {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	l.flock = nil
	return nil
}
