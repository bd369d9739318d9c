package manifest

import (
	"errors"
	"fmt"
	"os"

	"github.com/gofrs/flock"
	"github.com/openmined/chunksync/internal/utils"
)

var ErrLocked = errors.New("manifest is locked by another sync")

// Lock is an advisory lock next to the manifest that keeps two passes from
// writing the same manifest.
type Lock struct {
	flock *flock.Flock
}

// AcquireLock takes the lock for the manifest at path without blocking.
func AcquireLock(path string) (*Lock, error) {
	lockPath := path + ".lock"
	if err := utils.EnsureParent(lockPath); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	fl := flock.New(lockPath)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock manifest: %w", err)
	}
	if !locked {
		return nil, ErrLocked
	}
	return &Lock{flock: fl}, nil
}

func (l *Lock) Path() string {
	return l.flock.Path()
}

// Release unlocks and removes the lock file.
func (l *Lock) Release() error {
	if !l.flock.Locked() {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("unlock manifest: %w", err)
	}
	return os.Remove(l.flock.Path())
}
