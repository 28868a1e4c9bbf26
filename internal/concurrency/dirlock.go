// Package concurrency provides the coarse mutual-exclusion and bounded
// parallel-sweep primitives shared by the review orchestrator and the
// fleet git operations.
package concurrency

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// ErrDirLockTimeout is returned by AcquireDirLock when the lock directory
// could not be created before the timeout elapsed.
var ErrDirLockTimeout = errors.New("concurrency: dir lock timed out")

const dirLockPollInterval = 100 * time.Millisecond

// AcquireDirLock implements a coarse mutex over atomic directory creation:
// mkdir succeeds iff the directory did not already exist. It polls at
// dirLockPollInterval until the directory is created or timeout elapses.
func AcquireDirLock(path string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		err := os.Mkdir(path, 0o700)
		if err == nil {
			return nil
		}
		if !os.IsExist(err) {
			return fmt.Errorf("concurrency: create lock dir %s: %w", path, err)
		}
		if time.Now().After(deadline) {
			return ErrDirLockTimeout
		}
		time.Sleep(dirLockPollInterval)
	}
}

// ReleaseDirLock removes the lock directory. Absence of the directory is
// not an error, since release is idempotent.
func ReleaseDirLock(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("concurrency: release lock dir %s: %w", path, err)
	}
	return nil
}
