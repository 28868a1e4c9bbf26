// Package localfs centralizes ru's local-path file access, adapted from
// the teacher's localfs.go: every read/open goes through CleanPath first
// so the same #nosec G304 justification (ru only ever opens paths it
// resolved itself, never raw user input) lives in one place instead of
// being repeated at every call site.
package localfs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func CleanPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("localfs: path required")
	}
	return filepath.Clean(path), nil
}

// ReadFile cleans path and reads it. #nosec G304 -- ru only calls this
// with paths it resolved itself (config dir, state dir, registry files).
func ReadFile(path string) ([]byte, error) {
	path, err := CleanPath(path)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path) // #nosec G304
}

// OpenFile cleans path and opens it with the given flags/perm.
func OpenFile(path string, flags int, perm os.FileMode) (*os.File, error) {
	path, err := CleanPath(path)
	if err != nil {
		return nil, err
	}
	return os.OpenFile(path, flags, perm) // #nosec G304
}
