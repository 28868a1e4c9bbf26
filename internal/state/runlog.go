package state

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// RunLog is the per-run append-only progress log written under
// <state_dir>/ru/logs/<run_id>.log, following the teacher's pattern of a
// plain opened-for-append file written one timestamped line per event.
type RunLog struct {
	file *os.File
}

// OpenRunLog creates (or appends to) the log file for runID under dir.
func OpenRunLog(dir, runID string) (*RunLog, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, runID+".log")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600) // #nosec G304 -- path built from ru's own state directory + run id.
	if err != nil {
		return nil, err
	}
	return &RunLog{file: f}, nil
}

// Logf appends one timestamped line to the run log.
func (l *RunLog) Logf(format string, args ...any) {
	if l == nil || l.file == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	line := fmt.Sprintf("%s %s\n", time.Now().UTC().Format(time.RFC3339Nano), msg)
	_, _ = l.file.WriteString(line)
}

// Close closes the underlying log file.
func (l *RunLog) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}
