package concurrency

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// BackoffState is the process-wide signal that remote rate limiting has
// been observed recently (spec §3 BackoffState).
type BackoffState struct {
	Reason     string `json:"reason"`
	PauseUntil int64  `json:"pause_until"`
}

// Active reports whether the backoff window is still open relative to now.
func (s BackoffState) Active(now time.Time) bool {
	return s.PauseUntil > now.Unix()
}

// TriggerBackoff writes {reason, pause_until} to the backoff state file at
// path, atomically (write-to-tempfile + rename), so concurrent workers
// observe either the old or the new state, never a partial write.
func TriggerBackoff(path string, reason string, pause time.Duration, now time.Time) error {
	state := BackoffState{
		Reason:     reason,
		PauseUntil: now.Add(pause).Unix(),
	}
	return writeJSONAtomic(path, state)
}

// WaitIfNeeded blocks the caller until any active backoff window recorded
// at path has passed. A missing or unparsable state file is treated as
// "no active pause" and returns immediately.
func WaitIfNeeded(path string, now func() time.Time) error {
	state, ok, err := loadBackoffState(path)
	if err != nil || !ok {
		return err
	}
	n := now()
	if !state.Active(n) {
		return nil
	}
	wait := time.Unix(state.PauseUntil, 0).Sub(n)
	if wait > 0 {
		time.Sleep(wait)
	}
	return nil
}

func loadBackoffState(path string) (BackoffState, bool, error) {
	raw, err := os.ReadFile(path) // #nosec G304 -- path is derived from ru's own state directory.
	if err != nil {
		if os.IsNotExist(err) {
			return BackoffState{}, false, nil
		}
		return BackoffState{}, false, err
	}
	var state BackoffState
	if err := json.Unmarshal(raw, &state); err != nil {
		return BackoffState{}, false, err
	}
	return state, true, nil
}

func writeJSONAtomic(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	raw = append(raw, '\n')
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
