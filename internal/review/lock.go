package review

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joyshmitz/ru/internal/localfs"
	"github.com/joyshmitz/ru/internal/ruerr"
)

// LockInfo is the sibling review.lock.info JSON document describing the
// current lock holder (spec §3 RunLock, §6 persisted-state formats).
type LockInfo struct {
	RunID     string `json:"run_id"`
	StartedAt string `json:"started_at"`
	PID       int    `json:"pid"`
	Mode      string `json:"mode"`
}

// LockStatus is review --status's view of the lock (spec §4.6). Stale is
// an additive supplement (not in spec.md) reporting whether the recorded
// pid is no longer alive.
type LockStatus struct {
	Held  bool     `json:"held"`
	Info  LockInfo `json:"-"`
	Stale bool     `json:"stale,omitempty"`
}

// AcquireLock attempts an exclusive, non-blocking advisory lock on
// lockPath via atomic file creation (grounded on acquireCodexLock /
// paas_agent_scheduler.go's O_EXCL lock pattern, generalized to a
// cross-process single-writer review run rather than a TTL-refreshed
// agent lock: a review run holds the lock for its entire lifetime and
// always releases it explicitly at RELEASE, so no heartbeat/staleness
// grace period is needed on the happy path). On success it also writes
// infoPath. On failure returns ruerr LockHeld (spec §4.5 LOCK, exit 5).
func AcquireLock(lockPath, infoPath string, info LockInfo) error {
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return ruerr.New(ruerr.LockHeld, "a review run is already in progress", err)
		}
		return err
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "pid=%d run_id=%s\n", info.PID, info.RunID); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	raw = append(raw, '\n')
	return os.WriteFile(infoPath, raw, 0o600)
}

// ReleaseLock removes the lock file and its info sibling (spec §4.5
// RELEASE). Absence of either file is not an error.
func ReleaseLock(lockPath, infoPath string) error {
	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Remove(infoPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ReadLockStatus reports whether the lock is currently held, for
// `review --status` (spec §4.6); it never fails the run even if the
// info file is missing or malformed, matching the "`--status` still
// succeeds" guarantee in spec §7.
func ReadLockStatus(lockPath, infoPath string) LockStatus {
	if _, err := os.Stat(lockPath); err != nil {
		return LockStatus{Held: false}
	}
	status := LockStatus{Held: true}
	raw, err := localfs.ReadFile(infoPath)
	if err != nil {
		return status
	}
	var info LockInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return status
	}
	status.Info = info
	status.Stale = info.PID > 0 && !pidAlive(info.PID)
	return status
}

func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, syscall.Signal(0))
	if err == nil {
		return true
	}
	return false
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// MarshalStatusData renders LockStatus plus a CheckpointView into the
// `data` object review --status emits (spec §4.6).
func MarshalStatusData(lock LockStatus, checkpoint CheckpointView) map[string]any {
	lockData := map[string]any{"held": lock.Held}
	if lock.Held {
		lockData["run_id"] = lock.Info.RunID
		lockData["started_at"] = lock.Info.StartedAt
		lockData["pid"] = lock.Info.PID
		lockData["mode"] = lock.Info.Mode
		if lock.Stale {
			lockData["stale"] = true
		}
	}
	return map[string]any{
		"lock":       lockData,
		"checkpoint": checkpoint.ToMap(),
	}
}
