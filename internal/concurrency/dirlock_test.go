package concurrency

import (
	"path/filepath"
	"testing"
	"time"
)

func TestAcquireDirLockSucceedsWhenFree(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "lock")
	if err := AcquireDirLock(dir, time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ReleaseDirLock(dir); err != nil {
		t.Fatalf("release failed: %v", err)
	}
}

func TestAcquireDirLockTimesOutWhenHeld(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "lock")
	if err := AcquireDirLock(dir, time.Second); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	defer ReleaseDirLock(dir)

	err := AcquireDirLock(dir, 250*time.Millisecond)
	if err != ErrDirLockTimeout {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestReleaseDirLockOnMissingDirIsNotError(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "never-created")
	if err := ReleaseDirLock(dir); err != nil {
		t.Fatalf("expected release of missing dir to succeed, got %v", err)
	}
}
