package state

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunLogAppendsTimestampedLines(t *testing.T) {
	dir := t.TempDir()
	log, err := OpenRunLog(dir, "abc123")
	if err != nil {
		t.Fatalf("OpenRunLog failed: %v", err)
	}
	log.Logf("hello %s", "world")
	log.Logf("second line")
	if err := log.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "abc123.log"))
	if err != nil {
		t.Fatalf("read log failed: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), raw)
	}
	if !strings.Contains(lines[0], "hello world") {
		t.Fatalf("unexpected first line: %q", lines[0])
	}
}

func TestRunLogNilSafe(t *testing.T) {
	var log *RunLog
	log.Logf("should not panic")
	if err := log.Close(); err != nil {
		t.Fatalf("expected nil-safe close, got %v", err)
	}
}
