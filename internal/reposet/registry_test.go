package reposet

import (
	"os"
	"path/filepath"
	"testing"
)

func writeReposFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func TestLoadRegistryDeduplicatesAcrossFilesKeepingFirstOccurrence(t *testing.T) {
	dir := t.TempDir()
	writeReposFile(t, dir, "10-primary.txt", "# comment\noctocat/hello-world\n\nacme/widgets\n")
	writeReposFile(t, dir, "20-secondary.txt", "octocat/hello-world\nacme/other\n")

	list, err := LoadRegistry(dir)
	if err != nil {
		t.Fatalf("LoadRegistry failed: %v", err)
	}
	if len(list.Specs) != 3 {
		t.Fatalf("expected 3 specs, got %d: %+v", len(list.Specs), list.Specs)
	}
	if list.Specs[0].GithubID() != "octocat/hello-world" {
		t.Fatalf("expected first occurrence to win, got %+v", list.Specs[0])
	}
}

func TestLoadRegistryIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	writeReposFile(t, dir, "repos.txt", "octocat/hello-world\nacme/widgets\n")

	first, err := LoadRegistry(dir)
	if err != nil {
		t.Fatalf("first load failed: %v", err)
	}
	second, err := LoadRegistry(dir)
	if err != nil {
		t.Fatalf("second load failed: %v", err)
	}
	if first.Hash() != second.Hash() {
		t.Fatalf("expected repeated loads to produce identical hash")
	}
	if len(first.Specs) != len(second.Specs) {
		t.Fatalf("expected repeated loads to produce the same number of specs")
	}
}

func TestLoadRegistryCollectsParseErrorsWithoutAborting(t *testing.T) {
	dir := t.TempDir()
	writeReposFile(t, dir, "repos.txt", "octocat/hello-world\nmalicious\"injection/repo\nacme/widgets\n")

	list, err := LoadRegistry(dir)
	if err != nil {
		t.Fatalf("LoadRegistry failed: %v", err)
	}
	if len(list.Specs) != 2 {
		t.Fatalf("expected malformed line to be skipped, got %d specs", len(list.Specs))
	}
	if len(list.Errors) != 1 {
		t.Fatalf("expected 1 parse error, got %d", len(list.Errors))
	}
}

func TestLoadRegistryMissingDirReturnsEmptyList(t *testing.T) {
	list, err := LoadRegistry(filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatalf("expected no error for missing dir, got %v", err)
	}
	if len(list.Specs) != 0 {
		t.Fatalf("expected empty list, got %+v", list.Specs)
	}
}

func TestResolveLocalPathLayouts(t *testing.T) {
	spec := RepoSpec{Host: "github.com", Owner: "octocat", Name: "hello-world"}
	flat := ResolveLocalPath(spec, "/projects", LayoutFlat)
	if flat != filepath.Join("/projects", "hello-world") {
		t.Fatalf("unexpected flat path: %s", flat)
	}
	nested := ResolveLocalPath(spec, "/projects", LayoutNested)
	if nested != filepath.Join("/projects", "octocat", "hello-world") {
		t.Fatalf("unexpected nested path: %s", nested)
	}
}
