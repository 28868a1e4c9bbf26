package review

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/joyshmitz/ru/internal/config"
	"github.com/joyshmitz/ru/internal/driver"
	"github.com/joyshmitz/ru/internal/githubapi"
	"github.com/joyshmitz/ru/internal/reposet"
	"github.com/joyshmitz/ru/internal/state"
)

// fakeDriver is an in-memory driver.Driver for orchestrator tests, so
// MONITOR/DRAIN logic can be exercised without a real tmux binary.
type fakeDriver struct {
	started map[string]bool
	states  map[string]driver.State
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{started: map[string]bool{}, states: map[string]driver.State{}}
}

func (f *fakeDriver) Capabilities() driver.Capabilities {
	return driver.Capabilities{Name: "fake", ParallelSessions: true, MaxConcurrent: 4}
}
func (f *fakeDriver) StartSession(ctx context.Context, id, workdir, command string) error {
	if f.started[id] {
		return driver.ErrAlreadyExists{ID: id}
	}
	f.started[id] = true
	f.states[id] = driver.StateComplete // resolves instantly for deterministic tests
	return nil
}
func (f *fakeDriver) SessionAlive(ctx context.Context, id string) (bool, error) {
	return f.started[id], nil
}
func (f *fakeDriver) GetSessionState(ctx context.Context, id string) (driver.SessionState, error) {
	state, ok := f.states[id]
	if !ok {
		return driver.SessionState{SessionID: id, State: driver.StateDead}, nil
	}
	return driver.SessionState{SessionID: id, State: state}, nil
}
func (f *fakeDriver) ListSessions(ctx context.Context) ([]string, error) {
	var names []string
	for id := range f.started {
		names = append(names, id)
	}
	return names, nil
}
func (f *fakeDriver) SendToSession(ctx context.Context, id, text string) error { return nil }
func (f *fakeDriver) InterruptSession(ctx context.Context, id string) error    { return nil }
func (f *fakeDriver) StopSession(ctx context.Context, id string) error {
	delete(f.started, id)
	delete(f.states, id)
	return nil
}
func (f *fakeDriver) StreamEvents(ctx context.Context, id string) (<-chan driver.Event, error) {
	ch := make(chan driver.Event)
	close(ch)
	return ch, nil
}

func newGitHubFixtureServer(t *testing.T, repoJSON map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"data": repoJSON})
	}))
}

func newLocalRepoFixture(t *testing.T) (projectsDir string) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
	root := t.TempDir()
	projectsDir = filepath.Join(root, "projects")
	repoPath := filepath.Join(projectsDir, "hello-world")
	if err := os.MkdirAll(repoPath, 0o755); err != nil {
		t.Fatal(err)
	}
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = repoPath
		cmd.Env = append(os.Environ(), "GIT_AUTHOR_NAME=t", "GIT_AUTHOR_EMAIL=t@example.com", "GIT_COMMITTER_NAME=t", "GIT_COMMITTER_EMAIL=t@example.com")
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	run("init", "-q", "-b", "main")
	if err := os.WriteFile(filepath.Join(repoPath, "README.md"), []byte("hi\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	run("add", ".")
	run("commit", "-q", "-m", "initial")
	return projectsDir
}

func TestRunStatusOnlyReportsNotHeld(t *testing.T) {
	paths := state.Resolve(func(string) string { return "" })
	paths.StateDir = t.TempDir()
	result, err := Run(context.Background(), Options{StatusOnly: true}, Deps{Paths: paths, Config: config.Defaults()})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	data, ok := result.Envelope.Data.(map[string]any)
	if !ok {
		t.Fatalf("unexpected data type %T", result.Envelope.Data)
	}
	lock, ok := data["lock"].(map[string]any)
	if !ok || lock["held"] != false {
		t.Fatalf("expected held=false, got %+v", data)
	}
}

// TestRunLockContentionReturnsLockHeld covers spec §8 testable property 9
// and scenario S7.
func TestRunLockContentionReturnsLockHeld(t *testing.T) {
	paths := state.Resolve(func(string) string { return "" })
	paths.StateDir = t.TempDir()
	if err := AcquireLock(paths.ReviewLockFile(), paths.ReviewLockInfoFile(), LockInfo{RunID: "holder", PID: os.Getpid(), Mode: "local"}); err != nil {
		t.Fatalf("seed lock failed: %v", err)
	}
	defer ReleaseLock(paths.ReviewLockFile(), paths.ReviewLockInfoFile())

	result, err := Run(context.Background(), Options{}, Deps{Paths: paths, Config: config.Defaults()})
	if err == nil {
		t.Fatalf("expected LockHeld error")
	}
	if result.ExitCode != 5 {
		t.Fatalf("expected exit code 5, got %d", result.ExitCode)
	}

	statusResult, err := Run(context.Background(), Options{StatusOnly: true}, Deps{Paths: paths, Config: config.Defaults()})
	if err != nil {
		t.Fatalf("status Run failed: %v", err)
	}
	data := statusResult.Envelope.Data.(map[string]any)
	lock := data["lock"].(map[string]any)
	if lock["held"] != true || lock["run_id"] != "holder" {
		t.Fatalf("expected status to report holder's run_id, got %+v", lock)
	}
}

// TestRunDiscoveryDryRunWithItems covers spec §8 scenario S1.
func TestRunDiscoveryDryRunWithItems(t *testing.T) {
	server := newGitHubFixtureServer(t, map[string]any{
		"repo0": map[string]any{
			"nameWithOwner": "octocat/hello-world",
			"issues": map[string]any{"nodes": []map[string]any{
				{"number": 42, "title": "Test issue", "createdAt": "2026-01-01T00:00:00Z", "updatedAt": "2026-01-01T00:00:00Z"},
			}},
			"pullRequests": map[string]any{"nodes": []map[string]any{
				{"number": 7, "title": "Test PR", "createdAt": "2026-01-01T00:00:00Z", "updatedAt": "2026-01-01T00:00:00Z"},
			}},
		},
	})
	defer server.Close()

	paths := state.Resolve(func(string) string { return "" })
	paths.StateDir = t.TempDir()
	registry := reposet.RepoList{Specs: []reposet.RepoSpec{{Host: "github.com", Owner: "octocat", Name: "hello-world"}}}
	client := &githubapi.Client{Token: "t", HTTPClient: server.Client(), Endpoint: server.URL}

	result, err := Run(context.Background(), Options{DryRun: true}, Deps{
		Paths: paths, Config: config.Defaults(), Registry: registry, GitHub: client,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.ExitCode != 0 {
		t.Fatalf("expected exit 0, got %d", result.ExitCode)
	}
	summary := result.Envelope.Summary.(map[string]any)
	if summary["items_found"] != 2 {
		t.Fatalf("expected items_found=2, got %+v", summary)
	}
	byType := summary["by_type"].(map[string]any)
	if byType["issues"] != 1 || byType["prs"] != 1 {
		t.Fatalf("unexpected by_type: %+v", byType)
	}
}

func TestRunFullLifecycleAllocatesAndCheckpoints(t *testing.T) {
	projectsDir := newLocalRepoFixture(t)

	server := newGitHubFixtureServer(t, map[string]any{
		"repo0": map[string]any{
			"nameWithOwner": "octocat/hello-world",
			"issues": map[string]any{"nodes": []map[string]any{
				{"number": 1, "title": "needs review", "createdAt": "2026-01-01T00:00:00Z", "updatedAt": "2026-01-01T00:00:00Z"},
			}},
			"pullRequests": map[string]any{"nodes": []map[string]any{}},
		},
	})
	defer server.Close()

	paths := state.Resolve(func(string) string { return "" })
	paths.StateDir = t.TempDir()
	paths.ProjectsDir = projectsDir
	registry := reposet.RepoList{Specs: []reposet.RepoSpec{{Host: "github.com", Owner: "octocat", Name: "hello-world"}}}
	client := &githubapi.Client{Token: "t", HTTPClient: server.Client(), Endpoint: server.URL}
	fd := newFakeDriver()

	result, err := Run(context.Background(), Options{}, Deps{
		Paths:    paths,
		Config:   config.Defaults(),
		Registry: registry,
		GitHub:   client,
		DetectDrv: func() string { return "fake" },
		LoadDrv:   func(name string, maxConcurrent int) (driver.Driver, error) { return fd, nil },
		ReviewCmd: func(repoID, worktreePath string) string { return "true" },
		Now:       func() time.Time { return time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.ExitCode != 0 {
		t.Fatalf("expected exit 0, got %d", result.ExitCode)
	}
	if len(result.Outcomes) != 1 || result.Outcomes[0].Status != "completed" {
		t.Fatalf("expected one completed outcome, got %+v", result.Outcomes)
	}

	cp, found, err := LoadCheckpoint(paths.ReviewCheckpointFile())
	if err != nil || !found {
		t.Fatalf("expected checkpoint written: found=%v err=%v", found, err)
	}
	if cp.ReposCompleted != 1 || cp.ReposPending != 0 {
		t.Fatalf("unexpected checkpoint counts: %+v", cp)
	}

	status := ReadLockStatus(paths.ReviewLockFile(), paths.ReviewLockInfoFile())
	if status.Held {
		t.Fatalf("expected lock released after run")
	}
}
