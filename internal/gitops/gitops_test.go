package gitops

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func runOrSkip(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=ru-test", "GIT_AUTHOR_EMAIL=ru-test@example.com",
		"GIT_COMMITTER_NAME=ru-test", "GIT_COMMITTER_EMAIL=ru-test@example.com",
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if _, lookErr := exec.LookPath("git"); lookErr != nil {
			t.Skip("git binary not available")
		}
		t.Fatalf("git %v failed: %v\n%s", args, err, out)
	}
	return string(out)
}

// newForkFixture builds an upstream bare-ish repo plus a local clone with
// an "upstream" remote, matching the fork topology spec §4.2 assumes.
func newForkFixture(t *testing.T) (upstream, local string) {
	t.Helper()
	root := t.TempDir()
	upstream = filepath.Join(root, "upstream")
	local = filepath.Join(root, "local")
	if err := os.MkdirAll(upstream, 0o755); err != nil {
		t.Fatal(err)
	}
	runOrSkip(t, upstream, "init", "-q", "-b", "main")
	if err := os.WriteFile(filepath.Join(upstream, "README.md"), []byte("hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	runOrSkip(t, upstream, "add", ".")
	runOrSkip(t, upstream, "commit", "-q", "-m", "initial")

	runOrSkip(t, root, "clone", "-q", upstream, local)
	runOrSkip(t, local, "remote", "rename", "origin", "upstream")
	runOrSkip(t, local, "branch", "--set-upstream-to=upstream/main", "main")
	return upstream, local
}

func TestIsCleanReportsCleanAndDirty(t *testing.T) {
	_, local := newForkFixture(t)
	status, err := IsClean(context.Background(), local)
	if err != nil {
		t.Fatalf("IsClean failed: %v", err)
	}
	if !status.Clean {
		t.Fatalf("expected clean fixture, got reasons=%v", status.Reasons)
	}

	if err := os.WriteFile(filepath.Join(local, "untracked.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	status, err = IsClean(context.Background(), local)
	if err != nil {
		t.Fatalf("IsClean failed: %v", err)
	}
	if status.Clean {
		t.Fatalf("expected dirty status after adding untracked file")
	}
}

func TestForkSyncFastForwardsWhenBehind(t *testing.T) {
	upstream, local := newForkFixture(t)
	if err := os.WriteFile(filepath.Join(upstream, "new.txt"), []byte("more\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	runOrSkip(t, upstream, "add", ".")
	runOrSkip(t, upstream, "commit", "-q", "-m", "second")

	outcome, err := ForkSync(context.Background(), local, ForkSyncOptions{Strategy: StrategyFFOnly})
	if err != nil {
		t.Fatalf("ForkSync failed: %v", err)
	}
	if outcome.Status != StatusOK {
		t.Fatalf("expected OK outcome, got %+v", outcome)
	}
	localTip := runOrSkip(t, local, "rev-parse", "main")
	upstreamTip := runOrSkip(t, upstream, "rev-parse", "main")
	if localTip != upstreamTip {
		t.Fatalf("expected local to match upstream tip after ff, local=%s upstream=%s", localTip, upstreamTip)
	}
}

func TestForkSyncDivergedFFOnlyLeavesStateUntouched(t *testing.T) {
	upstream, local := newForkFixture(t)
	if err := os.WriteFile(filepath.Join(upstream, "up.txt"), []byte("u\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	runOrSkip(t, upstream, "add", ".")
	runOrSkip(t, upstream, "commit", "-q", "-m", "upstream change")

	if err := os.WriteFile(filepath.Join(local, "down.txt"), []byte("d\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	runOrSkip(t, local, "add", ".")
	runOrSkip(t, local, "commit", "-q", "-m", "local change")

	beforeTip := runOrSkip(t, local, "rev-parse", "main")

	outcome, err := ForkSync(context.Background(), local, ForkSyncOptions{Strategy: StrategyFFOnly})
	if err != nil {
		t.Fatalf("ForkSync failed: %v", err)
	}
	if outcome.Status != StatusFailed || outcome.Reason != "diverged_ff_only" {
		t.Fatalf("expected Failed(diverged_ff_only), got %+v", outcome)
	}
	afterTip := runOrSkip(t, local, "rev-parse", "main")
	if beforeTip != afterTip {
		t.Fatalf("expected local branch untouched, before=%s after=%s", beforeTip, afterTip)
	}
}

func TestForkSyncDryRunInvariance(t *testing.T) {
	upstream, local := newForkFixture(t)
	if err := os.WriteFile(filepath.Join(upstream, "new.txt"), []byte("more\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	runOrSkip(t, upstream, "add", ".")
	runOrSkip(t, upstream, "commit", "-q", "-m", "second")

	beforeTip := runOrSkip(t, local, "rev-parse", "main")
	outcome, err := ForkSync(context.Background(), local, ForkSyncOptions{Strategy: StrategyFFOnly, DryRun: true})
	if err != nil {
		t.Fatalf("ForkSync dry-run failed: %v", err)
	}
	if outcome.Status != StatusOK {
		t.Fatalf("expected dry-run OK outcome, got %+v", outcome)
	}
	afterTip := runOrSkip(t, local, "rev-parse", "main")
	if beforeTip != afterTip {
		t.Fatalf("expected dry-run to leave local branch untouched")
	}
}

func TestForkCleanRescueAndReset(t *testing.T) {
	upstream, local := newForkFixture(t)
	for i := 0; i < 2; i++ {
		if err := os.WriteFile(filepath.Join(local, "pollution.txt"), []byte{byte('a' + i)}, 0o644); err != nil {
			t.Fatal(err)
		}
		runOrSkip(t, local, "add", ".")
		runOrSkip(t, local, "commit", "-q", "-m", "pollution")
	}

	outcome, err := ForkClean(context.Background(), local, ForkCleanOptions{Rescue: true, Force: true})
	if err != nil {
		t.Fatalf("ForkClean failed: %v", err)
	}
	if outcome.Status != StatusClean {
		t.Fatalf("expected Clean outcome, got %+v", outcome)
	}

	branches := runOrSkip(t, local, "branch", "--list", "rescue/*")
	if branches == "" {
		t.Fatalf("expected a rescue/* branch to exist")
	}
	mainTip := runOrSkip(t, local, "rev-parse", "main")
	upstreamTip := runOrSkip(t, upstream, "rev-parse", "main")
	if mainTip != upstreamTip {
		t.Fatalf("expected main to match upstream after reset, main=%s upstream=%s", mainTip, upstreamTip)
	}
}

func TestForkCleanWithoutRescueCreatesNoBranch(t *testing.T) {
	_, local := newForkFixture(t)
	if err := os.WriteFile(filepath.Join(local, "pollution.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	runOrSkip(t, local, "add", ".")
	runOrSkip(t, local, "commit", "-q", "-m", "pollution")

	_, err := ForkClean(context.Background(), local, ForkCleanOptions{Rescue: false, Force: true})
	if err != nil {
		t.Fatalf("ForkClean failed: %v", err)
	}
	branches := runOrSkip(t, local, "branch", "--list", "rescue/*")
	if branches != "" {
		t.Fatalf("expected no rescue branch, got %q", branches)
	}
}

func TestForkCleanSkipsWhenDirty(t *testing.T) {
	_, local := newForkFixture(t)
	if err := os.WriteFile(filepath.Join(local, "untracked.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	outcome, err := ForkClean(context.Background(), local, ForkCleanOptions{Rescue: true, Force: true})
	if err != nil {
		t.Fatalf("ForkClean failed: %v", err)
	}
	if outcome.Status != StatusSkipped || outcome.Reason != "uncommitted" {
		t.Fatalf("expected Skipped(uncommitted), got %+v", outcome)
	}
}

func TestForkCleanWithoutForceOrConfirmationFails(t *testing.T) {
	_, local := newForkFixture(t)
	if err := os.WriteFile(filepath.Join(local, "pollution.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	runOrSkip(t, local, "add", ".")
	runOrSkip(t, local, "commit", "-q", "-m", "pollution")

	_, err := ForkClean(context.Background(), local, ForkCleanOptions{Rescue: true})
	if err == nil {
		t.Fatalf("expected error when neither force nor confirmed is set")
	}
}

func TestWorktreeAddListRemove(t *testing.T) {
	_, local := newForkFixture(t)
	wtPath := filepath.Join(t.TempDir(), "wt")

	if err := WorktreeAdd(context.Background(), local, wtPath, "review-branch"); err != nil {
		t.Fatalf("WorktreeAdd failed: %v", err)
	}
	entries, err := WorktreeList(context.Background(), local)
	if err != nil {
		t.Fatalf("WorktreeList failed: %v", err)
	}
	found := false
	for _, e := range entries {
		if e.Path == wtPath {
			found = true
			if e.Branch != "review-branch" {
				t.Fatalf("expected branch review-branch, got %s", e.Branch)
			}
		}
	}
	if !found {
		t.Fatalf("expected worktree list to include %s, got %+v", wtPath, entries)
	}

	if err := WorktreeRemove(context.Background(), local, wtPath, false); err != nil {
		t.Fatalf("WorktreeRemove failed: %v", err)
	}
	entries, err = WorktreeList(context.Background(), local)
	if err != nil {
		t.Fatalf("WorktreeList after remove failed: %v", err)
	}
	for _, e := range entries {
		if e.Path == wtPath {
			t.Fatalf("expected worktree to be removed, still present: %+v", e)
		}
	}
}

func TestWorktreeMappingRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapping.json")
	mapping := map[string]WorktreeRecord{
		"octocat/hello-world": {WorktreePath: "/tmp/wt1", BranchName: "main", CreatedAt: "2026-07-30T00:00:00Z", RunID: "abc123"},
	}
	if err := SaveWorktreeMapping(path, mapping); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	loaded, err := LoadWorktreeMapping(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded["octocat/hello-world"] != mapping["octocat/hello-world"] {
		t.Fatalf("round trip mismatch: %+v", loaded)
	}
}

func TestLoadWorktreeMappingMissingFileReturnsEmpty(t *testing.T) {
	mapping, err := LoadWorktreeMapping(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mapping) != 0 {
		t.Fatalf("expected empty mapping, got %+v", mapping)
	}
}
