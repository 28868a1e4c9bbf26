package gitops

import (
	"context"
	"strings"
)

// CleanStatus is the result of IsClean (spec §4.2 is_clean).
type CleanStatus struct {
	Clean   bool
	Reasons []string
}

// IsClean reports whether the working tree at path is clean. Dirty iff
// any of: untracked files present, unstaged changes, staged-but-uncommitted
// changes. Detached HEAD counts as dirty for operations that require a
// named branch (checked separately by callers via CurrentBranch).
func IsClean(ctx context.Context, path string) (CleanStatus, error) {
	out, err := runGit(ctx, path, 0, "status", "--porcelain=v1", "--untracked-files=all")
	if err != nil {
		return CleanStatus{}, err
	}
	if strings.TrimSpace(out) == "" {
		return CleanStatus{Clean: true}, nil
	}

	var reasons []string
	sawUntracked, sawUnstaged, sawStaged := false, false, false
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 2 {
			continue
		}
		index, worktree := line[0], line[1]
		switch {
		case index == '?' && worktree == '?':
			sawUntracked = true
		case worktree != ' ' && worktree != '?':
			sawUnstaged = true
		case index != ' ' && index != '?':
			sawStaged = true
		}
	}
	if sawUntracked {
		reasons = append(reasons, "untracked files present")
	}
	if sawUnstaged {
		reasons = append(reasons, "unstaged changes")
	}
	if sawStaged {
		reasons = append(reasons, "staged-but-uncommitted changes")
	}
	if len(reasons) == 0 {
		reasons = append(reasons, "uncommitted changes")
	}
	return CleanStatus{Clean: false, Reasons: reasons}, nil
}

// CurrentBranch returns the checked-out branch name, or "" with
// detached=true if HEAD is detached.
func CurrentBranch(ctx context.Context, path string) (branch string, detached bool, err error) {
	out, err := runGit(ctx, path, 0, "symbolic-ref", "--short", "-q", "HEAD")
	if err != nil {
		// symbolic-ref fails with a non-zero exit on detached HEAD.
		return "", true, nil
	}
	return out, false, nil
}

// HasRemote reports whether remoteName is configured in the repo at path.
func HasRemote(ctx context.Context, path, remoteName string) (bool, error) {
	out, err := runGit(ctx, path, 0, "remote")
	if err != nil {
		return false, err
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == remoteName {
			return true, nil
		}
	}
	return false, nil
}

// ResolveUpstreamDefaultBranch resolves the upstream remote's default
// branch via refs/remotes/upstream/HEAD, falling back to main then master
// (spec §4.2 fork_sync preconditions).
func ResolveUpstreamDefaultBranch(ctx context.Context, path string) (string, error) {
	if ref, err := runGit(ctx, path, 0, "symbolic-ref", "--short", "-q", "refs/remotes/upstream/HEAD"); err == nil {
		if name := strings.TrimPrefix(ref, "upstream/"); name != "" {
			return name, nil
		}
	}
	for _, candidate := range []string{"main", "master"} {
		if _, err := runGit(ctx, path, 0, "rev-parse", "--verify", "--quiet", "refs/remotes/upstream/"+candidate); err == nil {
			return candidate, nil
		}
	}
	return "", errNoUpstreamDefaultBranch
}

var errNoUpstreamDefaultBranch = &noUpstreamDefaultBranchError{}

type noUpstreamDefaultBranchError struct{}

func (*noUpstreamDefaultBranchError) Error() string {
	return "gitops: could not resolve upstream default branch (refs/remotes/upstream/HEAD, main, master all unavailable)"
}
