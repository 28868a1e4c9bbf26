package gitops

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Strategy selects fork-sync's rebase/merge/ff-only behavior (spec §4.2).
type Strategy string

const (
	StrategyFFOnly Strategy = "ff-only"
	StrategyRebase Strategy = "rebase"
	StrategyMerge  Strategy = "merge"
)

// OutcomeStatus is the result classification for a fork-sync/fork-clean
// attempt (spec §4.2 Outcome).
type OutcomeStatus string

const (
	StatusSkipped OutcomeStatus = "Skipped"
	StatusFailed  OutcomeStatus = "Failed"
	StatusMerged  OutcomeStatus = "Merged"
	StatusClean   OutcomeStatus = "Clean"
	StatusOK      OutcomeStatus = "OK"
)

// Outcome reports what fork_sync / fork_clean did (or would have done
// under dry_run).
type Outcome struct {
	Status OutcomeStatus
	Reason string // e.g. "already_synced", "diverged_ff_only", "conflict"
	Detail string
}

// ForkSyncOptions configures one fork_sync invocation.
type ForkSyncOptions struct {
	Strategy Strategy
	DryRun   bool
	NoFetch  bool
}

// ForkSync advances a local fork's default branch to its upstream tip
// (spec §4.2 fork_sync).
func ForkSync(ctx context.Context, path string, opts ForkSyncOptions) (Outcome, error) {
	if err := ensureGitAvailable(); err != nil {
		return Outcome{}, err
	}
	if hasUpstream, err := HasRemote(ctx, path, "upstream"); err != nil {
		return Outcome{}, err
	} else if !hasUpstream {
		return Outcome{}, fmt.Errorf("gitops: no upstream remote configured at %s", path)
	}
	clean, err := IsClean(ctx, path)
	if err != nil {
		return Outcome{}, err
	}
	if !clean.Clean {
		return Outcome{}, fmt.Errorf("gitops: working tree dirty at %s: %s", path, strings.Join(clean.Reasons, ", "))
	}
	branch, detached, err := CurrentBranch(ctx, path)
	if err != nil {
		return Outcome{}, err
	}
	if detached {
		return Outcome{}, fmt.Errorf("gitops: %s is in detached HEAD state", path)
	}

	if !opts.NoFetch {
		if _, err := runGit(ctx, path, 0, "fetch", "upstream"); err != nil {
			return Outcome{}, err
		}
	}

	defaultBranch, err := ResolveUpstreamDefaultBranch(ctx, path)
	if err != nil {
		return Outcome{}, err
	}
	upstreamRef := "upstream/" + defaultBranch

	ahead, behind, err := aheadBehind(ctx, path, branch, upstreamRef)
	if err != nil {
		return Outcome{}, err
	}

	strategy := opts.Strategy
	if strategy == "" {
		strategy = StrategyFFOnly
	}

	switch strategy {
	case StrategyFFOnly:
		return forkSyncFFOnly(ctx, path, branch, upstreamRef, ahead, behind, opts.DryRun)
	case StrategyRebase:
		return forkSyncRebase(ctx, path, branch, upstreamRef, behind, opts.DryRun)
	case StrategyMerge:
		return forkSyncMerge(ctx, path, branch, upstreamRef, behind, opts.DryRun)
	default:
		return Outcome{}, fmt.Errorf("gitops: unknown strategy %q", strategy)
	}
}

func forkSyncFFOnly(ctx context.Context, path, branch, upstreamRef string, ahead, behind int, dryRun bool) (Outcome, error) {
	switch {
	case ahead == 0 && behind > 0:
		if dryRun {
			return Outcome{Status: StatusOK, Detail: fmt.Sprintf("would fast-forward %s to %s", branch, upstreamRef)}, nil
		}
		if _, err := runGit(ctx, path, 0, "merge", "--ff-only", upstreamRef); err != nil {
			return Outcome{}, err
		}
		return Outcome{Status: StatusOK, Detail: fmt.Sprintf("fast-forwarded %s to %s", branch, upstreamRef)}, nil
	case ahead > 0 && behind > 0:
		return Outcome{Status: StatusFailed, Reason: "diverged_ff_only"}, nil
	default:
		return Outcome{Status: StatusSkipped, Reason: "already_synced"}, nil
	}
}

func forkSyncRebase(ctx context.Context, path, branch, upstreamRef string, behind int, dryRun bool) (Outcome, error) {
	if behind == 0 {
		return Outcome{Status: StatusSkipped, Reason: "already_synced"}, nil
	}
	if dryRun {
		return Outcome{Status: StatusOK, Detail: fmt.Sprintf("would rebase %s onto %s", branch, upstreamRef)}, nil
	}
	if _, err := runGit(ctx, path, 0, "rebase", upstreamRef); err != nil {
		_, _ = runGit(ctx, path, 0, "rebase", "--abort")
		return Outcome{Status: StatusFailed, Reason: "conflict"}, nil
	}
	return Outcome{Status: StatusOK, Detail: fmt.Sprintf("rebased %s onto %s", branch, upstreamRef)}, nil
}

func forkSyncMerge(ctx context.Context, path, branch, upstreamRef string, behind int, dryRun bool) (Outcome, error) {
	if behind == 0 {
		return Outcome{Status: StatusSkipped, Reason: "already_synced"}, nil
	}
	if dryRun {
		return Outcome{Status: StatusOK, Detail: fmt.Sprintf("would merge %s into %s", upstreamRef, branch)}, nil
	}
	if _, err := runGit(ctx, path, 0, "merge", "--no-ff", upstreamRef); err != nil {
		return Outcome{}, err
	}
	return Outcome{Status: StatusMerged, Detail: fmt.Sprintf("merged %s into %s", upstreamRef, branch)}, nil
}

func aheadBehind(ctx context.Context, path, branch, upstreamRef string) (ahead, behind int, err error) {
	out, err := runGit(ctx, path, 0, "rev-list", "--left-right", "--count", branch+"..."+upstreamRef)
	if err != nil {
		return 0, 0, err
	}
	parts := strings.Fields(out)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("gitops: unexpected rev-list output %q", out)
	}
	ahead, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, err
	}
	behind, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, err
	}
	return ahead, behind, nil
}
