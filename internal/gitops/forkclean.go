package gitops

import (
	"context"
	"fmt"
	"time"
)

// ForkCleanOptions configures one fork_clean invocation (spec §4.2).
type ForkCleanOptions struct {
	Rescue bool // default true; creates a rescue branch before resetting
	DryRun bool
	Force  bool
	// Confirmed must be true when Force is false and the session is
	// interactive: the engine accepts a pre-acquired confirmation token
	// rather than prompting itself (confirmation UX is out of scope here;
	// see internal/cliout for the interactive prompt that produces it).
	Confirmed bool
	Now       time.Time
}

// ForkClean cleans pollution on the default branch of a fork by
// hard-resetting to the tracked upstream default, optionally rescuing
// local commits to a timestamped branch first (spec §4.2 fork_clean).
func ForkClean(ctx context.Context, path string, opts ForkCleanOptions) (Outcome, error) {
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
		return Outcome{Status: StatusSkipped, Reason: "uncommitted"}, nil
	}

	branch, detached, err := CurrentBranch(ctx, path)
	if err != nil {
		return Outcome{}, err
	}
	if detached {
		return Outcome{}, fmt.Errorf("gitops: %s is in detached HEAD state", path)
	}

	defaultBranch, err := ResolveUpstreamDefaultBranch(ctx, path)
	if err != nil {
		return Outcome{}, err
	}
	upstreamRef := "upstream/" + defaultBranch

	currentTip, err := runGit(ctx, path, 0, "rev-parse", branch)
	if err != nil {
		return Outcome{}, err
	}
	upstreamTip, err := runGit(ctx, path, 0, "rev-parse", upstreamRef)
	if err != nil {
		return Outcome{}, err
	}
	if currentTip == upstreamTip {
		return Outcome{Status: StatusSkipped, Reason: "clean"}, nil
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	shortSHA := currentTip
	if len(shortSHA) > 7 {
		shortSHA = shortSHA[:7]
	}
	rescueName := fmt.Sprintf("rescue/%s-%s", now.UTC().Format("20060102T150405Z"), shortSHA)

	if opts.DryRun {
		detail := fmt.Sprintf("would hard-reset %s to %s", branch, upstreamRef)
		if opts.Rescue {
			detail = fmt.Sprintf("would create %s at %s, then %s", rescueName, currentTip, detail)
		}
		return Outcome{Status: StatusOK, Detail: detail}, nil
	}

	if !opts.Force && !opts.Confirmed {
		return Outcome{}, fmt.Errorf("gitops: fork-clean requires confirmation (force=false, confirmed=false)")
	}

	if opts.Rescue {
		if _, err := runGit(ctx, path, 0, "branch", rescueName, currentTip); err != nil {
			return Outcome{}, err
		}
	}
	if _, err := runGit(ctx, path, 0, "reset", "--hard", upstreamRef); err != nil {
		return Outcome{}, err
	}
	return Outcome{Status: StatusClean, Reason: "rescue_branch", Detail: rescueName}, nil
}
