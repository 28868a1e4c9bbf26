// Package gitops wraps the host git binary (spec §4.2). Every call runs
// with a working directory explicitly provided; there is no implicit
// "current directory" git state, generalizing the teacher's os/exec
// subprocess-wrapping idiom (seen in codex_status.go's tmuxOutput and the
// deleted git_identity.go's gitConfigGlobalGet) to the fleet domain.
package gitops

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultSubprocessTimeout is the per-git-subprocess timeout from spec §5.
const DefaultSubprocessTimeout = 5 * time.Minute

// runGit executes `git <args...>` with dir as its working directory and
// returns trimmed stdout. stderr is folded into the returned error.
func runGit(ctx context.Context, dir string, timeout time.Duration, args ...string) (string, error) {
	if timeout <= 0 {
		timeout = DefaultSubprocessTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "git", args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("git %s: timed out after %s", strings.Join(args, " "), timeout)
	}
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("git %s: %s", strings.Join(args, " "), msg)
	}
	return strings.TrimSpace(stdout.String()), nil
}

func ensureGitAvailable() error {
	if _, err := exec.LookPath("git"); err != nil {
		return fmt.Errorf("git binary not found on PATH: %w", err)
	}
	return nil
}
