package githubapi

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/joyshmitz/ru/internal/ruerr"
)

// ResolveToken resolves a GitHub OAuth token the way the gh CLI's own
// callers do: check the common env-var cascade first, then fall back to
// asking gh itself. getenv is injected so callers can test without
// touching the real environment.
func ResolveToken(ctx context.Context, getenv func(string) string) (string, error) {
	for _, key := range []string{"GITHUB_TOKEN", "GH_TOKEN", "GITHUB_PAT"} {
		if value := strings.TrimSpace(getenv(key)); value != "" {
			return value, nil
		}
	}
	token, err := ghAuthToken(ctx)
	if err != nil {
		return "", ruerr.New(ruerr.PrereqAuth, "no github token in environment and `gh auth token` failed", err)
	}
	return token, nil
}

func ghAuthToken(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, "gh", "auth", "token")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("gh auth token: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// AuthPrecheck runs the cheap auth probe required before any discovery
// (spec §4.3 auth_precheck): a non-zero exit from `gh auth status` yields
// the well-defined PrereqAuth error.
func AuthPrecheck(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	cmd := exec.CommandContext(probeCtx, "gh", "auth", "status")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return ruerr.New(ruerr.PrereqAuth, "gh auth status failed: "+RedactSensitive(strings.TrimSpace(stderr.String())), err)
	}
	return nil
}
