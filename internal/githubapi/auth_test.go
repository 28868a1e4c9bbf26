package githubapi

import (
	"context"
	"testing"
)

func TestResolveTokenPrefersEnvCascade(t *testing.T) {
	env := map[string]string{"GH_TOKEN": "from-gh-token"}
	token, err := ResolveToken(context.Background(), func(key string) string { return env[key] })
	if err != nil {
		t.Fatalf("ResolveToken failed: %v", err)
	}
	if token != "from-gh-token" {
		t.Fatalf("expected env cascade token, got %q", token)
	}
}

func TestResolveTokenCascadeOrder(t *testing.T) {
	env := map[string]string{
		"GITHUB_TOKEN": "first",
		"GH_TOKEN":     "second",
		"GITHUB_PAT":   "third",
	}
	token, err := ResolveToken(context.Background(), func(key string) string { return env[key] })
	if err != nil {
		t.Fatalf("ResolveToken failed: %v", err)
	}
	if token != "first" {
		t.Fatalf("expected GITHUB_TOKEN to take priority, got %q", token)
	}
}
