package reposet

import "testing"

func TestParseSpecForms(t *testing.T) {
	cases := []struct {
		in   string
		want RepoSpec
	}{
		{"octocat/hello-world", RepoSpec{Host: "github.com", Owner: "octocat", Name: "hello-world"}},
		{"gitlab.com:octocat/hello-world", RepoSpec{Host: "gitlab.com", Owner: "octocat", Name: "hello-world"}},
		{"https://github.com/octocat/hello-world", RepoSpec{Host: "github.com", Owner: "octocat", Name: "hello-world"}},
		{"https://github.com/octocat/hello-world.git", RepoSpec{Host: "github.com", Owner: "octocat", Name: "hello-world"}},
		{"git@github.com:octocat/hello-world.git", RepoSpec{Host: "github.com", Owner: "octocat", Name: "hello-world"}},
		{"  octocat/hello-world  ", RepoSpec{Host: "github.com", Owner: "octocat", Name: "hello-world"}},
	}
	for _, c := range cases {
		got, err := ParseSpec(c.in)
		if err != nil {
			t.Fatalf("ParseSpec(%q) unexpected error: %v", c.in, err)
		}
		if !got.Equal(c.want) {
			t.Fatalf("ParseSpec(%q) = %+v, want %+v", c.in, got, c.want)
		}
	}
}

func TestParseSpecCanonicalizationProperty(t *testing.T) {
	// Property 1: parse_spec(serialize(parse_spec(s))) == parse_spec(s).
	// Specs differing only in trailing .git or whitespace are equal.
	a, err := ParseSpec("octocat/hello-world")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := ParseSpec("https://github.com/octocat/hello-world.git")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !a.Equal(b) {
		t.Fatalf("expected canonicalized specs to be equal: %+v vs %+v", a, b)
	}
	reparsed, err := ParseSpec(a.Canonical())
	if err != nil {
		t.Fatalf("unexpected error reparsing canonical form: %v", err)
	}
	if !reparsed.Equal(a) {
		t.Fatalf("expected reparsed canonical form to equal original")
	}
}

func TestParseSpecRejectsMalformedSegments(t *testing.T) {
	bad := []string{
		`malicious"injection/repo`,
		"../escape/repo",
		"-leading/repo",
		"owner/../name",
		"owner/",
		"/name",
		"",
	}
	for _, in := range bad {
		if _, err := ParseSpec(in); err == nil {
			t.Fatalf("ParseSpec(%q) expected error, got none", in)
		}
	}
}

func TestConfigHashStableAndOrderSensitive(t *testing.T) {
	a := []RepoSpec{{Host: "github.com", Owner: "a", Name: "one"}, {Host: "github.com", Owner: "b", Name: "two"}}
	b := []RepoSpec{{Host: "github.com", Owner: "a", Name: "one"}, {Host: "github.com", Owner: "b", Name: "two"}}
	if ConfigHash(a) != ConfigHash(b) {
		t.Fatalf("expected identical repo lists to hash identically")
	}
	c := []RepoSpec{{Host: "github.com", Owner: "b", Name: "two"}, {Host: "github.com", Owner: "a", Name: "one"}}
	if ConfigHash(a) == ConfigHash(c) {
		t.Fatalf("expected reordered repo lists to hash differently")
	}
}
