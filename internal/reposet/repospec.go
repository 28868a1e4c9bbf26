// Package reposet implements the repo registry (spec §4.1): parsing and
// canonicalizing repo specs, enumerating configured repos, and locating
// local clones.
package reposet

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

const defaultHost = "github.com"

// RepoSpec is the canonical identity of one configured repository
// (spec §3 RepoSpec).
type RepoSpec struct {
	Host  string
	Owner string
	Name  string
}

// ParseError reports a malformed repo spec line, kind ConfigParse per
// spec §7.
type ParseError struct {
	Line   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("config parse: %q: %s", e.Line, e.Reason)
}

var segmentRe = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// GithubID returns the canonical "owner/name" identity used for
// deduplication and display.
func (s RepoSpec) GithubID() string {
	return s.Owner + "/" + s.Name
}

// Canonical returns the "host/owner/name" form used by config_hash and by
// spec canonicalization property 1.
func (s RepoSpec) Canonical() string {
	return s.Host + "/" + s.Owner + "/" + s.Name
}

// Equal implements the equality rule from spec §3: two specs are equal
// iff host, owner, and name are equal.
func (s RepoSpec) Equal(other RepoSpec) bool {
	return s.Host == other.Host && s.Owner == other.Owner && s.Name == other.Name
}

// ParseSpec accepts "owner/name", "host:owner/name", or a full clone URL
// (https://host/owner/name[.git], git@host:owner/name[.git]).
func ParseSpec(line string) (RepoSpec, error) {
	raw := strings.TrimSpace(line)
	if raw == "" {
		return RepoSpec{}, &ParseError{Line: line, Reason: "empty spec"}
	}

	if host, owner, name, ok := parseCloneURL(raw); ok {
		return validateSpec(host, owner, name, line)
	}
	if host, rest, ok := strings.Cut(raw, ":"); ok && !strings.Contains(host, "/") {
		owner, name, ok := strings.Cut(rest, "/")
		if !ok {
			return RepoSpec{}, &ParseError{Line: line, Reason: "expected owner/name after host:"}
		}
		return validateSpec(host, owner, name, line)
	}
	owner, name, ok := strings.Cut(raw, "/")
	if !ok {
		return RepoSpec{}, &ParseError{Line: line, Reason: "expected owner/name"}
	}
	return validateSpec(defaultHost, owner, name, line)
}

func parseCloneURL(raw string) (host, owner, name string, ok bool) {
	switch {
	case strings.HasPrefix(raw, "https://"):
		rest := strings.TrimPrefix(raw, "https://")
		host, path, found := strings.Cut(rest, "/")
		if !found {
			return "", "", "", false
		}
		owner, name, found = strings.Cut(path, "/")
		if !found {
			return "", "", "", false
		}
		return host, owner, name, true
	case strings.HasPrefix(raw, "git@"):
		rest := strings.TrimPrefix(raw, "git@")
		host, path, found := strings.Cut(rest, ":")
		if !found {
			return "", "", "", false
		}
		owner, name, found = strings.Cut(path, "/")
		if !found {
			return "", "", "", false
		}
		return host, owner, name, true
	default:
		return "", "", "", false
	}
}

func validateSpec(host, owner, name, original string) (RepoSpec, error) {
	host = strings.TrimSpace(host)
	owner = strings.TrimSpace(owner)
	name = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(name), ".git"))
	if host == "" {
		host = defaultHost
	}
	if err := validateSegment(owner); err != nil {
		return RepoSpec{}, &ParseError{Line: original, Reason: "owner: " + err.Error()}
	}
	if err := validateSegment(name); err != nil {
		return RepoSpec{}, &ParseError{Line: original, Reason: "name: " + err.Error()}
	}
	return RepoSpec{Host: host, Owner: owner, Name: name}, nil
}

func validateSegment(segment string) error {
	if segment == "" {
		return fmt.Errorf("must not be empty")
	}
	if !segmentRe.MatchString(segment) {
		return fmt.Errorf("must match [A-Za-z0-9._-]+")
	}
	if strings.Contains(segment, "..") {
		return fmt.Errorf("must not contain '..'")
	}
	if strings.HasPrefix(segment, "-") {
		return fmt.Errorf("must not start with '-'")
	}
	return nil
}

// ConfigHash computes a stable digest over the canonical form of a list
// of specs, used to detect config drift between runs (spec §4.1).
func ConfigHash(specs []RepoSpec) string {
	var b strings.Builder
	for _, s := range specs {
		b.WriteString(s.Canonical())
		b.WriteByte('\n')
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
