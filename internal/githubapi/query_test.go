package githubapi

import (
	"strings"
	"testing"

	"github.com/joyshmitz/ru/internal/reposet"
)

func TestBuildRepoBatchQueryEscapesAliasesCorrectly(t *testing.T) {
	chunk := []reposet.RepoSpec{
		{Host: "github.com", Owner: "octocat", Name: "hello-world"},
		{Host: "github.com", Owner: "foo", Name: "bar"},
	}
	query := BuildRepoBatchQuery(chunk)
	if !strings.Contains(query, "repo0: repository(owner: \"octocat\", name: \"hello-world\")") {
		t.Fatalf("expected repo0 alias, got:\n%s", query)
	}
	if !strings.Contains(query, "repo1: repository(owner: \"foo\", name: \"bar\")") {
		t.Fatalf("expected repo1 alias, got:\n%s", query)
	}
}

// TestEscapeJSONStringInjectionResistance is spec §8 testable property 3:
// for every spec that parses, the produced query substring begins and
// ends with '"' and contains no unescaped '"' or '\' in between.
func TestEscapeJSONStringInjectionResistance(t *testing.T) {
	cases := []string{
		`owner-with-"quote`,
		`owner\with\backslash`,
		"owner\nwith\nnewline",
		"plain-owner",
	}
	for _, raw := range cases {
		escaped := escapeJSONString(raw)
		if !strings.HasPrefix(escaped, `"`) || !strings.HasSuffix(escaped, `"`) {
			t.Fatalf("escaped value must be wrapped in quotes: %q", escaped)
		}
		inner := escaped[1 : len(escaped)-1]
		for i := 0; i < len(inner); i++ {
			if inner[i] == '"' {
				t.Fatalf("unescaped quote in %q", escaped)
			}
			if inner[i] == '\\' {
				i++ // skip the escaped character
				if i >= len(inner) {
					t.Fatalf("dangling escape in %q", escaped)
				}
			}
		}
	}
}

func TestChunkSpecsRespectsSizeAndMinimum(t *testing.T) {
	specs := make([]reposet.RepoSpec, 25)
	for i := range specs {
		specs[i] = reposet.RepoSpec{Host: "github.com", Owner: "o", Name: "n"}
	}
	chunks := ChunkSpecs(specs, 10)
	if len(chunks) != 3 || len(chunks[0]) != 10 || len(chunks[2]) != 5 {
		t.Fatalf("unexpected chunking: %v sizes", chunkSizes(chunks))
	}

	chunks = ChunkSpecs(specs, 0)
	if len(chunks) != len(specs) {
		t.Fatalf("expected size<1 to clamp to 1, got %d chunks", len(chunks))
	}
}

func chunkSizes(chunks [][]reposet.RepoSpec) []int {
	sizes := make([]int, len(chunks))
	for i, c := range chunks {
		sizes[i] = len(c)
	}
	return sizes
}
