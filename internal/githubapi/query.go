package githubapi

import (
	"fmt"
	"strings"

	"github.com/joyshmitz/ru/internal/reposet"
)

// DefaultBatchSize is the default chunk size for gh_graphql_repo_batch
// (spec §4.3); it halves to MinBatchSize on rate limiting.
const (
	DefaultBatchSize = 10
	MinBatchSize     = 1
	itemsPerRepo     = 20
)

// escapeJSONString renders value as a quoted, fully-escaped JSON string
// literal. This is the sole defense against GraphQL query injection via
// crafted repo specs (spec §4.3 invariant: no input byte reaches the
// query outside of a quoted string); it is applied even though
// ParseSpec's segment validation already rejects the characters that
// would matter, because the query builder must not rely on a caller
// upholding that invariant.
func escapeJSONString(value string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range value {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(&b, `\u%04x`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
	return b.String()
}

// BuildRepoBatchQuery aliases each repo in chunk as repo0, repo1, … and
// requests the fields discover_work_items needs (spec §4.3
// gh_graphql_repo_batch).
func BuildRepoBatchQuery(chunk []reposet.RepoSpec) string {
	var b strings.Builder
	b.WriteString("query {\n")
	for i, spec := range chunk {
		fmt.Fprintf(&b, "  repo%d: repository(owner: %s, name: %s) {\n", i, escapeJSONString(spec.Owner), escapeJSONString(spec.Name))
		b.WriteString("    nameWithOwner\n")
		b.WriteString("    isArchived\n")
		b.WriteString("    isFork\n")
		b.WriteString("    updatedAt\n")
		fmt.Fprintf(&b, "    issues(first: %d, states: OPEN) {\n", itemsPerRepo)
		b.WriteString("      nodes { number title createdAt updatedAt labels(first: 20) { nodes { name } } }\n")
		b.WriteString("    }\n")
		fmt.Fprintf(&b, "    pullRequests(first: %d, states: OPEN) {\n", itemsPerRepo)
		b.WriteString("      nodes { number title createdAt updatedAt isDraft labels(first: 20) { nodes { name } } }\n")
		b.WriteString("    }\n")
		b.WriteString("  }\n")
	}
	b.WriteString("}\n")
	return b.String()
}

// ChunkSpecs splits specs into batches of at most size (minimum 1).
func ChunkSpecs(specs []reposet.RepoSpec, size int) [][]reposet.RepoSpec {
	if size < MinBatchSize {
		size = MinBatchSize
	}
	var chunks [][]reposet.RepoSpec
	for start := 0; start < len(specs); start += size {
		end := start + size
		if end > len(specs) {
			end = len(specs)
		}
		chunks = append(chunks, specs[start:end])
	}
	return chunks
}
