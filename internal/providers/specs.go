// Package providers centralizes request defaults for remote APIs ru talks
// to, so the GraphQL client doesn't duplicate constants.
package providers

type ID string

const (
	GitHub ID = "github"
)

type Spec struct {
	BaseURL   string
	UserAgent string
	Accept    string

	// Candidate request-id headers used for correlation/debugging.
	RequestIDHeaders []string

	// Provider-specific headers set by default for every request. Callers
	// may still override per request.
	DefaultHeaders map[string]string
}

var Specs = map[ID]Spec{
	GitHub: {
		BaseURL:   "https://api.github.com",
		UserAgent: "ru/1.0",
		Accept:    "application/vnd.github+json",
		RequestIDHeaders: []string{
			"X-GitHub-Request-Id",
		},
		DefaultHeaders: map[string]string{
			"X-GitHub-Api-Version": "2022-11-28",
		},
	},
}
