package githubapi

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/joyshmitz/ru/internal/concurrency"
	"github.com/joyshmitz/ru/internal/httpx"
	"github.com/joyshmitz/ru/internal/netpolicy"
	"github.com/joyshmitz/ru/internal/providers"
	"github.com/joyshmitz/ru/internal/reposet"
	"github.com/joyshmitz/ru/internal/ruerr"
)

var graphqlEndpoint = providers.Specs[providers.GitHub].BaseURL + "/graphql"

// graphqlBackoffBase/Cap/MaxAttempts implement spec §4.3's batch-retry
// policy: exponential backoff base 1s, x2, capped at 60s, up to 5
// attempts, used by sleepBackoff whenever the server doesn't send its
// own Retry-After (see netpolicy.RetryAfterDelay).
const (
	graphqlBackoffBase = 1 * time.Second
	graphqlBackoffCap  = 60 * time.Second
	graphqlMaxAttempts = 5
	requestTimeout     = 60 * time.Second
)

// titleDelimiters are the internal delimiter characters used by the
// textual work-item encoding; WorkItem titles must never contain them
// (spec §4.3, testable property 4).
const titleDelimiters = "|"

// WorkItem is a discovered unit of attention (spec §3 WorkItem).
type WorkItem struct {
	RepoID    string    `json:"repo_id"`
	Kind      string    `json:"kind"` // "issue" or "pr"
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	CreatedAt string    `json:"createdAt"`
	UpdatedAt string    `json:"updatedAt"`
	Labels    []string  `json:"labels"`
	IsDraft   bool      `json:"isDraft,omitempty"`
}

// Kinds the caller may request from discover_work_items.
const (
	KindIssue = "issue"
	KindPR    = "pr"
)

func sanitizeTitle(title string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(titleDelimiters, r) {
			return ' '
		}
		return r
	}, title)
}

// Client talks to the GitHub GraphQL API for batched fleet discovery.
type Client struct {
	Token      string
	HTTPClient *http.Client
	// Endpoint overrides the GraphQL URL; empty means graphqlEndpoint.
	// Tests point this at an httptest server.
	Endpoint string
}

// NewClient builds a Client backed by the shared pooled transport
// (internal/httpx), mirroring the teacher's one-transport-many-clients
// pattern.
func NewClient(token string) *Client {
	return &Client{Token: token, HTTPClient: httpx.SharedClient(requestTimeout)}
}

func (c *Client) endpoint() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	return graphqlEndpoint
}

type rawRepoNode struct {
	NameWithOwner string `json:"nameWithOwner"`
	IsArchived    bool   `json:"isArchived"`
	IsFork        bool   `json:"isFork"`
	UpdatedAt     string `json:"updatedAt"`
	Issues        struct {
		Nodes []rawItemNode `json:"nodes"`
	} `json:"issues"`
	PullRequests struct {
		Nodes []rawItemNode `json:"nodes"`
	} `json:"pullRequests"`
}

type rawItemNode struct {
	Number    int    `json:"number"`
	Title     string `json:"title"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
	IsDraft   bool   `json:"isDraft"`
	Labels    struct {
		Nodes []struct {
			Name string `json:"name"`
		} `json:"nodes"`
	} `json:"labels"`
}

type graphqlEnvelope struct {
	Data   map[string]*rawRepoNode `json:"data"`
	Errors []graphqlError          `json:"errors"`
}

type graphqlError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (e graphqlError) isRateLimited() bool {
	return strings.Contains(strings.ToUpper(e.Type), "RATE_LIMITED") || strings.Contains(strings.ToUpper(e.Message), "RATE_LIMITED")
}

// repoBatch invokes one GraphQL request for chunk, retrying with
// exponential backoff and a halving batch size on rate limiting (spec
// §4.3 gh_graphql_repo_batch). It returns the parsed envelope for the
// (possibly smaller) chunk it ultimately queried.
func (c *Client) repoBatch(ctx context.Context, chunk []reposet.RepoSpec) (*graphqlEnvelope, error) {
	attempt := 0
	for {
		attempt++
		query := BuildRepoBatchQuery(chunk)
		body, _ := json.Marshal(map[string]string{"query": query})
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), strings.NewReader(string(body)))
		if err != nil {
			return nil, err
		}
		spec := providers.Specs[providers.GitHub]
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.Token)
		req.Header.Set("User-Agent", spec.UserAgent)
		if spec.Accept != "" {
			req.Header.Set("Accept", spec.Accept)
		}
		for k, v := range spec.DefaultHeaders {
			req.Header.Set(k, v)
		}

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			if attempt >= graphqlMaxAttempts {
				return nil, fmt.Errorf("githubapi: graphql request failed after %d attempts: %w", attempt, err)
			}
			if sleepErr := sleepBackoff(ctx, nil, attempt); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}

		rawBody, readErr := readAndClose(resp)
		if readErr != nil {
			return nil, readErr
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			retryable := shouldRetryStatus(resp.StatusCode)
			if retryable && attempt < graphqlMaxAttempts {
				chunk = shrinkBatch(chunk)
				if sleepErr := sleepBackoff(ctx, resp.Header, attempt); sleepErr != nil {
					return nil, sleepErr
				}
				continue
			}
			details := NormalizeHTTPError(resp.StatusCode, resp.Header, rawBody)
			if retryable {
				// A 429/5xx that's still failing after exhausting retries is a
				// rate-limit/availability condition, not a permanent failure.
				return nil, ruerr.New(ruerr.RateLimited, details.Message, details)
			}
			// 401/403/404/etc: spec §7 treats these as permanent failures,
			// distinct from RateLimited's "retry automatically" handling.
			return nil, ruerr.New(ruerr.DiscoveryFailed, details.Message, details)
		}

		var envelope graphqlEnvelope
		if err := json.Unmarshal([]byte(rawBody), &envelope); err != nil {
			return nil, fmt.Errorf("githubapi: malformed graphql response: %w", err)
		}

		rateLimited := false
		for _, gqlErr := range envelope.Errors {
			if gqlErr.isRateLimited() {
				rateLimited = true
				break
			}
		}
		if rateLimited {
			if attempt >= graphqlMaxAttempts {
				return nil, ruerr.New(ruerr.RateLimited, "graphql rate limited after max attempts", nil)
			}
			chunk = shrinkBatch(chunk)
			if sleepErr := sleepBackoff(ctx, resp.Header, attempt); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}

		return &envelope, nil
	}
}

func shrinkBatch(chunk []reposet.RepoSpec) []reposet.RepoSpec {
	if len(chunk) <= MinBatchSize {
		return chunk
	}
	half := len(chunk) / 2
	if half < MinBatchSize {
		half = MinBatchSize
	}
	return chunk[:half]
}

func shouldRetryStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// sleepBackoff honors a server-supplied Retry-After header when present
// (capped at graphqlBackoffCap, same ceiling as the exponential curve),
// falling back to the GraphQL-specific exponential-with-jitter curve
// otherwise.
func sleepBackoff(ctx context.Context, headers http.Header, attempt int) error {
	delay, ok := netpolicy.RetryAfterDelay(headers)
	if !ok || delay <= 0 {
		delay = graphqlBackoffBase * time.Duration(1<<uint(attempt-1))
		if delay > graphqlBackoffCap {
			delay = graphqlBackoffCap
		}
		delay += time.Duration(rand.Int63n(int64(delay/4) + 1))
	} else if delay > graphqlBackoffCap {
		delay = graphqlBackoffCap
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func readAndClose(resp *http.Response) (string, error) {
	defer resp.Body.Close()
	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			break
		}
	}
	return string(buf), nil
}

// DiscoverOptions configures discover_work_items (spec §4.3).
type DiscoverOptions struct {
	Kinds     []string // subset of {issue, pr}; empty means both
	Since     time.Time
	SkipForks bool
	BatchSize int
	// Workers bounds how many batch chunks are queried concurrently
	// (spec §4.7's parallel_agent_sweep, applied to discovery's own
	// chunking rather than just the review fleet). 0 uses
	// concurrency.DefaultSweepWorkers.
	Workers int
	// BackoffPath, if set, is the shared backoff.state file chunked
	// requests consult before dispatch and write to when rate limited,
	// so a chunk that trips the limit doesn't let its siblings pile on
	// immediately behind it.
	BackoffPath string
}

// DiscoverWorkItems chunks registry, invokes the batch query per chunk
// (bounded concurrently via concurrency.Sweep, sharing a backoff signal
// across chunks when opts.BackoffPath is set), and parses the results
// into WorkItems, filtering by kind, since, and archived/fork status
// (spec §4.3 discover_work_items).
func (c *Client) DiscoverWorkItems(ctx context.Context, registry []reposet.RepoSpec, opts DiscoverOptions) ([]WorkItem, error) {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	wantKinds := map[string]bool{}
	if len(opts.Kinds) == 0 {
		wantKinds[KindIssue] = true
		wantKinds[KindPR] = true
	} else {
		for _, k := range opts.Kinds {
			wantKinds[k] = true
		}
	}

	chunks := ChunkSpecs(registry, batchSize)
	envelopes := make([]*graphqlEnvelope, len(chunks))
	tasks := make([]concurrency.Task, len(chunks))
	for i, chunk := range chunks {
		i, chunk := i, chunk
		tasks[i] = func() error {
			envelope, err := c.repoBatch(ctx, chunk)
			if err != nil {
				if ruErr, ok := err.(*ruerr.Error); ok && ruErr.Kind == ruerr.RateLimited && opts.BackoffPath != "" {
					_ = concurrency.TriggerBackoff(opts.BackoffPath, "graphql rate limited", graphqlBackoffCap, time.Now())
				}
				return err
			}
			envelopes[i] = envelope
			return nil
		}
	}
	var waitIfNeeded func() error
	if opts.BackoffPath != "" {
		waitIfNeeded = func() error { return concurrency.WaitIfNeeded(opts.BackoffPath, time.Now) }
	}
	for _, err := range concurrency.Sweep(opts.Workers, tasks, waitIfNeeded) {
		if err != nil {
			return nil, err
		}
	}

	var items []WorkItem
	for ci, chunk := range chunks {
		envelope := envelopes[ci]
		if envelope == nil {
			continue
		}
		for i, spec := range chunk {
			node := envelope.Data[fmt.Sprintf("repo%d", i)]
			if node == nil {
				continue
			}
			if node.IsArchived {
				continue
			}
			if opts.SkipForks && node.IsFork {
				continue
			}
			repoID := spec.GithubID()
			if wantKinds[KindIssue] {
				for _, n := range node.Issues.Nodes {
					if item, ok := toWorkItem(repoID, KindIssue, n, opts.Since); ok {
						items = append(items, item)
					}
				}
			}
			if wantKinds[KindPR] {
				for _, n := range node.PullRequests.Nodes {
					if item, ok := toWorkItem(repoID, KindPR, n, opts.Since); ok {
						item.IsDraft = n.IsDraft
						items = append(items, item)
					}
				}
			}
		}
	}
	return items, nil
}

func toWorkItem(repoID, kind string, n rawItemNode, since time.Time) (WorkItem, bool) {
	if !since.IsZero() {
		updated, err := time.Parse(time.RFC3339, n.UpdatedAt)
		if err == nil && updated.Before(since) {
			return WorkItem{}, false
		}
	}
	labels := make([]string, 0, len(n.Labels.Nodes))
	for _, l := range n.Labels.Nodes {
		labels = append(labels, l.Name)
	}
	return WorkItem{
		RepoID:    repoID,
		Kind:      kind,
		Number:    n.Number,
		Title:     sanitizeTitle(n.Title),
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
		Labels:    labels,
	}, true
}
