package review

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joyshmitz/ru/internal/localfs"
)

// CheckpointSchemaVersion is RunCheckpoint's current schema version
// (spec §3 RunCheckpoint).
const CheckpointSchemaVersion = 1

// Checkpoint is a resumable snapshot of one review run (spec §3
// RunCheckpoint). Invariants enforced by the orchestrator that build
// one: RepposCompleted+RepposPending == RepposTotal; CompletedRepos and
// PendingRepos are disjoint; their union equals the configured RepoList
// at run start.
type Checkpoint struct {
	SchemaVersion    int      `json:"schema_version"`
	Timestamp        string   `json:"timestamp"`
	RunID            string   `json:"run_id"`
	Mode             string   `json:"mode"`
	ConfigHash       string   `json:"config_hash"`
	ReposTotal       int      `json:"repos_total"`
	ReposCompleted   int      `json:"repos_completed"`
	ReposPending     int      `json:"repos_pending"`
	QuestionsPending int      `json:"questions_pending"`
	CompletedRepos   []string `json:"completed_repos"`
	PendingRepos     []string `json:"pending_repos"`
}

// CheckpointView is the subset of Checkpoint (plus existence) emitted in
// review --status's `data.checkpoint` (spec §4.6).
type CheckpointView struct {
	Exists           bool
	RunID            string
	ReposTotal       int
	ReposCompleted   int
	ReposPending     int
	QuestionsPending int
	CompletedRepos   []string
	PendingRepos     []string
}

// ToMap renders CheckpointView the way the JSON envelope expects it.
func (v CheckpointView) ToMap() map[string]any {
	if !v.Exists {
		return map[string]any{"exists": false}
	}
	return map[string]any{
		"exists":            true,
		"run_id":            v.RunID,
		"repos_total":       v.ReposTotal,
		"repos_completed":   v.ReposCompleted,
		"repos_pending":     v.ReposPending,
		"questions_pending": v.QuestionsPending,
		"completed_repos":   v.CompletedRepos,
		"pending_repos":     v.PendingRepos,
	}
}

func (c Checkpoint) View() CheckpointView {
	return CheckpointView{
		Exists:           true,
		RunID:            c.RunID,
		ReposTotal:       c.ReposTotal,
		ReposCompleted:   c.ReposCompleted,
		ReposPending:     c.ReposPending,
		QuestionsPending: c.QuestionsPending,
		CompletedRepos:   c.CompletedRepos,
		PendingRepos:     c.PendingRepos,
	}
}

// LoadCheckpoint reads the checkpoint file, returning (Checkpoint{},
// false, nil) when none exists.
func LoadCheckpoint(path string) (Checkpoint, bool, error) {
	raw, err := localfs.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Checkpoint{}, false, nil
		}
		return Checkpoint{}, false, err
	}
	var cp Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return Checkpoint{}, false, err
	}
	return cp, true, nil
}

// SaveCheckpoint persists cp to path (spec §4.5 CHECKPOINT-LOAD /
// CHECKPOINT-FINAL write it only from the orchestrator thread, per spec
// §5's shared-resources rule).
func SaveCheckpoint(path string, cp Checkpoint) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return err
	}
	raw = append(raw, '\n')
	return os.WriteFile(path, raw, 0o600)
}

// ArchiveCheckpoint renames an existing checkpoint to a timestamped
// .bak file when config_hash has drifted (spec §4.5 CHECKPOINT-LOAD).
func ArchiveCheckpoint(path string, now time.Time) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	backup := fmt.Sprintf("%s.%s.bak", path, now.UTC().Format("20060102T150405Z"))
	return os.Rename(path, backup)
}

// AdoptCheckpoint implements spec §4.5 CHECKPOINT-LOAD: if a checkpoint
// exists and its config_hash matches currentHash, its completed_repos is
// adopted and pending_repos is seeded from it minus repos no longer
// configured; otherwise the old checkpoint is archived and a fresh one
// begins. restartOnAnyChange resolves spec §9's open question in favor
// of the observed shell behavior: any config drift (additions or
// removals) restarts the run, unless the caller opts out via
// config [review].restart_on_config_hash_change=false, in which case
// only removed repos trigger a restart.
func AdoptCheckpoint(existing Checkpoint, found bool, currentHash string, currentRepos []string, restartOnAnyChange bool) (completed, pending []string, resumed bool) {
	if !found {
		return nil, currentRepos, false
	}
	if existing.ConfigHash == currentHash {
		return dedupeAgainst(existing.CompletedRepos, currentRepos), dedupeAgainst(existing.PendingRepos, currentRepos), true
	}
	known := toSet(append(append([]string{}, existing.CompletedRepos...), existing.PendingRepos...))
	currentSet := toSet(currentRepos)
	removed := false
	for id := range known {
		if !currentSet[id] {
			removed = true
			break
		}
	}
	if !restartOnAnyChange && !removed {
		// Only additions occurred: keep progress, seed the new repos into
		// pending_repos alongside whatever was already pending.
		pending = append([]string{}, existing.PendingRepos...)
		for _, id := range currentRepos {
			if !known[id] {
				pending = append(pending, id)
			}
		}
		return dedupeAgainst(existing.CompletedRepos, currentRepos), pending, true
	}
	return nil, currentRepos, false
}

func dedupeAgainst(recorded, current []string) []string {
	currentSet := toSet(current)
	var out []string
	for _, id := range recorded {
		if currentSet[id] {
			out = append(out, id)
		}
	}
	return out
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}
