package gitops

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// WorktreeRecord maps a repo_id to its allocated worktree (spec §3
// WorktreeRecord).
type WorktreeRecord struct {
	WorktreePath string `json:"worktree_path"`
	BranchName   string `json:"branch_name"`
	CreatedAt    string `json:"created_at"`
	RunID        string `json:"run_id"`
}

// WorktreeAdd creates a linked worktree at path checked out to branch,
// creating branch off the current tip if it does not already exist
// (spec §4.2 worktree_add). path's parent must exist; path itself must
// not.
func WorktreeAdd(ctx context.Context, repoPath, path, branch string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("gitops: worktree path already exists: %s", path)
	}
	branchExists, err := branchExistsLocally(ctx, repoPath, branch)
	if err != nil {
		return err
	}
	args := []string{"worktree", "add"}
	if !branchExists {
		args = append(args, "-b", branch, path)
	} else {
		args = append(args, path, branch)
	}
	if _, err := runGit(ctx, repoPath, 0, args...); err != nil {
		return fmt.Errorf("gitops: worktree add failed: %w", err)
	}
	return nil
}

func branchExistsLocally(ctx context.Context, repoPath, branch string) (bool, error) {
	_, err := runGit(ctx, repoPath, 0, "rev-parse", "--verify", "--quiet", "refs/heads/"+branch)
	return err == nil, nil
}

// WorktreeListEntry reflects one record from `git worktree list --porcelain`.
type WorktreeListEntry struct {
	Path   string
	Head   string
	Branch string
	Locked bool
}

// WorktreeList reflects the result of git worktree list --porcelain
// (spec §4.2 worktree_list).
func WorktreeList(ctx context.Context, repoPath string) ([]WorktreeListEntry, error) {
	out, err := runGit(ctx, repoPath, 0, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	var entries []WorktreeListEntry
	var cur *WorktreeListEntry
	flush := func() {
		if cur != nil {
			entries = append(entries, *cur)
			cur = nil
		}
	}
	for _, line := range strings.Split(out, "\n") {
		switch {
		case strings.HasPrefix(line, "worktree "):
			flush()
			cur = &WorktreeListEntry{Path: strings.TrimPrefix(line, "worktree ")}
		case strings.HasPrefix(line, "HEAD "):
			if cur != nil {
				cur.Head = strings.TrimPrefix(line, "HEAD ")
			}
		case strings.HasPrefix(line, "branch "):
			if cur != nil {
				cur.Branch = strings.TrimPrefix(strings.TrimPrefix(line, "branch "), "refs/heads/")
			}
		case line == "locked":
			if cur != nil {
				cur.Locked = true
			}
		case line == "":
			flush()
		}
	}
	flush()
	return entries, nil
}

// WorktreeRemove removes the linked worktree at path; with force, ignores
// dirty state in that worktree. Afterward runs a prune so a worktree
// whose directory was deleted externally is also pruned (spec §4.2
// worktree_remove).
func WorktreeRemove(ctx context.Context, repoPath, path string, force bool) error {
	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, path)
	if _, err := runGit(ctx, repoPath, 0, args...); err != nil {
		return fmt.Errorf("gitops: worktree remove failed: %w", err)
	}
	_, _ = runGit(ctx, repoPath, 0, "worktree", "prune")
	return nil
}

// LoadWorktreeMapping reads the persisted WorktreeRecord map from
// <worktrees_dir>/mapping.json (spec §3, §6).
func LoadWorktreeMapping(path string) (map[string]WorktreeRecord, error) {
	raw, err := os.ReadFile(path) // #nosec G304 -- path is ru's own resolved worktree mapping file.
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]WorktreeRecord{}, nil
		}
		return nil, err
	}
	var mapping map[string]WorktreeRecord
	if err := json.Unmarshal(raw, &mapping); err != nil {
		return nil, err
	}
	if mapping == nil {
		mapping = map[string]WorktreeRecord{}
	}
	return mapping, nil
}

// SaveWorktreeMapping persists the WorktreeRecord map atomically enough
// for a single-writer orchestrator (spec §5: "checkpoint file is written
// only by the orchestrator thread").
func SaveWorktreeMapping(path string, mapping map[string]WorktreeRecord) error {
	raw, err := json.MarshalIndent(mapping, "", "  ")
	if err != nil {
		return err
	}
	raw = append(raw, '\n')
	return os.WriteFile(path, raw, 0o600)
}
