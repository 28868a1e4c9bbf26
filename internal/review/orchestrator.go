// Package review implements the review orchestrator (spec §4.5 C5): the
// run-scoped state machine INIT -> LOCK -> PREREQ -> DISCOVER ->
// [DRY-RUN-EXIT] -> CHECKPOINT-LOAD -> PLAN -> ALLOCATE -> LAUNCH ->
// MONITOR -> DRAIN -> CHECKPOINT-FINAL -> RELEASE.
package review

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joyshmitz/ru/internal/concurrency"
	"github.com/joyshmitz/ru/internal/config"
	"github.com/joyshmitz/ru/internal/driver"
	"github.com/joyshmitz/ru/internal/githubapi"
	"github.com/joyshmitz/ru/internal/gitops"
	"github.com/joyshmitz/ru/internal/reposet"
	"github.com/joyshmitz/ru/internal/ruerr"
	"github.com/joyshmitz/ru/internal/state"
)

// Options configures one review run (spec §6 CLI surface's review
// flags).
type Options struct {
	DryRun       bool
	StatusOnly   bool
	Mode         string
	Strategy     string
	KeepSessions bool
}

// RepoOutcome is one repo's final disposition in the run summary (spec
// §7 propagation policy: "every per-repo task captures its error into
// the run summary").
type RepoOutcome struct {
	RepoID string
	Status string // "completed", "skipped", "failed"
	Reason string
}

// Result is what Run returns: the run summary plus the process exit
// code the caller (cmd/ru) should use.
type Result struct {
	ExitCode int
	RunID    string
	Items    []githubapi.WorkItem
	Outcomes []RepoOutcome
	Envelope state.Envelope
}

// Deps bundles the external collaborators Run needs, so orchestration
// logic stays independently testable against fakes (spec §9: "each
// component in §2 is a freestanding, independently testable module").
type Deps struct {
	Paths       state.Paths
	Config      config.Config
	Registry    reposet.RepoList
	GitHub      *githubapi.Client
	DetectDrv   func() string
	LoadDrv     func(name string, maxConcurrent int) (driver.Driver, error)
	ReviewCmd   func(repoID, worktreePath string) string // constructed by the out-of-scope command layer
	Now         func() time.Time
	AuthPrecheck func(ctx context.Context) error
}

// Run drives one review invocation through the full state machine (spec
// §4.5).
func Run(ctx context.Context, opts Options, deps Deps) (Result, error) {
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	// INIT
	runID, err := NewRunID()
	if err != nil {
		return Result{}, err
	}
	mode := opts.Mode
	if mode == "" {
		mode = deps.Config.Review.Mode
	}
	currentHash := reposet.ConfigHash(deps.Registry.Specs)

	paths := deps.Paths
	lockPath := paths.ReviewLockFile()
	infoPath := paths.ReviewLockInfoFile()

	if opts.StatusOnly {
		lockStatus := ReadLockStatus(lockPath, infoPath)
		cp, found, _ := LoadCheckpoint(paths.ReviewCheckpointFile())
		view := CheckpointView{Exists: false}
		if found {
			view = cp.View()
		}
		data := MarshalStatusData(lockStatus, view)
		env := state.NewEnvelope("1", "review", "status", data, nil)
		return Result{ExitCode: 0, RunID: runID, Envelope: env}, nil
	}

	// LOCK
	if err := AcquireLock(lockPath, infoPath, LockInfo{RunID: runID, StartedAt: nowRFC3339(), PID: os.Getpid(), Mode: mode}); err != nil {
		if rerr, ok := err.(*ruerr.Error); ok {
			return Result{ExitCode: rerr.ExitCode(), RunID: runID}, rerr
		}
		return Result{}, err
	}
	released := false
	release := func() {
		if released {
			return
		}
		released = true
		_ = ReleaseLock(lockPath, infoPath)
	}
	defer release()

	runLog, _ := state.OpenRunLog(paths.LogsDir(), runID)
	defer runLog.Close()
	runLog.Logf("lock acquired mode=%s", mode)
	defer runLog.Logf("released")

	// PREREQ
	if deps.AuthPrecheck != nil {
		if err := deps.AuthPrecheck(ctx); err != nil {
			if rerr, ok := err.(*ruerr.Error); ok {
				return Result{ExitCode: rerr.ExitCode(), RunID: runID}, rerr
			}
			return Result{ExitCode: 3, RunID: runID}, err
		}
	}

	// DISCOVER
	discoverWorkers := deps.Config.Review.SweepWorkers
	if discoverWorkers <= 0 {
		discoverWorkers = concurrency.DefaultSweepWorkers
	}
	items, err := deps.GitHub.DiscoverWorkItems(ctx, deps.Registry.Specs, githubapi.DiscoverOptions{
		SkipForks:   true,
		Workers:     discoverWorkers,
		BackoffPath: paths.BackoffStateFile(),
	})
	if err != nil {
		return Result{ExitCode: 1, RunID: runID}, err
	}
	runLog.Logf("discovered %d work items across %d repos", len(items), len(deps.Registry.Specs))

	if opts.DryRun {
		env := discoveryEnvelope(runID, mode, items)
		return Result{ExitCode: 0, RunID: runID, Items: items, Envelope: env}, nil
	}

	// CHECKPOINT-LOAD
	existing, found, err := LoadCheckpoint(paths.ReviewCheckpointFile())
	if err != nil {
		return Result{ExitCode: 1, RunID: runID}, err
	}
	currentRepoIDs := make([]string, len(deps.Registry.Specs))
	for i, spec := range deps.Registry.Specs {
		currentRepoIDs[i] = spec.GithubID()
	}
	restartOnAnyChange := deps.Config.Review.RestartOnConfigHash
	completedRepos, pendingRepos, resumed := AdoptCheckpoint(existing, found, currentHash, currentRepoIDs, restartOnAnyChange)
	if found && !resumed {
		_ = ArchiveCheckpoint(paths.ReviewCheckpointFile(), now())
	}

	itemsByRepo := map[string]int{}
	for _, item := range items {
		itemsByRepo[item.RepoID]++
	}

	// PLAN: repos with no pending work move straight to completed.
	var planned []string
	for _, repoID := range pendingRepos {
		if itemsByRepo[repoID] > 0 {
			planned = append(planned, repoID)
		} else {
			completedRepos = append(completedRepos, repoID)
		}
	}

	drv, err := resolveDriver(deps)
	if err != nil {
		return Result{ExitCode: 1, RunID: runID}, err
	}

	specByID := map[string]reposet.RepoSpec{}
	for _, spec := range deps.Registry.Specs {
		specByID[spec.GithubID()] = spec
	}

	outcomes := make([]RepoOutcome, 0, len(planned))
	mapping := map[string]gitops.WorktreeRecord{}

	maxConcurrent := deps.Config.Review.SweepWorkers
	if maxConcurrent <= 0 {
		maxConcurrent = concurrency.DefaultSweepWorkers
	}

	type allocation struct {
		repoID       string
		worktreePath string
		branch       string
		sessionID    string
	}
	type allocResult struct {
		ok      bool
		alloc   allocation
		outcome RepoOutcome
	}

	results := make([]allocResult, len(planned))
	tasks := make([]concurrency.Task, len(planned))
	if err := os.MkdirAll(paths.AgentSweepLocksDir(), 0o700); err != nil {
		return Result{ExitCode: 1, RunID: runID}, err
	}
	for i, repoID := range planned {
		i, repoID := i, repoID
		tasks[i] = func() error {
			spec, ok := specByID[repoID]
			if !ok {
				results[i] = allocResult{outcome: RepoOutcome{RepoID: repoID, Status: "skipped", Reason: "repo_not_local"}}
				return nil
			}
			localPath := reposet.ResolveLocalPath(spec, paths.ProjectsDir, reposet.Layout(deps.Config.Paths.Layout))
			if _, statErr := os.Stat(localPath); statErr != nil {
				results[i] = allocResult{outcome: RepoOutcome{RepoID: repoID, Status: "skipped", Reason: "repo_not_local"}}
				return nil
			}
			slug := reposet.Slug(spec)
			// A bare git repository cannot accept two concurrent `worktree
			// add` invocations; this coarse per-repo lock keeps sweep
			// workers from racing when two registry entries resolve to the
			// same local clone.
			repoLockDir := filepath.Join(paths.AgentSweepLocksDir(), slug+".lock")
			if lockErr := concurrency.AcquireDirLock(repoLockDir, 30*time.Second); lockErr != nil {
				results[i] = allocResult{outcome: RepoOutcome{RepoID: repoID, Status: "failed", Reason: "worktree_failed"}}
				return nil
			}
			defer func() { _ = concurrency.ReleaseDirLock(repoLockDir) }()

			worktreePath := filepath.Join(paths.RunWorktreesDir(runID), slug)
			branch := "review/" + runID
			if err := gitops.WorktreeAdd(ctx, localPath, worktreePath, branch); err != nil {
				results[i] = allocResult{outcome: RepoOutcome{RepoID: repoID, Status: "failed", Reason: "worktree_failed"}}
				return nil
			}
			sessionID := fmt.Sprintf("%s%s-%s", driver.SessionPrefix, runID, slug)
			results[i] = allocResult{ok: true, alloc: allocation{repoID: repoID, worktreePath: worktreePath, branch: branch, sessionID: sessionID}}
			return nil
		}
	}
	concurrency.Sweep(maxConcurrent, tasks, nil)

	allocations := make([]allocation, 0, len(planned))
	for _, res := range results {
		if res.ok {
			allocations = append(allocations, res.alloc)
			mapping[res.alloc.repoID] = gitops.WorktreeRecord{WorktreePath: res.alloc.worktreePath, BranchName: res.alloc.branch, CreatedAt: nowRFC3339(), RunID: runID}
			continue
		}
		outcomes = append(outcomes, res.outcome)
		completedRepos = append(completedRepos, res.outcome.RepoID)
	}
	_ = gitops.SaveWorktreeMapping(paths.WorktreeMappingFile(), mapping)

	// LAUNCH
	runLog.Logf("launching %d sessions via driver %s", len(allocations), drv.Capabilities().Name)
	for _, alloc := range allocations {
		command := ""
		if deps.ReviewCmd != nil {
			command = deps.ReviewCmd(alloc.repoID, alloc.worktreePath)
		}
		if err := drv.StartSession(ctx, alloc.sessionID, alloc.worktreePath, command); err != nil {
			outcomes = append(outcomes, RepoOutcome{RepoID: alloc.repoID, Status: "skipped", Reason: "session_failed"})
			completedRepos = append(completedRepos, alloc.repoID)
			continue
		}
	}

	// MONITOR + DRAIN
	monitorInterval := time.Duration(deps.Config.Review.MonitorIntervalMS) * time.Millisecond
	if monitorInterval <= 0 {
		monitorInterval = 500 * time.Millisecond
	}
	wallClock := time.Duration(deps.Config.Review.WallClockMinutes) * time.Minute
	if wallClock <= 0 {
		wallClock = 120 * time.Minute
	}
	deadline := now().Add(wallClock)

	pendingSessions := make(map[string]allocation, len(allocations))
	for _, alloc := range allocations {
		pendingSessions[alloc.sessionID] = alloc
	}

	interrupted := false
	select {
	case <-ctx.Done():
		interrupted = true
	default:
	}

	for len(pendingSessions) > 0 && !interrupted {
		if now().After(deadline) {
			for _, alloc := range pendingSessions {
				_ = drv.InterruptSession(ctx, alloc.sessionID)
				outcomes = append(outcomes, RepoOutcome{RepoID: alloc.repoID, Status: "failed", Reason: "timeout"})
				completedRepos = append(completedRepos, alloc.repoID)
			}
			pendingSessions = nil
			break
		}
		select {
		case <-ctx.Done():
			interrupted = true
		case <-time.After(monitorInterval):
		}
		for sessionID, alloc := range pendingSessions {
			sessState, err := drv.GetSessionState(ctx, sessionID)
			if err != nil {
				continue
			}
			switch sessState.State {
			case driver.StateComplete:
				outcomes = append(outcomes, RepoOutcome{RepoID: alloc.repoID, Status: "completed"})
				completedRepos = append(completedRepos, alloc.repoID)
				delete(pendingSessions, sessionID)
			case driver.StateDead:
				outcomes = append(outcomes, RepoOutcome{RepoID: alloc.repoID, Status: "failed", Reason: "session_died"})
				completedRepos = append(completedRepos, alloc.repoID)
				delete(pendingSessions, sessionID)
			}
		}
	}

	if interrupted {
		for _, alloc := range pendingSessions {
			_ = drv.InterruptSession(ctx, alloc.sessionID)
		}
	}

	// DRAIN
	if !opts.KeepSessions {
		for _, alloc := range allocations {
			_ = drv.StopSession(ctx, alloc.sessionID)
		}
	}

	// CHECKPOINT-FINAL
	finalPending := make([]string, 0, len(pendingSessions))
	for _, alloc := range pendingSessions {
		finalPending = append(finalPending, alloc.repoID)
	}
	runLog.Logf("completed=%d pending=%d interrupted=%v", len(completedRepos), len(finalPending), interrupted)
	cp := Checkpoint{
		SchemaVersion:    CheckpointSchemaVersion,
		Timestamp:        nowRFC3339(),
		RunID:            runID,
		Mode:             mode,
		ConfigHash:       currentHash,
		ReposTotal:       len(currentRepoIDs),
		ReposCompleted:   len(completedRepos),
		ReposPending:     len(finalPending),
		QuestionsPending: 0,
		CompletedRepos:   completedRepos,
		PendingRepos:     finalPending,
	}
	if err := SaveCheckpoint(paths.ReviewCheckpointFile(), cp); err != nil {
		return Result{ExitCode: 1, RunID: runID}, err
	}

	// RELEASE
	release()

	if interrupted {
		return Result{ExitCode: 130, RunID: runID, Outcomes: outcomes}, ruerr.New(ruerr.Interrupted, "review run interrupted", ctx.Err())
	}
	return Result{ExitCode: 0, RunID: runID, Outcomes: outcomes}, nil
}

func resolveDriver(deps Deps) (driver.Driver, error) {
	detect := deps.DetectDrv
	load := deps.LoadDrv
	if detect == nil {
		detect = func() string { return driver.DetectDriver(deps.Config.Driver.Preferred, nil) }
	}
	if load == nil {
		load = driver.LoadDriver
	}
	name := detect()
	maxConcurrent := deps.Config.Review.SweepWorkers
	if maxConcurrent <= 0 {
		maxConcurrent = concurrency.DefaultSweepWorkers
	}
	return load(name, maxConcurrent)
}

func discoveryEnvelope(runID, mode string, items []githubapi.WorkItem) state.Envelope {
	byRepo := map[string]int{}
	issues, prs := 0, 0
	for _, item := range items {
		byRepo[item.RepoID]++
		if item.Kind == githubapi.KindIssue {
			issues++
		} else {
			prs++
		}
	}
	summary := map[string]any{
		"items_found": len(items),
		"by_type":     map[string]any{"issues": issues, "prs": prs},
		"by_repo":     byRepo,
	}
	return state.NewEnvelope("1", "review", "discovery", map[string]any{"items": items, "run_id": runID}, summary)
}
