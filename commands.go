package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joyshmitz/ru/internal/cliout"
	"github.com/joyshmitz/ru/internal/config"
	"github.com/joyshmitz/ru/internal/driver"
	"github.com/joyshmitz/ru/internal/githubapi"
	"github.com/joyshmitz/ru/internal/gitops"
	"github.com/joyshmitz/ru/internal/reposet"
	"github.com/joyshmitz/ru/internal/review"
	"github.com/joyshmitz/ru/internal/ruerr"
	"github.com/joyshmitz/ru/internal/state"
)

func loadEnv() (state.Paths, config.Config, reposet.RepoList, error) {
	paths := state.Resolve(os.Getenv)
	cfg, err := config.Load(paths.ConfigFile())
	if err != nil {
		return paths, config.Config{}, reposet.RepoList{}, err
	}
	registry, err := reposet.LoadRegistry(paths.ReposDir())
	if err != nil {
		return paths, cfg, reposet.RepoList{}, err
	}
	return paths, cfg, registry, nil
}

func runReviewCommand(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("review", flag.ExitOnError)
	dryRun := fs.Bool("dry-run", false, "discover work items without launching sessions")
	statusOnly := fs.Bool("status", false, "report the current run's lock and checkpoint state")
	keepSessions := fs.Bool("keep-sessions", false, "leave driver sessions running after the run completes")
	mode := fs.String("mode", "", "override the configured review mode")
	_ = fs.Parse(args)

	paths, cfg, registry, err := loadEnv()
	if err != nil {
		cliout.Fatal(err)
	}
	for _, perr := range registry.Errors {
		cliout.Warnf("repos.d: %s", perr.Error())
	}

	var client *githubapi.Client
	if !*statusOnly {
		token, err := githubapi.ResolveToken(ctx, os.Getenv)
		if err != nil {
			cliout.Fatal(err)
		}
		client = githubapi.NewClient(token)
	}

	opts := review.Options{DryRun: *dryRun, StatusOnly: *statusOnly, Mode: *mode, KeepSessions: *keepSessions}
	deps := review.Deps{
		Paths:        paths,
		Config:       cfg,
		Registry:     registry,
		GitHub:       client,
		AuthPrecheck: githubapi.AuthPrecheck,
		ReviewCmd:    buildReviewCommand,
		DetectDrv:    func() string { return driver.DetectDriver(cfg.Driver.Preferred, nil) },
		LoadDrv:      driver.LoadDriver,
	}

	result, err := review.Run(ctx, opts, deps)
	if *statusOnly {
		// Human-readable line goes to stderr so stdout stays parseable
		// JSON (spec §6) even in an interactive terminal.
		if data, ok := result.Envelope.Data.(map[string]any); ok {
			if lock, ok := data["lock"].(map[string]any); ok {
				if startedAt, ok := lock["started_at"].(string); ok && startedAt != "" {
					cliout.Warnf("run started %s", cliout.FormatISORelativeNow(startedAt))
				}
			}
		}
	}
	if result.Envelope.Command != "" {
		_ = result.Envelope.WriteTo(os.Stdout)
	}
	if err != nil {
		if rerr, ok := err.(*ruerr.Error); ok {
			os.Exit(rerr.ExitCode())
		}
		cliout.Fatal(err)
	}
	os.Exit(result.ExitCode)
}

// buildReviewCommand constructs the shell command a driver session runs
// inside a repo's worktree. The actual reviewing agent invocation is
// environment-specific, so this is intentionally the one seam an
// operator is expected to override via RU_REVIEW_COMMAND.
func buildReviewCommand(repoID, worktreePath string) string {
	if custom := os.Getenv("RU_REVIEW_COMMAND"); custom != "" {
		return custom
	}
	return fmt.Sprintf("cd %q && $SHELL", worktreePath)
}

func runForkSyncCommand(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("fork-sync", flag.ExitOnError)
	dryRun := fs.Bool("dry-run", false, "report the outcome without pushing")
	noFetch := fs.Bool("no-fetch", false, "skip fetching upstream before comparing")
	strategy := fs.String("strategy", "", "ff-only, rebase, or merge")
	_ = fs.Parse(args)

	paths, cfg, registry, err := loadEnv()
	if err != nil {
		cliout.Fatal(err)
	}
	strat := gitops.Strategy(*strategy)
	if strat == "" {
		strat = gitops.Strategy(cfg.ForkSync.Strategy)
	}

	rows := make([][]string, 0, len(registry.Specs))
	exitCode := 0
	for _, spec := range registry.Specs {
		localPath := reposet.ResolveLocalPath(spec, paths.ProjectsDir, reposet.Layout(cfg.Paths.Layout))
		if _, statErr := os.Stat(localPath); statErr != nil {
			rows = append(rows, []string{spec.GithubID(), string(gitops.StatusSkipped), "repo_not_local"})
			continue
		}
		outcome, err := gitops.ForkSync(ctx, localPath, gitops.ForkSyncOptions{Strategy: strat, DryRun: *dryRun, NoFetch: *noFetch})
		if err != nil {
			rows = append(rows, []string{spec.GithubID(), string(gitops.StatusFailed), err.Error()})
			exitCode = 1
			continue
		}
		rows = append(rows, []string{spec.GithubID(), string(outcome.Status), outcome.Reason})
	}
	fmt.Print(cliout.Table([]string{"REPO", "STATUS", "REASON"}, rows))
	os.Exit(exitCode)
}

func runForkCleanCommand(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("fork-clean", flag.ExitOnError)
	dryRun := fs.Bool("dry-run", false, "report the outcome without resetting")
	force := fs.Bool("force", false, "skip the interactive confirmation")
	noRescue := fs.Bool("no-rescue", false, "skip creating a rescue branch before resetting")
	_ = fs.Parse(args)

	paths, cfg, registry, err := loadEnv()
	if err != nil {
		cliout.Fatal(err)
	}

	confirmed := *force
	if !confirmed {
		ok, got := cliout.ConfirmYN(fmt.Sprintf("Reset %d repo(s) to their upstream default branch?", len(registry.Specs)), false)
		if !got {
			cliout.Fatal(fmt.Errorf("fork-clean: refusing to reset without --force in a non-interactive session"))
		}
		confirmed = ok
	}
	if !confirmed {
		cliout.Infof("fork-clean: canceled")
		os.Exit(0)
	}

	rescue := true
	if cfg.ForkSync.Rescue != nil {
		rescue = *cfg.ForkSync.Rescue
	}
	if *noRescue {
		rescue = false
	}

	rows := make([][]string, 0, len(registry.Specs))
	exitCode := 0
	for _, spec := range registry.Specs {
		localPath := reposet.ResolveLocalPath(spec, paths.ProjectsDir, reposet.Layout(cfg.Paths.Layout))
		if _, statErr := os.Stat(localPath); statErr != nil {
			rows = append(rows, []string{spec.GithubID(), string(gitops.StatusSkipped), "repo_not_local"})
			continue
		}
		outcome, err := gitops.ForkClean(ctx, localPath, gitops.ForkCleanOptions{Rescue: rescue, DryRun: *dryRun, Force: *force, Confirmed: confirmed})
		if err != nil {
			rows = append(rows, []string{spec.GithubID(), string(gitops.StatusFailed), err.Error()})
			exitCode = 1
			continue
		}
		rows = append(rows, []string{spec.GithubID(), string(outcome.Status), outcome.Reason})
	}
	fmt.Print(cliout.Table([]string{"REPO", "STATUS", "REASON"}, rows))
	os.Exit(exitCode)
}

func runReposCommand(args []string) {
	paths, cfg, registry, err := loadEnv()
	if err != nil {
		cliout.Fatal(err)
	}
	rows := make([][]string, 0, len(registry.Specs))
	for _, spec := range registry.Specs {
		localPath := reposet.ResolveLocalPath(spec, paths.ProjectsDir, reposet.Layout(cfg.Paths.Layout))
		status := "local"
		if _, statErr := os.Stat(localPath); statErr != nil {
			status = "missing"
		}
		rows = append(rows, []string{spec.GithubID(), spec.Host, status})
	}
	fmt.Print(cliout.Table([]string{"REPO", "HOST", "CLONE"}, rows))
	for _, perr := range registry.Errors {
		cliout.Warnf("repos.d: %s", perr.Error())
	}
}
