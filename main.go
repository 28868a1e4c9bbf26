// Command ru is the fleet-management CLI's entry point: a thin dispatcher
// over the review/fork-sync/fork-clean subcommands, following the
// teacher's main.go+root_commands.go split (dispatch table, no business
// logic in this package).
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]
	ctx, cancel := signalContext()
	defer cancel()
	if !dispatch(ctx, cmd, args) {
		printUnknown(cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `ru [command] [flags]

Commands:
  review        run or monitor a fleet review pass across configured repos
  fork-sync     fast-forward a local fork's default branch to upstream
  fork-clean    reset a fork's default branch, rescuing local commits first
  repos         list the configured repo registry

Run "ru <command> -h" for flags specific to a command.
`)
}

func printUnknown(cmd string) {
	fmt.Fprintf(os.Stderr, "ru: unknown command %q\n\n", cmd)
}

func dispatch(ctx context.Context, cmd string, args []string) bool {
	switch cmd {
	case "review":
		runReviewCommand(ctx, args)
	case "fork-sync":
		runForkSyncCommand(ctx, args)
	case "fork-clean":
		runForkCleanCommand(ctx, args)
	case "repos":
		runReposCommand(args)
	default:
		return false
	}
	return true
}
