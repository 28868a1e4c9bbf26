package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// signalContext returns a context canceled on SIGINT/SIGTERM. A second
// SIGINT delivered within 2s of the first force-exits the process
// immediately (exit 130) instead of waiting for review.Run's normal
// drain path, per spec §4.5's interrupt handling: the first signal asks
// the orchestrator to interrupt sessions and checkpoint; a second one
// means the operator has already seen that and wants out now.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		var first time.Time
		for range sigCh {
			now := time.Now()
			if !first.IsZero() && now.Sub(first) < 2*time.Second {
				os.Exit(130)
			}
			first = now
			cancel()
		}
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}
