// Package cliutil holds the construction/lifecycle helpers every
// cmd/pasctl subcommand shares, the Go equivalent of original_source's
// scripts/utils.py (a RedisConnection/CMS-session helper every script
// imports instead of repeating its own setup).
package cliutil

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/finnish-heritage-agency/passari-workflow/internal/app"
)

// WithApp opens an App, runs fn against a context cancelled on
// SIGINT/SIGTERM, and always closes the App afterward.
func WithApp(fn func(ctx context.Context, a *app.App) error) error {
	a, err := app.New()
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(SignalContext(), a)
}

// SignalContext is cancelled on SIGINT/SIGTERM, so a long-running
// command (worker, daemon, a large enqueue_objects run) shuts down
// cleanly instead of leaving a lock or an in-flight job stranded.
func SignalContext() context.Context {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	_ = stop
	return ctx
}
