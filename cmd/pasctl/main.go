// Command pasctl is the CLI surface from spec.md §6: the stage-queue
// operational commands (sync-objects, sync-attachments, sync-hashes,
// sync-processed-sips, enqueue-objects, deferred-enqueue-objects,
// reenqueue-object, freeze-objects, unfreeze-objects, reset-workflow,
// create-pas-db, dip-tool, pas-shell) plus a worker command that runs
// the staged job queue's consumer pool. Built on urfave/cli/v2, the way
// the teacher's own dependency set already commits to that library.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/finnish-heritage-agency/passari-workflow/internal/app"
	"github.com/finnish-heritage-agency/passari-workflow/internal/cliutil"
	"github.com/finnish-heritage-agency/passari-workflow/internal/domain"
	"github.com/finnish-heritage-agency/passari-workflow/internal/pkg/pointers"
)

func main() {
	cliApp := &cli.App{
		Name:  "pasctl",
		Usage: "operate the digital preservation workflow",
		Commands: []*cli.Command{
			workerCommand(),
			daemonCommand(),
			syncObjectsCommand(),
			syncAttachmentsCommand(),
			syncHashesCommand(),
			syncProcessedSipsCommand(),
			enqueueObjectsCommand(),
			deferredEnqueueObjectsCommand(),
			reenqueueObjectCommand(),
			freezeObjectsCommand(),
			unfreezeObjectsCommand(),
			resetWorkflowCommand(),
			createPasDBCommand(),
			dipToolCommand(),
			pasShellCommand(),
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "pasctl:", err)
		os.Exit(1)
	}
}

// withApp is the shared per-command lifecycle helper from internal/cliutil.
func withApp(fn func(ctx context.Context, a *app.App) error) error {
	return cliutil.WithApp(fn)
}

func workerCommand() *cli.Command {
	return &cli.Command{
		Name:  "worker",
		Usage: "run the staged job queue's consumer pool until interrupted",
		Action: func(c *cli.Context) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				a.Worker.Start(ctx)
				<-ctx.Done()
				a.Log.Info("worker shutting down")
				return nil
			})
		},
	}
}

func syncObjectsCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync-objects",
		Usage: "resumable paged pull of CMS object records (spec.md §4.5)",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "save-progress", Value: true},
		},
		Action: func(c *cli.Context) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				return a.Sync.SyncObjects(ctx, c.Bool("save-progress"))
			})
		},
	}
}

func syncAttachmentsCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync-attachments",
		Usage: "resumable paged pull of CMS attachment records (spec.md §4.5)",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "save-progress", Value: true},
		},
		Action: func(c *cli.Context) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				return a.Sync.SyncAttachments(ctx, c.Bool("save-progress"))
			})
		},
	}
}

func syncHashesCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync-hashes",
		Usage: "recompute attachment_metadata_hash for every object (spec.md §4.5)",
		Action: func(c *cli.Context) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				return a.Sync.SyncHashes(ctx)
			})
		},
	}
}

func syncProcessedSipsCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync-processed-sips",
		Usage: "reconcile accepted/rejected SIPs from DPRES over SFTP (spec.md §4.6)",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "days", Value: 0, Usage: "day-folders to scan; 0 means the default (31)"},
		},
		Action: func(c *cli.Context) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				return a.DPRES.SyncProcessedSips(ctx, c.Int("days"))
			})
		},
	}
}

func enqueueObjectsCommand() *cli.Command {
	return &cli.Command{
		Name:  "enqueue-objects",
		Usage: "schedule download_object for eligible objects, synchronously (spec.md §4.7)",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "count", Value: 100, Usage: "maximum number of objects to schedule"},
			&cli.BoolFlag{Name: "random", Value: false},
			&cli.Int64SliceFlag{Name: "object-id", Usage: "restrict to these object ids; may be repeated"},
		},
		Action: func(c *cli.Context) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				scheduled, err := a.Enqueue.EnqueueObjects(ctx, c.Int("count"), c.Bool("random"), c.Int64Slice("object-id"))
				if err != nil {
					return err
				}
				fmt.Printf("scheduled %d object(s)\n", scheduled)
				return nil
			})
		},
	}
}

func deferredEnqueueObjectsCommand() *cli.Command {
	return &cli.Command{
		Name:  "deferred-enqueue-objects",
		Usage: "schedule enqueue-objects as a queued job instead of blocking the caller (spec.md §4.7)",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "count", Value: 100},
			&cli.BoolFlag{Name: "random", Value: false},
			&cli.Int64SliceFlag{Name: "object-id"},
		},
		Action: func(c *cli.Context) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				kwargs := map[string]any{
					"object_count": c.Int("count"),
					"random":       c.Bool("random"),
				}
				if ids := c.Int64Slice("object-id"); len(ids) > 0 {
					kwargs["object_ids"] = ids
				}
				return a.Queue.EnqueuePlanner(ctx, kwargs)
			})
		},
	}
}

func reenqueueObjectCommand() *cli.Command {
	return &cli.Command{
		Name:      "reenqueue-object",
		Usage:     "re-seed a download for a single rejected object (spec.md §4.7)",
		ArgsUsage: "<object-id>",
		Action: func(c *cli.Context) error {
			objectID, err := requiredInt64Arg(c, "object-id")
			if err != nil {
				return err
			}
			return withApp(func(ctx context.Context, a *app.App) error {
				return a.Enqueue.ReenqueueObject(ctx, objectID)
			})
		},
	}
}

func freezeObjectsCommand() *cli.Command {
	return &cli.Command{
		Name:  "freeze-objects",
		Usage: "freeze objects, cancelling any non-terminal in-flight package (spec.md §4.4)",
		Flags: []cli.Flag{
			&cli.Int64SliceFlag{Name: "object-id", Required: true},
			&cli.StringFlag{Name: "reason", Required: true},
			&cli.BoolFlag{Name: "delete-jobs", Value: false},
		},
		Action: func(c *cli.Context) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				frozen, cancelled, err := a.Freeze.Freeze(
					ctx, c.Int64Slice("object-id"), c.String("reason"),
					domain.FreezeSourceUser, c.Bool("delete-jobs"),
				)
				if err != nil {
					return err
				}
				fmt.Printf("froze %d object(s), cancelled %d in-flight package(s)\n", frozen, cancelled)
				return nil
			})
		},
	}
}

func unfreezeObjectsCommand() *cli.Command {
	return &cli.Command{
		Name:  "unfreeze-objects",
		Usage: "clear frozen state, optionally re-seeding a download (spec.md §4.4)",
		Flags: []cli.Flag{
			&cli.Int64SliceFlag{Name: "object-id"},
			&cli.StringFlag{Name: "reason"},
			&cli.BoolFlag{Name: "enqueue", Value: false},
		},
		Action: func(c *cli.Context) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				var reason *string
				if r := c.String("reason"); r != "" {
					reason = pointers.String(r)
				}
				count, err := a.Freeze.Unfreeze(ctx, reason, c.Int64Slice("object-id"), c.Bool("enqueue"))
				if err != nil {
					return err
				}
				fmt.Printf("unfroze %d object(s)\n", count)
				return nil
			})
		},
	}
}

func resetWorkflowCommand() *cli.Command {
	return &cli.Command{
		Name:  "reset-workflow",
		Usage: "discard every in-flight (not-yet-uploaded) packaging attempt (spec.md §8 scenario 6)",
		Action: func(c *cli.Context) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				count, err := a.Freeze.Reset(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("reset %d package(s)\n", count)
				return nil
			})
		},
	}
}

func createPasDBCommand() *cli.Command {
	return &cli.Command{
		Name:  "create-pas-db",
		Usage: "create/update the database schema",
		Action: func(c *cli.Context) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				fmt.Println("database schema up to date")
				return nil
			})
		},
	}
}

func requiredInt64Arg(c *cli.Context, name string) (int64, error) {
	return parseInt64Arg(c.Args().First(), name)
}

func parseInt64Arg(raw, name string) (int64, error) {
	if raw == "" {
		return 0, fmt.Errorf("%s is required", name)
	}
	var v int64
	if _, err := fmt.Sscanf(raw, "%d", &v); err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", name, err)
	}
	return v, nil
}
