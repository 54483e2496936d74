package main

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"

	"github.com/finnish-heritage-agency/passari-workflow/internal/app"
)

// daemonCommand runs the worker pool plus the three periodic jobs
// (sync_processed_sips, a deferred enqueue_objects sweep, and CMS sync)
// on a schedule, for operators who would rather run one long-lived
// pasctl process than wire cron/systemd timers to the individual
// subcommands. Schedules follow spec.md §4's own cadence: SIPs take
// hours to resolve at DPRES, so reconciliation polls once an hour (on
// the hour); eligibility sweeps run hourly (at half past); CMS sync runs
// nightly.
func daemonCommand() *cli.Command {
	return &cli.Command{
		Name:  "daemon",
		Usage: "run the worker pool and the periodic sync/reconcile/enqueue jobs on a schedule",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "sync-processed-sips-cron", Value: "0 */1 * * *"},
			&cli.StringFlag{Name: "enqueue-objects-cron", Value: "30 * * * *"},
			&cli.StringFlag{Name: "cms-sync-cron", Value: "0 2 * * *"},
			&cli.IntFlag{Name: "enqueue-count", Value: 100},
		},
		Action: func(c *cli.Context) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				a.Worker.Start(ctx)

				sched := cron.New()
				logErr := func(name string, err error) {
					if err != nil {
						a.Log.Error("scheduled job failed", "job", name, "error", err)
					}
				}

				if _, err := sched.AddFunc(c.String("sync-processed-sips-cron"), func() {
					logErr("sync_processed_sips", a.DPRES.SyncProcessedSips(ctx, 0))
				}); err != nil {
					return fmt.Errorf("schedule sync_processed_sips: %w", err)
				}

				if _, err := sched.AddFunc(c.String("enqueue-objects-cron"), func() {
					_, err := a.Enqueue.EnqueueObjects(ctx, c.Int("enqueue-count"), false, nil)
					logErr("enqueue_objects", err)
				}); err != nil {
					return fmt.Errorf("schedule enqueue_objects: %w", err)
				}

				if _, err := sched.AddFunc(c.String("cms-sync-cron"), func() {
					logErr("sync_objects", a.Sync.SyncObjects(ctx, true))
					logErr("sync_attachments", a.Sync.SyncAttachments(ctx, true))
					logErr("sync_hashes", a.Sync.SyncHashes(ctx))
				}); err != nil {
					return fmt.Errorf("schedule CMS sync: %w", err)
				}

				sched.Start()
				defer sched.Stop()

				a.Log.Info("daemon started")
				<-ctx.Done()
				a.Log.Info("daemon shutting down")
				return nil
			})
		},
	}
}
