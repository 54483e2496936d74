// Package freeze implements the bulk Freeze/Unfreeze/Reset operations
// from spec.md §4.4, all run under the global workflow lock. Grounded
// on the teacher's lock-then-mutate service style (internal/data/db
// transactions guarded by a distributed lock client), generalized here
// from the teacher's SSE-forwarding Redis client to the lock primitives
// in internal/redisclient.
package freeze

import (
	"context"
	"fmt"
	"time"

	"github.com/finnish-heritage-agency/passari-workflow/internal/data/repos"
	"github.com/finnish-heritage-agency/passari-workflow/internal/domain"
	pkgerrors "github.com/finnish-heritage-agency/passari-workflow/internal/pkg/errors"
	"github.com/finnish-heritage-agency/passari-workflow/internal/pkg/dbctx"
	"github.com/finnish-heritage-agency/passari-workflow/internal/pkg/logger"
	"github.com/finnish-heritage-agency/passari-workflow/internal/jobs"
	"github.com/finnish-heritage-agency/passari-workflow/internal/queue"
	"github.com/finnish-heritage-agency/passari-workflow/internal/redisclient"
)

type Service struct {
	Objects    *repos.ObjectRepo
	Packages   *repos.PackageRepo
	Queue      *queue.Queue
	Redis      *redisclient.Client
	Log        *logger.Logger
	PackageDir string
	ArchiveDir string
}

func (s *Service) withWorkflowLock(ctx context.Context, fn func(ctx context.Context) error) error {
	lock, err := s.Redis.AcquireLock(ctx, redisclient.WorkflowLockKey, redisclient.WorkflowLockTTL, 250*time.Millisecond)
	if err != nil {
		return err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = lock.Release(releaseCtx)
	}()
	return fn(ctx)
}

// Freeze sets frozen=true for objectIDs, cancels their non-terminal
// latest packages, archives any present logs, and optionally purges
// queue entries and working directories. It refuses with
// WorkflowJobRunningError if any listed object currently has a running
// (not just pending/failed) job.
func (s *Service) Freeze(ctx context.Context, objectIDs []int64, reason string, source domain.FreezeSource, deleteJobs bool) (freezeCount, cancelCount int, err error) {
	err = s.withWorkflowLock(ctx, func(ctx context.Context) error {
		dc := dbctx.Context{Ctx: ctx}

		running, err := s.Queue.RunningObjectIDs(ctx)
		if err != nil {
			return err
		}
		runningSet := make(map[int64]struct{}, len(running))
		for _, id := range running {
			runningSet[id] = struct{}{}
		}
		for _, id := range objectIDs {
			if _, ok := runningSet[id]; ok {
				return &pkgerrors.WorkflowJobRunningError{ObjectID: id}
			}
		}

		latest, err := s.Packages.LatestForObjects(dc, objectIDs)
		if err != nil {
			return err
		}

		cancelled, err := s.Packages.CancelNonTerminalForObjects(dc, objectIDs)
		if err != nil {
			return err
		}
		cancelCount = int(cancelled)

		if err := s.Objects.SetFrozenBulk(dc, objectIDs, true, reason, &source); err != nil {
			return err
		}
		freezeCount = len(objectIDs)

		for _, id := range objectIDs {
			pkg, ok := latest[id]
			if !ok {
				continue
			}
			jobs.ArchiveLogs(s.Log, s.PackageDir, s.ArchiveDir, pkg.SIPFilename)
			if deleteJobs {
				if _, err := s.Queue.DeleteJobsForObject(ctx, id); err != nil {
					return err
				}
				jobs.RemoveWorkdir(s.Log, s.PackageDir, pkg.SIPFilename)
			}
		}

		return nil
	})
	return freezeCount, cancelCount, err
}

// Unfreeze clears frozen state for matching objects. At least one of
// reason or ids must be provided. If the object's latest package is not
// preserved, latest_package is nulled so it re-enters eligibility
// evaluation; if enqueue is set, a fresh download job is scheduled.
func (s *Service) Unfreeze(ctx context.Context, reason *string, ids []int64, enqueue bool) (int, error) {
	if reason == nil && len(ids) == 0 {
		return 0, fmt.Errorf("%w: unfreeze requires a reason filter or an explicit id list", pkgerrors.ErrInvalidArgument)
	}

	count := 0
	err := s.withWorkflowLock(ctx, func(ctx context.Context) error {
		dc := dbctx.Context{Ctx: ctx}

		objects, err := s.Objects.FindFrozen(dc, reason, ids)
		if err != nil {
			return err
		}

		for _, o := range objects {
			if err := s.Objects.SetFrozenBulk(dc, []int64{o.ID}, false, "", nil); err != nil {
				return err
			}
			if o.LatestPackage != nil && !o.LatestPackage.Preserved {
				if err := s.Objects.ClearLatestPackage(dc, o.ID); err != nil {
					return err
				}
			}
			if enqueue {
				if err := s.Queue.Enqueue(ctx, queue.StageDownloadObject, o.ID, nil); err != nil {
					return err
				}
			}
			count++
		}
		return nil
	})
	return count, err
}

// Reset discards every in-flight (not yet uploaded) packaging attempt:
// the Package row is deleted and the owning Object's latest_package is
// nulled, per spec.md §3 Lifecycles and §8 scenario 6. Packages that
// have already reached uploaded=true are left untouched — confirmation
// is an external outcome reset cannot retract.
func (s *Service) Reset(ctx context.Context) (int, error) {
	count := 0
	err := s.withWorkflowLock(ctx, func(ctx context.Context) error {
		dc := dbctx.Context{Ctx: ctx}

		candidates, err := s.Packages.LatestNonUploaded(dc)
		if err != nil {
			return err
		}

		for _, pkg := range candidates {
			if err := s.Objects.ClearLatestPackage(dc, pkg.ObjectID); err != nil {
				return err
			}
			if err := s.Packages.Delete(dc, pkg.ID); err != nil {
				return err
			}
			if _, err := s.Queue.DeleteJobsForObject(ctx, pkg.ObjectID); err != nil {
				return err
			}
			jobs.RemoveWorkdir(s.Log, s.PackageDir, pkg.SIPFilename)
			count++
		}
		return nil
	})
	return count, err
}
