// Package enqueue implements the Enqueue Planner (spec.md §4.7):
// enqueue_objects selects eligible objects and seeds download_object
// jobs, reenqueue_object re-seeds a single rejected object. Both run
// under the global workflow lock, grounded on internal/freeze's
// lock-then-mutate service shape.
package enqueue

import (
	"context"
	"time"

	"github.com/finnish-heritage-agency/passari-workflow/internal/data/repos"
	pkgerrors "github.com/finnish-heritage-agency/passari-workflow/internal/pkg/errors"
	"github.com/finnish-heritage-agency/passari-workflow/internal/pkg/dbctx"
	"github.com/finnish-heritage-agency/passari-workflow/internal/pkg/logger"
	"github.com/finnish-heritage-agency/passari-workflow/internal/queue"
	"github.com/finnish-heritage-agency/passari-workflow/internal/redisclient"
)

const eligibilityPageSize = 500

type Service struct {
	Objects           *repos.ObjectRepo
	Packages          *repos.PackageRepo
	Queue             *queue.Queue
	Redis             *redisclient.Client
	PreservationDelay time.Duration
	UpdateDelay       time.Duration
	Log               *logger.Logger
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

// EnqueueObjects is enqueue_objects(object_count, random, object_ids):
// under the workflow lock, stream eligible objects 500 at a time,
// skipping any id already pending/started/failed on any stage queue,
// and schedule download_object for up to objectCount of the rest.
func (s *Service) EnqueueObjects(ctx context.Context, objectCount int, random bool, objectIDs []int64) (scheduled int, err error) {
	err = s.withWorkflowLock(ctx, func(ctx context.Context) error {
		dc := dbctx.Context{Ctx: ctx}

		already, err := s.Queue.EnqueuedObjectIDs(ctx)
		if err != nil {
			return err
		}
		enqueued := make(map[int64]struct{}, len(already))
		for _, id := range already {
			enqueued[id] = struct{}{}
		}

		now := time.Now().UTC()
		return s.Objects.PreservationPending(dc, now, s.PreservationDelay, s.UpdateDelay, objectIDs, random, eligibilityPageSize,
			func(page []int64) bool {
				for _, id := range page {
					if scheduled >= objectCount {
						return false
					}
					if _, skip := enqueued[id]; skip {
						continue
					}
					if err = s.Queue.Enqueue(ctx, queue.StageDownloadObject, id, nil); err != nil {
						return false
					}
					scheduled++
				}
				return scheduled < objectCount
			})
	})
	if err == nil {
		s.Log.Info("enqueue_objects complete", "scheduled", scheduled, "requested", objectCount)
	}
	return scheduled, err
}

// ReenqueueObject is reenqueue_object(object_id): requires the object's
// latest Package to be rejected and the object not currently enqueued on
// any stage, then clears latest_package, drops any residual jobs, and
// schedules a fresh download_object.
func (s *Service) ReenqueueObject(ctx context.Context, objectID int64) error {
	return s.withWorkflowLock(ctx, func(ctx context.Context) error {
		dc := dbctx.Context{Ctx: ctx}

		obj, err := s.Objects.GetByID(dc, objectID)
		if err != nil {
			return err
		}
		if obj.LatestPackage == nil || !obj.LatestPackage.Rejected {
			return &pkgerrors.ReenqueueNotEligibleError{ObjectID: objectID, Reason: "latest package is not rejected"}
		}

		queues, err := s.Queue.ObjectIDToQueues(ctx, []int64{objectID})
		if err != nil {
			return err
		}
		if len(queues[objectID]) > 0 {
			return &pkgerrors.ReenqueueNotEligibleError{ObjectID: objectID, Reason: "already enqueued"}
		}

		if err := s.Objects.ClearLatestPackage(dc, objectID); err != nil {
			return err
		}
		if _, err := s.Queue.DeleteJobsForObject(ctx, objectID); err != nil {
			return err
		}
		if err := s.Queue.Enqueue(ctx, queue.StageDownloadObject, objectID, nil); err != nil {
			return err
		}
		s.Log.Info("reenqueue_object complete", "object_id", objectID)
		return nil
	})
}
