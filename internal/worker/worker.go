// Package worker is the execution engine for the Redis-backed staged
// job queue: a goroutine pool per stage claims jobs and dispatches them
// to internal/jobs' handlers. Grounded directly on the teacher's
// internal/jobs/worker.Worker (N-goroutine pool sized from an env var,
// a poll loop, a per-job heartbeat goroutine, panic recovery converting
// panics into job failures) — adapted from its DB-claim ("job_run" row
// with ClaimNextRunnable) onto queue.Queue's BRPOP-based claim, since
// spec.md §4.2 specifies a Redis-backed queue, not a SQL claim table.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/finnish-heritage-agency/passari-workflow/internal/enqueue"
	"github.com/finnish-heritage-agency/passari-workflow/internal/jobs"
	"github.com/finnish-heritage-agency/passari-workflow/internal/pkg/logger"
	"github.com/finnish-heritage-agency/passari-workflow/internal/platform/envutil"
	"github.com/finnish-heritage-agency/passari-workflow/internal/queue"
)

// pollTimeout is how long one BRPOP blocks before a worker loop checks
// ctx.Done() again.
const pollTimeout = 5 * time.Second

type Pool struct {
	queue       *queue.Queue
	handlers    *jobs.Handlers
	planner     *enqueue.Service
	log         *logger.Logger
	concurrency int
}

// NewPool reads WORKER_CONCURRENCY (default 4, per-stage) the way the
// teacher's worker reads its own env knob. planner may be nil, in which
// case the deferred enqueue_objects queue (spec.md §4.7) is left
// unserviced by this pool — e.g. a worker-only deployment that runs the
// planner exclusively via the CLI's synchronous command instead.
func NewPool(q *queue.Queue, handlers *jobs.Handlers, planner *enqueue.Service, log *logger.Logger) *Pool {
	concurrency := envutil.Int("WORKER_CONCURRENCY", 4)
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pool{queue: q, handlers: handlers, planner: planner, log: log.With("component", "worker"), concurrency: concurrency}
}

// Start launches concurrency goroutines per stage queue. Each stage is
// independent: a backlog on download_object never starves confirm_sip.
// The deferred planner queue gets a single goroutine, since only one
// enqueue_objects job is ever pending at a time (spec.md §4.7).
func (p *Pool) Start(ctx context.Context) {
	for _, stage := range queue.Stages {
		for i := 0; i < p.concurrency; i++ {
			go p.runLoop(ctx, stage, i+1)
		}
	}
	if p.planner != nil {
		go p.runLoop(ctx, queue.EnqueueObjectsQueue, 1)
	}
	p.log.Info("worker pool started", "concurrency_per_stage", p.concurrency, "stages", queue.Stages)
}

func (p *Pool) runLoop(ctx context.Context, stage string, workerID int) {
	log := p.log.With("stage", stage, "worker_id", workerID)
	for {
		if ctx.Err() != nil {
			log.Info("worker loop stopped")
			return
		}

		job, err := p.queue.Claim(ctx, stage, pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("claim failed", "error", err)
			continue
		}
		if job == nil {
			continue
		}

		p.execute(ctx, log, job)
	}
}

func (p *Pool) execute(ctx context.Context, log *logger.Logger, job *queue.Job) {
	jobCtx, cancel := context.WithTimeout(ctx, queue.DefaultJobTimeout)
	defer cancel()

	var runErr error
	if job.Stage == queue.EnqueueObjectsQueue {
		runErr = p.runPlannerWithRecovery(jobCtx, job)
	} else {
		objectID, err := queue.JobIDToObjectID(job.ID)
		if err != nil {
			log.Error("malformed job id, failing", "job_id", job.ID, "error", err)
			_ = p.queue.Fail(ctx, job.Stage, job.ID, err)
			return
		}
		runErr = p.runWithRecovery(jobCtx, job, objectID)
	}

	if runErr != nil {
		log.Error("job failed", "job_id", job.ID, "error", runErr)
		if err := p.queue.Fail(ctx, job.Stage, job.ID, runErr); err != nil {
			log.Error("failed to record job failure", "job_id", job.ID, "error", err)
		}
		return
	}

	if err := p.queue.Succeed(ctx, job.Stage, job.ID); err != nil {
		log.Error("failed to record job success", "job_id", job.ID, "error", err)
	}
}

// runWithRecovery converts a handler panic into a job failure instead of
// crashing the worker goroutine, mirroring the teacher's worker safety
// net exactly.
func (p *Pool) runWithRecovery(ctx context.Context, job *queue.Job, objectID int64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s handler: %v", job.Stage, r)
		}
	}()

	switch job.Stage {
	case queue.StageDownloadObject:
		return p.handlers.DownloadObject(ctx, objectID)
	case queue.StageCreateSIP:
		return p.handlers.CreateSIP(ctx, objectID, stringKwarg(job, "sip_id"))
	case queue.StageSubmitSIP:
		return p.handlers.SubmitSIP(ctx, objectID, stringKwarg(job, "sip_id"))
	case queue.StageConfirmSIP:
		return p.handlers.ConfirmSIP(ctx, objectID, stringKwarg(job, "sip_id"))
	default:
		return fmt.Errorf("no handler registered for stage %q", job.Stage)
	}
}

// runPlannerWithRecovery runs the deferred enqueue_objects job (spec.md
// §4.7) from its kwargs, with the same panic-to-failure safety net as
// the four stage handlers.
func (p *Pool) runPlannerWithRecovery(ctx context.Context, job *queue.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s handler: %v", job.Stage, r)
		}
	}()

	objectCount := intKwarg(job, "object_count", 0)
	random, _ := job.Kwargs["random"].(bool)
	objectIDs := int64SliceKwarg(job, "object_ids")

	_, err = p.planner.EnqueueObjects(ctx, objectCount, random, objectIDs)
	return err
}

func stringKwarg(job *queue.Job, key string) string {
	v, _ := job.Kwargs[key].(string)
	return v
}

// intKwarg pulls a numeric kwarg, accounting for json.Unmarshal decoding
// all bare numbers as float64.
func intKwarg(job *queue.Job, key string, def int) int {
	v, ok := job.Kwargs[key].(float64)
	if !ok {
		return def
	}
	return int(v)
}

func int64SliceKwarg(job *queue.Job, key string) []int64 {
	raw, ok := job.Kwargs[key].([]any)
	if !ok {
		return nil
	}
	out := make([]int64, 0, len(raw))
	for _, v := range raw {
		if f, ok := v.(float64); ok {
			out = append(out, int64(f))
		}
	}
	return out
}
