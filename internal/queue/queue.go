// Package queue implements the Redis-backed staged job queue from
// spec.md §4.2: four named stage queues plus the auxiliary planner
// queue, durable job records, and the operational inspection helpers
// (enqueued_object_ids, running_object_ids, object_id_to_queues,
// delete_jobs_for_object). Grounded on the teacher's Redis client
// construction (internal/clients/redis, now internal/redisclient) and
// its worker/job-record vocabulary (internal/jobs/worker,
// internal/data/repos/jobs/job_run.go), adapted from a Postgres
// SKIP-LOCKED claim table to the named-queue/registry model spec.md
// requires.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/finnish-heritage-agency/passari-workflow/internal/redisclient"
)

// Stage names double as the four stage queue names.
const (
	StageDownloadObject = "download_object"
	StageCreateSIP      = "create_sip"
	StageSubmitSIP      = "submit_sip"
	StageConfirmSIP     = "confirm_sip"
)

// EnqueueObjectsQueue hosts the deferred planner job (spec.md §4.7),
// which has no single object id and so does not follow the
// <stage>_<object_id> job id convention.
const EnqueueObjectsQueue = "enqueue_objects"

// Stages lists the four per-object stage queues, in pipeline order.
var Stages = []string{StageDownloadObject, StageCreateSIP, StageSubmitSIP, StageConfirmSIP}

// State is a job's lifecycle position.
type State string

const (
	StatePending State = "pending"
	StateStarted State = "started"
	StateFailed  State = "failed"
)

// DefaultJobTimeout is spec.md §4.2's default; jobs exceeding it are
// considered failed.
const DefaultJobTimeout = 4 * time.Hour

// Job is a durable record for one scheduled stage invocation.
type Job struct {
	ID        string         `json:"id"`
	Stage     string         `json:"stage"`
	Kwargs    map[string]any `json:"kwargs"`
	State     State          `json:"state"`
	Error     string         `json:"error,omitempty"`
	EnqueuedAt time.Time     `json:"enqueued_at"`
	StartedAt  *time.Time    `json:"started_at,omitempty"`
}

type Queue struct {
	redis *redisclient.Client
}

func New(redis *redisclient.Client) *Queue {
	return &Queue{redis: redis}
}

// JobID builds the <stage>_<object_id> convention id.
func JobID(stage string, objectID int64) string {
	return fmt.Sprintf("%s_%d", stage, objectID)
}

// JobIDToObjectID parses the trailing integer off any job id, per
// spec.md §4.2. It works for any stage name since it only looks at the
// text after the final underscore.
func JobIDToObjectID(jobID string) (int64, error) {
	idx := strings.LastIndexByte(jobID, '_')
	if idx < 0 || idx == len(jobID)-1 {
		return 0, fmt.Errorf("job id %q has no trailing object id", jobID)
	}
	return strconv.ParseInt(jobID[idx+1:], 10, 64)
}

func jobKey(jobID string) string           { return "job:" + jobID }
func pendingListKey(stage string) string    { return "queue:" + stage + ":pending" }
func pendingSetKey(stage string) string     { return "queue:" + stage + ":pending_set" }
func startedSetKey(stage string) string     { return "queue:" + stage + ":started" }
func failedSetKey(stage string) string      { return "queue:" + stage + ":failed" }

// Enqueue schedules one stage job for objectID, unless one is already
// pending or started for that (stage, object) pair — the job id
// convention's at-most-one-scheduled guarantee.
func (q *Queue) Enqueue(ctx context.Context, stage string, objectID int64, kwargs map[string]any) error {
	jobID := JobID(stage, objectID)
	return q.enqueueJobID(ctx, stage, jobID, kwargs)
}

// EnqueuePlanner schedules the deferred enqueue_objects job. Only one
// may be outstanding at a time, using the fixed id "enqueue_objects".
func (q *Queue) EnqueuePlanner(ctx context.Context, kwargs map[string]any) error {
	return q.enqueueJobID(ctx, EnqueueObjectsQueue, EnqueueObjectsQueue, kwargs)
}

func (q *Queue) enqueueJobID(ctx context.Context, stage, jobID string, kwargs map[string]any) error {
	rdb := q.redis.Raw()

	alreadyPending, err := rdb.SIsMember(ctx, pendingSetKey(stage), jobID).Result()
	if err != nil {
		return err
	}
	alreadyStarted, err := rdb.SIsMember(ctx, startedSetKey(stage), jobID).Result()
	if err != nil {
		return err
	}
	if alreadyPending || alreadyStarted {
		return nil
	}

	job := Job{ID: jobID, Stage: stage, Kwargs: kwargs, State: StatePending, EnqueuedAt: time.Now().UTC()}
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}

	pipe := rdb.TxPipeline()
	pipe.Set(ctx, jobKey(jobID), raw, 0)
	pipe.SAdd(ctx, pendingSetKey(stage), jobID)
	pipe.LPush(ctx, pendingListKey(stage), jobID)
	// A job may be re-enqueued after having previously failed; clear the
	// stale failed-registry membership so it isn't double-counted.
	pipe.SRem(ctx, failedSetKey(stage), jobID)
	_, err = pipe.Exec(ctx)
	return err
}

// Claim blocks up to timeout for the next pending job on stage, marking
// it started. Returns nil, nil on timeout with nothing claimed.
func (q *Queue) Claim(ctx context.Context, stage string, timeout time.Duration) (*Job, error) {
	rdb := q.redis.Raw()
	res, err := rdb.BRPop(ctx, timeout, pendingListKey(stage)).Result()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	jobID := res[1]

	job, err := q.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	job.State = StateStarted
	job.StartedAt = &now
	if err := q.saveJob(ctx, job); err != nil {
		return nil, err
	}

	pipe := rdb.TxPipeline()
	pipe.SRem(ctx, pendingSetKey(stage), jobID)
	pipe.SAdd(ctx, startedSetKey(stage), jobID)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	return job, nil
}

// Succeed drops a completed job entirely: spec.md §4.2 tracks only
// pending, started and failed jobs, so a succeeded job simply vanishes.
func (q *Queue) Succeed(ctx context.Context, stage, jobID string) error {
	rdb := q.redis.Raw()
	pipe := rdb.TxPipeline()
	pipe.SRem(ctx, startedSetKey(stage), jobID)
	pipe.Del(ctx, jobKey(jobID))
	_, err := pipe.Exec(ctx)
	return err
}

// Fail moves a job onto the failed registry for operator inspection.
func (q *Queue) Fail(ctx context.Context, stage, jobID string, cause error) error {
	job, err := q.getJob(ctx, jobID)
	if err != nil {
		return err
	}
	job.State = StateFailed
	job.Error = cause.Error()
	if err := q.saveJob(ctx, job); err != nil {
		return err
	}

	rdb := q.redis.Raw()
	pipe := rdb.TxPipeline()
	pipe.SRem(ctx, startedSetKey(stage), jobID)
	pipe.SAdd(ctx, failedSetKey(stage), jobID)
	_, err = pipe.Exec(ctx)
	return err
}

func (q *Queue) getJob(ctx context.Context, jobID string) (*Job, error) {
	raw, err := q.redis.Raw().Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (q *Queue) saveJob(ctx context.Context, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.redis.Raw().Set(ctx, jobKey(job.ID), raw, 0).Err()
}

func (q *Queue) stageMembers(ctx context.Context, stage string) (pending, started, failed []string, err error) {
	rdb := q.redis.Raw()
	pending, err = rdb.SMembers(ctx, pendingSetKey(stage)).Result()
	if err != nil {
		return
	}
	started, err = rdb.SMembers(ctx, startedSetKey(stage)).Result()
	if err != nil {
		return
	}
	failed, err = rdb.SMembers(ctx, failedSetKey(stage)).Result()
	return
}

// EnqueuedObjectIDs returns the union of object ids with a pending,
// started, or failed job across all stage queues (spec.md §4.2).
func (q *Queue) EnqueuedObjectIDs(ctx context.Context) ([]int64, error) {
	seen := map[int64]struct{}{}
	for _, stage := range Stages {
		pending, started, failed, err := q.stageMembers(ctx, stage)
		if err != nil {
			return nil, err
		}
		for _, jobID := range append(append(pending, started...), failed...) {
			if id, err := JobIDToObjectID(jobID); err == nil {
				seen[id] = struct{}{}
			}
		}
	}
	out := make([]int64, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	return out, nil
}

// RunningObjectIDs returns object ids with a started (claimed) job.
func (q *Queue) RunningObjectIDs(ctx context.Context) ([]int64, error) {
	seen := map[int64]struct{}{}
	for _, stage := range Stages {
		rdb := q.redis.Raw()
		started, err := rdb.SMembers(ctx, startedSetKey(stage)).Result()
		if err != nil {
			return nil, err
		}
		for _, jobID := range started {
			if id, err := JobIDToObjectID(jobID); err == nil {
				seen[id] = struct{}{}
			}
		}
	}
	out := make([]int64, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	return out, nil
}

// ObjectIDToQueues reverse-maps object ids to the queue names their
// jobs currently occupy, for operational inspection. The virtual queue
// name "failed" is listed alongside the stage name whenever that
// object's job in that stage is on the failed registry (spec.md §4.2).
func (q *Queue) ObjectIDToQueues(ctx context.Context, ids []int64) (map[int64][]string, error) {
	want := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}

	out := map[int64][]string{}
	for _, stage := range Stages {
		pending, started, failed, err := q.stageMembers(ctx, stage)
		if err != nil {
			return nil, err
		}
		failedSet := make(map[string]struct{}, len(failed))
		for _, jobID := range failed {
			failedSet[jobID] = struct{}{}
		}
		for _, jobID := range append(append(pending, started...), failed...) {
			id, err := JobIDToObjectID(jobID)
			if err != nil {
				continue
			}
			if _, ok := want[id]; len(ids) > 0 && !ok {
				continue
			}
			out[id] = append(out[id], stage)
			if _, isFailed := failedSet[jobID]; isFailed {
				out[id] = append(out[id], "failed")
			}
		}
	}
	return out, nil
}

// DeleteJobsForObject removes every job whose id matches *_<object_id>
// across all stages and registries, returning the count removed.
func (q *Queue) DeleteJobsForObject(ctx context.Context, objectID int64) (int, error) {
	rdb := q.redis.Raw()
	removed := 0
	for _, stage := range Stages {
		jobID := JobID(stage, objectID)
		pipe := rdb.TxPipeline()
		pendingRemoved := pipe.SRem(ctx, pendingSetKey(stage), jobID)
		startedRemoved := pipe.SRem(ctx, startedSetKey(stage), jobID)
		failedRemoved := pipe.SRem(ctx, failedSetKey(stage), jobID)
		pipe.LRem(ctx, pendingListKey(stage), 0, jobID)
		pipe.Del(ctx, jobKey(jobID))
		if _, err := pipe.Exec(ctx); err != nil {
			return removed, err
		}
		if pendingRemoved.Val() > 0 || startedRemoved.Val() > 0 || failedRemoved.Val() > 0 {
			removed++
		}
	}
	return removed, nil
}
