package redisclient

import (
	"fmt"
	"time"
)

// WorkflowLockKey is the global lock guarding any operation that decides
// what gets enqueued from the persistent model: the planner, freeze,
// unfreeze and reset (spec.md §4.2).
const WorkflowLockKey = "workflow-lock"

// WorkflowLockTTL is long enough that a crashed holder still releases
// the lock automatically, per spec.md §9.
const WorkflowLockTTL = 15 * time.Minute

// ObjectLockKey is the per-object mutex serializing the four stages for
// one object.
func ObjectLockKey(objectID int64) string {
	return fmt.Sprintf("lock-object-%d", objectID)
}

// ObjectLockTTL must outlive the longest plausible stage execution.
const ObjectLockTTL = 4 * time.Hour

// HeartbeatKey is the per-source liveness timestamp key.
func HeartbeatKey(source string) string {
	return fmt.Sprintf("heartbeat:%s", source)
}
