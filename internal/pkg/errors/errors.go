// Package errors collects the sentinel and typed errors used across the
// workflow: the ones that decide whether a stage handler freezes an
// object, fails a job for operator attention, or simply returns a
// precondition refusal to the caller.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
)

// PreservationError is raised by the external downloader/SIP builder
// when an object cannot be preserved at all (e.g. an unsupported file
// format). Stage handlers catch it and freeze the object automatically;
// the job itself is reported as succeeded so the queue does not retry.
type PreservationError struct {
	Err string
}

func (e *PreservationError) Error() string { return e.Err }

func NewPreservationError(format string, args ...any) *PreservationError {
	return &PreservationError{Err: fmt.Sprintf(format, args...)}
}

// OutOfDiskSpaceError is re-raised with operator guidance; the job
// fails and is left on the failed registry rather than being retried
// automatically.
type OutOfDiskSpaceError struct {
	Path string
	Err  error
}

func (e *OutOfDiskSpaceError) Error() string {
	return fmt.Sprintf("out of disk space writing to %q (free space on the package_dir volume): %v", e.Path, e.Err)
}

func (e *OutOfDiskSpaceError) Unwrap() error { return e.Err }

// WorkflowJobRunningError is returned when a freeze is requested for an
// object that currently has a running (not just pending/failed) job.
type WorkflowJobRunningError struct {
	ObjectID int64
}

func (e *WorkflowJobRunningError) Error() string {
	return fmt.Sprintf("object %d has a running job and cannot be frozen", e.ObjectID)
}

// UniquenessCollisionError indicates a duplicate sip_filename on package
// creation: a clock-collision bug, never retried.
type UniquenessCollisionError struct {
	SIPFilename string
}

func (e *UniquenessCollisionError) Error() string {
	return fmt.Sprintf("package with sip_filename %q already exists", e.SIPFilename)
}

// ReenqueueNotEligibleError is returned when reenqueue_object is asked
// to act on an object whose latest package isn't rejected, or that is
// already enqueued on some stage.
type ReenqueueNotEligibleError struct {
	ObjectID int64
	Reason   string
}

func (e *ReenqueueNotEligibleError) Error() string {
	return fmt.Sprintf("object %d is not eligible for reenqueue: %s", e.ObjectID, e.Reason)
}

// RemoteNotFoundError / LocalNotFoundError are distinguishable "path is
// absent" types, so callers can choose to log-and-ignore rather than
// silently discard any error. LocalNotFoundError is what confirm_sip
// returns (via jobs.NotFoundAsLocal) when its status file is missing;
// nothing in this repository produces RemoteNotFoundError. Freeze's
// best-effort cleanup does not use either type: it ignores a missing
// working directory directly.
type RemoteNotFoundError struct{ Path string }

func (e *RemoteNotFoundError) Error() string { return fmt.Sprintf("remote path not found: %s", e.Path) }

type LocalNotFoundError struct{ Path string }

func (e *LocalNotFoundError) Error() string { return fmt.Sprintf("local path not found: %s", e.Path) }
