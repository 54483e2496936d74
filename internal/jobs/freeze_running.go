package jobs

import (
	"context"

	"github.com/finnish-heritage-agency/passari-workflow/internal/domain"
)

// freezeRunningObject implements the freezing semantics stage handlers
// use on a PreservationError (spec.md §4.3, "Freezing semantics in
// stage handlers"): it sets the object frozen with source AUTOMATIC,
// cancels the in-flight package if it matches sipID, and best-effort
// archives logs and removes the working directory. All I/O failures
// during that best-effort branch are swallowed, never surfaced to the
// caller.
func (h *Handlers) freezeRunningObject(ctx context.Context, objectID int64, sipID, reason string) error {
	dc := h.dc(ctx)
	source := domain.FreezeSourceAutomatic

	if err := h.Objects.SetFrozenBulk(dc, []int64{objectID}, true, reason, &source); err != nil {
		return err
	}

	obj, err := h.Objects.GetByID(dc, objectID)
	if err != nil {
		return err
	}

	var sipFilename string
	if obj.LatestPackage != nil && obj.LatestPackage.SIPID == sipID {
		if err := h.Packages.SetCancelled(dc, obj.LatestPackage.ID, true); err != nil {
			return err
		}
		sipFilename = obj.LatestPackage.SIPFilename
	}

	if sipFilename != "" {
		ArchiveLogs(h.Log, h.PackageDir, h.ArchiveDir, sipFilename)
		RemoveWorkdir(h.Log, h.PackageDir, sipFilename)
	}

	h.Log.Info("object frozen automatically", "object_id", objectID, "reason", reason)
	return nil
}
