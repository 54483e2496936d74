package jobs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	pkgerrors "github.com/finnish-heritage-agency/passari-workflow/internal/pkg/errors"
)

// ConfirmSIP is the fourth and final pipeline stage (spec.md §4.3.4): it
// reads the reconciler-produced status file, invokes the external
// confirm step, and records the outcome.
func (h *Handlers) ConfirmSIP(ctx context.Context, objectID int64, sipID string) error {
	return h.withObjectLock(ctx, objectID, func(ctx context.Context) error {
		dc := h.dc(ctx)

		pkg, err := h.Packages.GetByObjectAndSIPID(dc, objectID, sipID)
		if err != nil {
			return err
		}

		statusPath := filepath.Join(h.PackageDir, pkg.SIPFilename+".status")
		raw, err := os.ReadFile(statusPath)
		if err != nil {
			return NotFoundAsLocal(statusPath, err)
		}

		status := strings.TrimSpace(string(raw))
		var accepted bool
		switch status {
		case "accepted":
			accepted = true
		case "rejected":
			accepted = false
		default:
			return fmt.Errorf("%w: status file %s contains %q, want accepted or rejected", pkgerrors.ErrInvalidArgument, statusPath, status)
		}

		if err := h.Confirmer.Confirm(ctx, objectID, sipID, pkg.SIPFilename, accepted, h.PackageDir, h.ArchiveDir); err != nil {
			return err
		}

		if err := h.Packages.SetOutcome(dc, pkg.ID, accepted); err != nil {
			return err
		}
		if accepted {
			if err := h.Objects.SetPreserved(dc, objectID, true); err != nil {
				return err
			}
		}
		return nil
	})
}
