package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	pkgerrors "github.com/finnish-heritage-agency/passari-workflow/internal/pkg/errors"
)

// SubmitSIP is the third pipeline stage (spec.md §4.3.3): it uploads
// the built SIP to DPRES, marks the package uploaded, and removes the
// local archive file. It does not enqueue a next stage itself —
// confirmation is driven by the DPRES Reconciler (§4.6).
func (h *Handlers) SubmitSIP(ctx context.Context, objectID int64, sipID string) error {
	return h.withObjectLock(ctx, objectID, func(ctx context.Context) error {
		dc := h.dc(ctx)

		pkg, err := h.Packages.GetByObjectAndSIPID(dc, objectID, sipID)
		if err != nil {
			return err
		}
		if pkg.Uploaded {
			return fmt.Errorf("%w: package %q already uploaded", pkgerrors.ErrInvalidArgument, pkg.SIPFilename)
		}

		err = h.Uploader.Upload(ctx, pkg.SIPFilename, h.PackageDir)

		var preservationErr *pkgerrors.PreservationError
		if errors.As(err, &preservationErr) {
			return h.freezeRunningObject(ctx, objectID, sipID, preservationErr.Error())
		}
		var diskErr *pkgerrors.OutOfDiskSpaceError
		if errors.As(err, &diskErr) {
			return err
		}
		if err != nil {
			return err
		}

		if err := h.Packages.SetUploaded(dc, pkg.ID); err != nil {
			return err
		}

		archivePath := filepath.Join(h.PackageDir, pkg.SIPFilename+".tar")
		if err := os.Remove(archivePath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove local SIP archive %s: %w", archivePath, err)
		}
		return nil
	})
}
