package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/finnish-heritage-agency/passari-workflow/internal/domain"
	pkgerrors "github.com/finnish-heritage-agency/passari-workflow/internal/pkg/errors"
	"github.com/finnish-heritage-agency/passari-workflow/internal/queue"
)

// CreateSIP is the second pipeline stage (spec.md §4.3.2): it decides
// first-submission vs. update from the most recent preserved package,
// calls the external SIP builder, and enqueues submit_sip.
func (h *Handlers) CreateSIP(ctx context.Context, objectID int64, sipID string) error {
	return h.withObjectLock(ctx, objectID, func(ctx context.Context) error {
		dc := h.dc(ctx)

		pkg, err := h.Packages.GetByObjectAndSIPID(dc, objectID, sipID)
		if err != nil {
			return err
		}

		latestPreserved, err := h.Packages.LatestPreserved(dc, objectID)
		if err != nil {
			return err
		}

		createDate, modifyDate, update := sipDates(latestPreserved, pkg)

		err = h.SIPBuilder.Build(ctx, objectID, sipID, h.PackageDir, createDate, modifyDate, update)

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

		if err := h.Packages.SetPackaged(dc, pkg.ID); err != nil {
			return err
		}
		if err := h.Objects.SetLatestPackage(dc, objectID, pkg.ID); err != nil {
			return err
		}

		return h.Queue.Enqueue(ctx, queue.StageSubmitSIP, objectID, map[string]any{"sip_id": sipID})
	})
}

// sipDates implements spec.md §4.3.2's first-submission/update branch:
// with no preserved predecessor, the current package's own created_date
// is the create_date and there is no modify_date; otherwise the
// predecessor's created_date is the create_date and the current
// package's created_date becomes the modify_date.
func sipDates(latestPreserved, current *domain.Package) (createDate time.Time, modifyDate *time.Time, update bool) {
	if latestPreserved == nil {
		return current.CreatedDate, nil, false
	}
	modified := current.CreatedDate
	return latestPreserved.CreatedDate, &modified, true
}
