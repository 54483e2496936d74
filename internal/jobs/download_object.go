package jobs

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/finnish-heritage-agency/passari-workflow/internal/domain"
	pkgerrors "github.com/finnish-heritage-agency/passari-workflow/internal/pkg/errors"
	"github.com/finnish-heritage-agency/passari-workflow/internal/queue"
)

// DownloadObject is the first pipeline stage (spec.md §4.3.1): it
// invokes the external downloader, records a new Package row, and
// enqueues create_sip on success.
func (h *Handlers) DownloadObject(ctx context.Context, objectID int64) error {
	return h.withObjectLock(ctx, objectID, func(ctx context.Context) error {
		dc := h.dc(ctx)
		sipID := time.Now().UTC().Format("20060102-150405")

		result, err := h.Downloader.Download(ctx, objectID, h.PackageDir, sipID)

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

		obj, err := h.Objects.GetByID(dc, objectID)
		if err != nil {
			return err
		}

		pkg := &domain.Package{
			ObjectID:               objectID,
			SIPFilename:            result.SIPFilename,
			SIPID:                  sipID,
			Downloaded:             true,
			CreatedDate:            time.Now().UTC(),
			ObjectModifiedDate:     result.ModifiedDate,
			MetadataHash:           obj.MetadataHash,
			AttachmentMetadataHash: obj.AttachmentMetadataHash,
		}

		if err := h.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			txdc := dc.WithTx(tx)
			if err := h.Packages.Create(txdc, pkg); err != nil {
				return err
			}
			if err := h.Attachments.EnsurePlaceholders(txdc, result.AttachmentIDs); err != nil {
				return err
			}
			if err := h.Attachments.LinkToPackage(txdc, pkg.ID, result.AttachmentIDs); err != nil {
				return err
			}
			return h.Objects.SetLatestPackage(txdc, objectID, pkg.ID)
		}); err != nil {
			return err
		}

		return h.Queue.Enqueue(ctx, queue.StageCreateSIP, objectID, map[string]any{"sip_id": sipID})
	})
}
