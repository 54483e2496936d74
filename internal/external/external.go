// Package external declares the thin interfaces spec.md §1 places out
// of scope: the CMS HTTP client, the SIP construction library, and the
// DPRES transfer steps. Stage jobs and the sync engine depend only on
// these interfaces, never on a concrete CMS/DPRES wire protocol.
package external

import (
	"context"
	"time"
)

// CMSObjectRecord is one page row from the CMS object iterator.
type CMSObjectRecord struct {
	ID            int64
	Title         string
	CreatedDate   *time.Time
	ModifiedDate  *time.Time
	MetadataHash  *string
	AttachmentIDs []int64
}

// CMSAttachmentRecord is one page row from the CMS attachment iterator.
// ObjectIDs carries the attachment's current object cross-references, the
// mirror of CMSObjectRecord.AttachmentIDs, so sync_attachments can union
// them onto object_attachment_association the same way sync_objects does.
type CMSAttachmentRecord struct {
	ID           int64
	Filename     string
	CreatedDate  *time.Time
	ModifiedDate *time.Time
	MetadataHash *string
	ObjectIDs    []int64
}

// Page is one chunk of a resumable paged pull, with enough information
// for the caller to know whether to keep paging.
type Page[T any] struct {
	Records []T
	HasMore bool
}

// CMSClient is the paged, resumable CMS record source CMS Sync (E) pulls
// from; modifiedSince is nil for a full sweep.
type CMSClient interface {
	ObjectPage(ctx context.Context, modifiedSince *time.Time, offset, chunkSize int) (Page[CMSObjectRecord], error)
	AttachmentPage(ctx context.Context, modifiedSince *time.Time, offset, chunkSize int) (Page[CMSAttachmentRecord], error)
}

// DownloadResult is what the external downloader hands back to
// download_object on success.
type DownloadResult struct {
	SIPFilename   string
	AttachmentIDs []int64
	ModifiedDate  *time.Time
}

// Downloader fetches an object's current CMS representation and any
// attachment payloads into packageDir, computing sipFilename.
type Downloader interface {
	Download(ctx context.Context, objectID int64, packageDir, sipID string) (DownloadResult, error)
}

// SIPBuilder constructs the actual SIP archive for a previously
// downloaded object. createDate/modifyDate bracket the object version
// this SIP represents (spec.md §4.3.2); update is true for a
// resubmission of an already-preserved object.
type SIPBuilder interface {
	Build(ctx context.Context, objectID int64, sipID, packageDir string, createDate time.Time, modifyDate *time.Time, update bool) error
}

// Uploader submits a built SIP archive to DPRES over its transfer
// channel.
type Uploader interface {
	Upload(ctx context.Context, sipFilename, packageDir string) error
}

// ConfirmStep performs the local side-effects of a DPRES outcome: moving
// logs/reports into the archive layout and clearing the working
// directory (spec.md §4.3.4).
type ConfirmStep interface {
	Confirm(ctx context.Context, objectID int64, sipID, sipFilename string, accepted bool, packageDir, archiveDir string) error
}
