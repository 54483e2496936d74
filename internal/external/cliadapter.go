package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"
)

// CLIAdapter implements Downloader, SIPBuilder, Uploader and
// ConfirmStep by shelling out to the configured external binaries that
// speak the real MuseumPlus/DPRES wire protocols, grounded on the
// teacher's os/exec-based tool wrappers (internal/platform/localmedia,
// internal/services/media_tools.go). Every call passes a JSON request on
// stdin and expects a JSON response on stdout; a non-zero exit is
// reported with the subprocess's stderr attached.
type CLIAdapter struct {
	DownloaderPath     string
	SIPBuilderPath     string
	UploaderPath       string
	ConfirmPath        string
	CMSObjectsPath     string
	CMSAttachmentsPath string
	Timeout            time.Duration
}

func (a *CLIAdapter) timeout() time.Duration {
	if a.Timeout > 0 {
		return a.Timeout
	}
	return 30 * time.Minute
}

func (a *CLIAdapter) run(ctx context.Context, binPath string, request, response any) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout())
	defer cancel()

	payload, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("external: marshal request for %s: %w", binPath, err)
	}

	cmd := exec.CommandContext(ctx, binPath)
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("external: %s failed: %w: %s", binPath, err, stderr.String())
	}

	if response == nil {
		return nil
	}
	if err := json.Unmarshal(stdout.Bytes(), response); err != nil {
		return fmt.Errorf("external: parse response from %s: %w", binPath, err)
	}
	return nil
}

type downloadRequest struct {
	ObjectID   int64  `json:"object_id"`
	PackageDir string `json:"package_dir"`
	SIPID      string `json:"sip_id"`
}

type downloadResponse struct {
	SIPFilename   string     `json:"sip_filename"`
	AttachmentIDs []int64    `json:"attachment_ids"`
	ModifiedDate  *time.Time `json:"modified_date"`
}

func (a *CLIAdapter) Download(ctx context.Context, objectID int64, packageDir, sipID string) (DownloadResult, error) {
	var resp downloadResponse
	err := a.run(ctx, a.DownloaderPath, downloadRequest{
		ObjectID: objectID, PackageDir: packageDir, SIPID: sipID,
	}, &resp)
	if err != nil {
		return DownloadResult{}, err
	}
	return DownloadResult{
		SIPFilename:   resp.SIPFilename,
		AttachmentIDs: resp.AttachmentIDs,
		ModifiedDate:  resp.ModifiedDate,
	}, nil
}

type buildRequest struct {
	ObjectID   int64      `json:"object_id"`
	SIPID      string     `json:"sip_id"`
	PackageDir string     `json:"package_dir"`
	CreateDate time.Time  `json:"create_date"`
	ModifyDate *time.Time `json:"modify_date"`
	Update     bool       `json:"update"`
}

func (a *CLIAdapter) Build(ctx context.Context, objectID int64, sipID, packageDir string, createDate time.Time, modifyDate *time.Time, update bool) error {
	return a.run(ctx, a.SIPBuilderPath, buildRequest{
		ObjectID: objectID, SIPID: sipID, PackageDir: packageDir,
		CreateDate: createDate, ModifyDate: modifyDate, Update: update,
	}, nil)
}

type uploadRequest struct {
	SIPFilename string `json:"sip_filename"`
	PackageDir  string `json:"package_dir"`
}

func (a *CLIAdapter) Upload(ctx context.Context, sipFilename, packageDir string) error {
	return a.run(ctx, a.UploaderPath, uploadRequest{
		SIPFilename: sipFilename, PackageDir: packageDir,
	}, nil)
}

type confirmRequest struct {
	ObjectID    int64  `json:"object_id"`
	SIPID       string `json:"sip_id"`
	SIPFilename string `json:"sip_filename"`
	Accepted    bool   `json:"accepted"`
	PackageDir  string `json:"package_dir"`
	ArchiveDir  string `json:"archive_dir"`
}

func (a *CLIAdapter) Confirm(ctx context.Context, objectID int64, sipID, sipFilename string, accepted bool, packageDir, archiveDir string) error {
	return a.run(ctx, a.ConfirmPath, confirmRequest{
		ObjectID: objectID, SIPID: sipID, SIPFilename: sipFilename,
		Accepted: accepted, PackageDir: packageDir, ArchiveDir: archiveDir,
	}, nil)
}

type pageRequest struct {
	ModifiedSince *time.Time `json:"modified_since"`
	Offset        int        `json:"offset"`
	ChunkSize     int        `json:"chunk_size"`
}

type objectPageResponse struct {
	Records []CMSObjectRecord `json:"records"`
	HasMore bool              `json:"has_more"`
}

// ObjectPage implements CMSClient by shelling out to CMSObjectsPath, the
// same bridge pattern as Download/Build/Upload/Confirm for the other
// out-of-scope external collaborator (spec.md §1).
func (a *CLIAdapter) ObjectPage(ctx context.Context, modifiedSince *time.Time, offset, chunkSize int) (Page[CMSObjectRecord], error) {
	var resp objectPageResponse
	if err := a.run(ctx, a.CMSObjectsPath, pageRequest{ModifiedSince: modifiedSince, Offset: offset, ChunkSize: chunkSize}, &resp); err != nil {
		return Page[CMSObjectRecord]{}, err
	}
	return Page[CMSObjectRecord]{Records: resp.Records, HasMore: resp.HasMore}, nil
}

type attachmentPageResponse struct {
	Records []CMSAttachmentRecord `json:"records"`
	HasMore bool                  `json:"has_more"`
}

func (a *CLIAdapter) AttachmentPage(ctx context.Context, modifiedSince *time.Time, offset, chunkSize int) (Page[CMSAttachmentRecord], error) {
	var resp attachmentPageResponse
	if err := a.run(ctx, a.CMSAttachmentsPath, pageRequest{ModifiedSince: modifiedSince, Offset: offset, ChunkSize: chunkSize}, &resp); err != nil {
		return Page[CMSAttachmentRecord]{}, err
	}
	return Page[CMSAttachmentRecord]{Records: resp.Records, HasMore: resp.HasMore}, nil
}
