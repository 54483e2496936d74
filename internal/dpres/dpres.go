// Package dpres implements the DPRES Reconciler (spec.md §4.6): the
// scheduled sync_processed_sips job that walks DPRES's SFTP-exposed
// accepted/rejected report tree and resolves Packages against it.
// Connection handling is grounded on warpdl-warpdl's pkg/warplib SFTP
// downloader (ssh.Dial + sftp.NewClient over a TOFU host key callback);
// the reconciliation algorithm itself is new, transcribed from spec.md.
package dpres

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"gorm.io/gorm"

	"github.com/finnish-heritage-agency/passari-workflow/internal/config"
	"github.com/finnish-heritage-agency/passari-workflow/internal/data/repos"
	"github.com/finnish-heritage-agency/passari-workflow/internal/heartbeat"
	"github.com/finnish-heritage-agency/passari-workflow/internal/pkg/dbctx"
	"github.com/finnish-heritage-agency/passari-workflow/internal/pkg/logger"
	"github.com/finnish-heritage-agency/passari-workflow/internal/queue"
)

const (
	heartbeatSource = "sync_processed_sips"
	defaultDays     = 31
	dayLayout       = "2006-01-02"
)

// Service bundles the reconciler's dependencies.
type Service struct {
	Cfg        config.DPRESConfig
	Packages   *repos.PackageRepo
	Queue      *queue.Queue
	Heartbeat  *heartbeat.Store
	PackageDir string
	Log        *logger.Logger
}

// reportEntry is one ingest report found while walking the remote tree.
type reportEntry struct {
	SIPFilename  string
	Accepted     bool
	ReportPath   string // remote path to the .xml ingest report
	ReportMTime  time.Time
	Transfer     string
	TransferPath string // remote dir to delete on rejection; empty when accepted
}

func (s *Service) connect() (*ssh.Client, *sftp.Client, error) {
	key, err := os.ReadFile(s.Cfg.KeyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("dpres: read private key %s: %w", s.Cfg.KeyPath, err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, nil, fmt.Errorf("dpres: parse private key: %w", err)
	}

	cfg := &ssh.ClientConfig{
		User:            s.Cfg.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: newTOFUHostKeyCallback(s.Cfg.KnownHostsPath),
		Timeout:         30 * time.Second,
	}

	sshConn, err := ssh.Dial("tcp", s.Cfg.Addr(), cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("dpres: dial %s: %w", s.Cfg.Addr(), err)
	}
	sftpClient, err := sftp.NewClient(sshConn)
	if err != nil {
		sshConn.Close()
		return nil, nil, fmt.Errorf("dpres: open sftp subsystem: %w", err)
	}
	return sshConn, sftpClient, nil
}

// SyncProcessedSips is the sync_processed_sips(days) scheduled job. A
// days<=0 defaults to 31, per spec.md §4.6.
func (s *Service) SyncProcessedSips(ctx context.Context, days int) error {
	if days <= 0 {
		days = defaultDays
	}
	now := time.Now().UTC()

	sshConn, sftpClient, err := s.connect()
	if err != nil {
		return err
	}
	defer sshConn.Close()
	defer sftpClient.Close()

	dc := dbctx.Context{Ctx: ctx}
	resolved, err := s.Packages.ResolvedSIPFilenames(dc, now.AddDate(0, 0, -(days+2)))
	if err != nil {
		return err
	}

	var entries []reportEntry
	for _, status := range []string{"accepted", "rejected"} {
		found, err := scanRoot(sftpClient, status, days, now, resolved)
		if err != nil {
			return err
		}
		entries = append(entries, found...)
	}

	bySIP := dedupeBySIPFilename(entries)

	sipFilenames := make([]string, 0, len(bySIP))
	for sipFilename := range bySIP {
		sipFilenames = append(sipFilenames, sipFilename)
	}
	sort.Strings(sipFilenames)

	resolvedCount := 0
	for _, sipFilename := range sipFilenames {
		entry := bySIP[sipFilename]
		ok, err := s.resolveOne(ctx, sftpClient, entry)
		if err != nil {
			return err
		}
		if ok {
			resolvedCount++
		}
	}

	s.Log.Info("sync_processed_sips complete", "scanned", len(entries), "distinct_sips", len(bySIP), "resolved", resolvedCount)
	return s.Heartbeat.Beat(ctx, heartbeatSource, time.Now().UTC())
}

// scanRoot walks <status>/<day>/ for the last `days` days, skipping any
// sip_filename already in the skip set, and records one reportEntry per
// <transfer>-ingest-report.xml found.
func scanRoot(client *sftp.Client, status string, days int, now time.Time, skip map[string]bool) ([]reportEntry, error) {
	var out []reportEntry
	for i := 0; i < days; i++ {
		day := now.AddDate(0, 0, -i).Format(dayLayout)
		dayPath := path.Join(status, day)

		sipDirs, err := client.ReadDir(dayPath)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("dpres: list %s: %w", dayPath, err)
		}

		for _, sipDir := range sipDirs {
			if !sipDir.IsDir() {
				continue
			}
			sipFilename := sipDir.Name()
			if skip[sipFilename] {
				continue
			}

			sipPath := path.Join(dayPath, sipFilename)
			files, err := client.ReadDir(sipPath)
			if err != nil {
				return nil, fmt.Errorf("dpres: list %s: %w", sipPath, err)
			}

			for _, f := range files {
				if f.IsDir() || !strings.HasSuffix(f.Name(), "-ingest-report.xml") {
					continue
				}
				entry := reportEntry{
					SIPFilename: sipFilename,
					Accepted:    status == "accepted",
					ReportPath:  path.Join(sipPath, f.Name()),
					ReportMTime: f.ModTime(),
					Transfer:    strings.TrimSuffix(f.Name(), "-ingest-report.xml"),
				}
				if status == "rejected" {
					entry.TransferPath = sipPath
				}
				out = append(out, entry)
			}
		}
	}
	return out, nil
}

// dedupeBySIPFilename keeps, for each sip_filename, the report with the
// newest mtime across both accepted and rejected trees (spec.md §4.6).
func dedupeBySIPFilename(entries []reportEntry) map[string]reportEntry {
	best := make(map[string]reportEntry, len(entries))
	for _, e := range entries {
		cur, ok := best[e.SIPFilename]
		if !ok || e.ReportMTime.After(cur.ReportMTime) {
			best[e.SIPFilename] = e
		}
	}
	return best
}

// resolveOne applies one reconciled report to its Package: marks the
// outcome, downloads the reports, cleans up a rejected transfer
// directory, writes the status file, and enqueues confirm_sip. Returns
// ok=false when no matching unresolved Package exists (already handled
// or never created), which is not an error.
func (s *Service) resolveOne(ctx context.Context, client *sftp.Client, entry reportEntry) (bool, error) {
	dc := dbctx.Context{Ctx: ctx}

	pkg, err := s.Packages.GetBySIPFilename(dc, entry.SIPFilename)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil // not-found is a legitimate skip, not a failure
	}
	if err != nil {
		return false, err
	}
	if pkg.Preserved || pkg.Rejected {
		return false, nil
	}

	if err := s.Packages.SetOutcome(dc, pkg.ID, entry.Accepted); err != nil {
		return false, err
	}

	logDir := filepath.Join(s.PackageDir, entry.SIPFilename, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return false, fmt.Errorf("dpres: create log dir %s: %w", logDir, err)
	}
	if err := downloadAtomic(client, entry.ReportPath, filepath.Join(logDir, entry.Transfer+"-ingest-report.xml")); err != nil {
		return false, err
	}
	htmlRemote := strings.TrimSuffix(entry.ReportPath, ".xml") + ".html"
	if err := downloadAtomic(client, htmlRemote, filepath.Join(logDir, entry.Transfer+"-ingest-report.html")); err != nil {
		s.Log.Warn("ingest report html missing, continuing with xml only", "sip_filename", entry.SIPFilename, "error", err)
	}

	if !entry.Accepted && entry.TransferPath != "" {
		if err := removeRemoteTree(client, entry.TransferPath); err != nil {
			s.Log.Warn("failed to clean up rejected transfer directory", "path", entry.TransferPath, "error", err)
		}
	}

	status := "rejected"
	if entry.Accepted {
		status = "accepted"
	}
	statusPath := filepath.Join(s.PackageDir, entry.SIPFilename+".status")
	if err := os.WriteFile(statusPath, []byte(status), 0o644); err != nil {
		return false, fmt.Errorf("dpres: write status file %s: %w", statusPath, err)
	}

	if err := s.Queue.Enqueue(ctx, queue.StageConfirmSIP, pkg.ObjectID, map[string]any{"sip_id": pkg.SIPID}); err != nil {
		return false, err
	}

	return true, nil
}

// downloadAtomic copies remotePath to localPath via a temporary
// `.download` file that is renamed into place on success, so a reader
// never observes a partially-written report (spec.md §4.6 step 2).
func downloadAtomic(client *sftp.Client, remotePath, localPath string) error {
	remote, err := client.Open(remotePath)
	if err != nil {
		return fmt.Errorf("dpres: open remote %s: %w", remotePath, err)
	}
	defer remote.Close()

	tmpPath := localPath + ".download"
	local, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("dpres: create %s: %w", tmpPath, err)
	}

	if _, err := io.Copy(local, remote); err != nil {
		local.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("dpres: download %s: %w", remotePath, err)
	}
	if err := local.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("dpres: close %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, localPath); err != nil {
		return fmt.Errorf("dpres: rename %s to %s: %w", tmpPath, localPath, err)
	}
	return nil
}

// removeRemoteTree recursively deletes a remote directory, since
// *sftp.Client has no RemoveAll.
func removeRemoteTree(client *sftp.Client, remoteDir string) error {
	entries, err := client.ReadDir(remoteDir)
	if err != nil {
		return fmt.Errorf("dpres: list %s: %w", remoteDir, err)
	}
	for _, e := range entries {
		full := path.Join(remoteDir, e.Name())
		if e.IsDir() {
			if err := removeRemoteTree(client, full); err != nil {
				return err
			}
			continue
		}
		if err := client.Remove(full); err != nil {
			return fmt.Errorf("dpres: remove %s: %w", full, err)
		}
	}
	return client.RemoveDirectory(remoteDir)
}
