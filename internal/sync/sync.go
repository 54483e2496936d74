// Package sync implements CMS Sync (spec.md §4.5): sync_objects,
// sync_attachments and sync_hashes. sync_objects and sync_attachments
// are resumable paged pulls from the CMS (a named cursor row, chunked
// upserts inside one transaction per chunk, a heartbeat after each
// chunk); sync_hashes is a local page walk over the objects table that
// keeps no cursor and beats once when it finishes. None of them ever
// deletes rows — grounded on the teacher's recurring-job style.
package sync

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/finnish-heritage-agency/passari-workflow/internal/data/repos"
	"github.com/finnish-heritage-agency/passari-workflow/internal/domain"
	"github.com/finnish-heritage-agency/passari-workflow/internal/external"
	"github.com/finnish-heritage-agency/passari-workflow/internal/heartbeat"
	"github.com/finnish-heritage-agency/passari-workflow/internal/pkg/dbctx"
	"github.com/finnish-heritage-agency/passari-workflow/internal/pkg/logger"
)

const (
	objectSyncName     = "sync_objects"
	attachmentSyncName = "sync_attachments"
	hashSyncName       = "sync_hashes"

	// ObjectChunkSize and AttachmentChunkSize are the CMS page sizes for
	// sync_objects/sync_attachments; HashChunkSize is the larger page
	// size for the purely-local sync_hashes walk (spec.md §4.5).
	ObjectChunkSize     = 500
	AttachmentChunkSize = 500
	HashChunkSize       = 2000
)

// Service bundles CMS Sync's dependencies.
type Service struct {
	DB          *gorm.DB
	Objects     *repos.ObjectRepo
	Attachments *repos.AttachmentRepo
	SyncStatus  *repos.SyncStatusRepo
	Heartbeat   *heartbeat.Store
	CMS         external.CMSClient
	Log         *logger.Logger
}

// cursor is the resolved (offset, modified_since) starting point for one
// sync run, derived from the persisted SyncStatus per spec.md §4.5.
type cursor struct {
	offset        int
	modifiedSince *time.Time
}

func (s *Service) resolveCursor(ctx context.Context, name string, saveProgress bool, now time.Time) (cursor, error) {
	if !saveProgress {
		return cursor{}, nil
	}
	dc := dbctx.Context{Ctx: ctx}
	if err := s.SyncStatus.StartIfNeeded(dc, name, now); err != nil {
		return cursor{}, err
	}
	st, err := s.SyncStatus.Get(dc, name)
	if err != nil {
		return cursor{}, err
	}
	return cursor{offset: st.Offset, modifiedSince: st.PrevStartSyncDate}, nil
}

func (s *Service) persistOffset(ctx context.Context, name string, saveProgress bool, offset int) error {
	if !saveProgress {
		return nil
	}
	return s.SyncStatus.UpdateOffset(dbctx.Context{Ctx: ctx}, name, offset)
}

func (s *Service) finish(ctx context.Context, name string, saveProgress bool) error {
	if !saveProgress {
		return nil
	}
	return s.SyncStatus.FinishSyncProgress(dbctx.Context{Ctx: ctx}, name)
}

// SyncObjects pulls object records from the CMS in pages of
// ObjectChunkSize, upserting them and recomputing their attachment
// cross-references one chunk per transaction.
func (s *Service) SyncObjects(ctx context.Context, saveProgress bool) error {
	log := s.Log.With("sync", objectSyncName)
	now := time.Now().UTC()

	cur, err := s.resolveCursor(ctx, objectSyncName, saveProgress, now)
	if err != nil {
		return err
	}

	for {
		page, err := s.CMS.ObjectPage(ctx, cur.modifiedSince, cur.offset, ObjectChunkSize)
		if err != nil {
			return err
		}

		if len(page.Records) > 0 {
			if err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				return s.applyObjectChunk(dbctx.Context{Ctx: ctx, Tx: tx}, page.Records)
			}); err != nil {
				return err
			}
		}

		cur.offset += len(page.Records)
		if err := s.Heartbeat.Beat(ctx, objectSyncName, time.Now().UTC()); err != nil {
			log.Warn("heartbeat failed", "error", err)
		}
		if err := s.persistOffset(ctx, objectSyncName, saveProgress, cur.offset); err != nil {
			return err
		}

		log.Info("chunk applied", "offset", cur.offset, "records", len(page.Records))

		if !page.HasMore {
			break
		}
	}

	return s.finish(ctx, objectSyncName, saveProgress)
}

func (s *Service) applyObjectChunk(dc dbctx.Context, records []external.CMSObjectRecord) error {
	toUpsert := make([]*domain.Object, 0, len(records))
	for _, rec := range records {
		toUpsert = append(toUpsert, &domain.Object{
			ID:           rec.ID,
			Title:        rec.Title,
			CreatedDate:  rec.CreatedDate,
			MetadataHash: rec.MetadataHash,
		})
	}
	if err := s.Objects.BulkUpsert(dc, toUpsert); err != nil {
		return err
	}

	for _, rec := range records {
		if err := s.Objects.UpdateModifiedDateGuarded(dc, rec.ID, rec.ModifiedDate); err != nil {
			return err
		}

		if len(rec.AttachmentIDs) == 0 {
			continue
		}
		if err := s.Attachments.EnsurePlaceholders(dc, rec.AttachmentIDs); err != nil {
			return err
		}
		if err := s.Attachments.LinkToObject(dc, rec.ID, rec.AttachmentIDs); err != nil {
			return err
		}
	}

	return nil
}

// SyncAttachments pulls attachment records from the CMS in pages of
// AttachmentChunkSize, upserting them, propagating their modified_date
// onto linked objects, and recomputing cross-references symmetrically to
// SyncObjects.
func (s *Service) SyncAttachments(ctx context.Context, saveProgress bool) error {
	log := s.Log.With("sync", attachmentSyncName)
	now := time.Now().UTC()

	cur, err := s.resolveCursor(ctx, attachmentSyncName, saveProgress, now)
	if err != nil {
		return err
	}

	for {
		page, err := s.CMS.AttachmentPage(ctx, cur.modifiedSince, cur.offset, AttachmentChunkSize)
		if err != nil {
			return err
		}

		if len(page.Records) > 0 {
			if err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				return s.applyAttachmentChunk(dbctx.Context{Ctx: ctx, Tx: tx}, page.Records)
			}); err != nil {
				return err
			}
		}

		cur.offset += len(page.Records)
		if err := s.Heartbeat.Beat(ctx, attachmentSyncName, time.Now().UTC()); err != nil {
			log.Warn("heartbeat failed", "error", err)
		}
		if err := s.persistOffset(ctx, attachmentSyncName, saveProgress, cur.offset); err != nil {
			return err
		}

		log.Info("chunk applied", "offset", cur.offset, "records", len(page.Records))

		if !page.HasMore {
			break
		}
	}

	return s.finish(ctx, attachmentSyncName, saveProgress)
}

func (s *Service) applyAttachmentChunk(dc dbctx.Context, records []external.CMSAttachmentRecord) error {
	toUpsert := make([]*domain.Attachment, 0, len(records))
	for _, rec := range records {
		toUpsert = append(toUpsert, &domain.Attachment{
			ID:           rec.ID,
			Filename:     rec.Filename,
			CreatedDate:  rec.CreatedDate,
			MetadataHash: rec.MetadataHash,
		})
	}
	if err := s.Attachments.BulkUpsert(dc, toUpsert); err != nil {
		return err
	}

	for _, rec := range records {
		if err := s.Attachments.UpdateModifiedDateGuarded(dc, rec.ID, rec.ModifiedDate); err != nil {
			return err
		}

		if len(rec.ObjectIDs) > 0 {
			if err := s.Objects.EnsurePlaceholders(dc, rec.ObjectIDs); err != nil {
				return err
			}
			for _, objectID := range rec.ObjectIDs {
				if err := s.Attachments.LinkToObject(dc, objectID, []int64{rec.ID}); err != nil {
					return err
				}
			}
		}

		if rec.ModifiedDate == nil {
			continue
		}
		for _, objectID := range rec.ObjectIDs {
			if err := s.Objects.UpdateModifiedDateGuarded(dc, objectID, rec.ModifiedDate); err != nil {
				return err
			}
		}
	}

	return nil
}

// SyncHashes walks every Object in id order in pages of HashChunkSize,
// reading each page's attachment hashes with exactly two bulk queries
// (object→attachment association, then attachment metadata_hash), never
// one read query per object. The resulting attachment_metadata_hash
// values are not written in bulk: one conditional UPDATE is issued per
// object, which changes the row only when the value differs.
func (s *Service) SyncHashes(ctx context.Context) error {
	log := s.Log.With("sync", hashSyncName)
	dc := dbctx.Context{Ctx: ctx}

	offset := 0
	updated, skipped := 0, 0
	for {
		ids, err := s.Objects.AllIDsPage(dc, offset, HashChunkSize)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			break
		}

		associations, err := s.Attachments.AssociationsForObjects(dc, ids)
		if err != nil {
			return err
		}

		allAttachmentIDs := make([]int64, 0)
		for _, attIDs := range associations {
			allAttachmentIDs = append(allAttachmentIDs, attIDs...)
		}
		hashesByID, err := s.Attachments.HashesByIDs(dc, allAttachmentIDs)
		if err != nil {
			return err
		}

		for _, objectID := range ids {
			attIDs := associations[objectID]
			combined, ok := combineHashes(attIDs, hashesByID)
			if !ok {
				skipped++
				continue
			}
			if err := s.Objects.SetAttachmentMetadataHashIfChanged(dc, objectID, combined); err != nil {
				return err
			}
			updated++
		}

		offset += len(ids)
	}

	if err := s.Heartbeat.Beat(ctx, hashSyncName, time.Now().UTC()); err != nil {
		log.Warn("heartbeat failed", "error", err)
	}
	log.Info("sync_hashes complete", "updated", updated, "skipped", skipped)
	return nil
}

// combineHashes implements spec.md §4.5's hash sync combiner: if any
// linked attachment has a null metadata_hash, the object is skipped
// entirely (ok=false). Otherwise the attachment hashes are sorted and
// SHA-256'd together; an attachment-less object maps to the empty
// string sentinel, with no hash computed at all.
func combineHashes(attachmentIDs []int64, hashesByID map[int64]*string) (combined string, ok bool) {
	if len(attachmentIDs) == 0 {
		return "", true
	}

	hashes := make([]string, 0, len(attachmentIDs))
	for _, id := range attachmentIDs {
		h, known := hashesByID[id]
		if !known || h == nil {
			return "", false
		}
		hashes = append(hashes, *h)
	}
	sort.Strings(hashes)

	joined := ""
	for _, h := range hashes {
		joined += h
	}
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:]), true
}
