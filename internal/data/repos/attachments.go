package repos

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/finnish-heritage-agency/passari-workflow/internal/domain"
	"github.com/finnish-heritage-agency/passari-workflow/internal/pkg/dbctx"
)

type AttachmentRepo struct {
	db *gorm.DB
}

func NewAttachmentRepo(db *gorm.DB) *AttachmentRepo {
	return &AttachmentRepo{db: db}
}

func (r *AttachmentRepo) ExistingIDs(ctx dbctx.Context, ids []int64) (map[int64]bool, error) {
	var found []int64
	if err := ctx.DB(r.db).Model(&domain.Attachment{}).Where("id IN ?", ids).Pluck("id", &found).Error; err != nil {
		return nil, err
	}
	out := make(map[int64]bool, len(found))
	for _, id := range found {
		out[id] = true
	}
	return out, nil
}

// BulkUpsert inserts new attachments and updates filename/metadata_hash/
// created_date unconditionally on conflict, mirroring ObjectRepo.BulkUpsert:
// the incoming CMS value always wins for metadata_hash, same as filename.
// modified_date is excluded here and applied per-row via
// UpdateModifiedDateGuarded so it never regresses (spec.md §4.5).
func (r *AttachmentRepo) BulkUpsert(ctx dbctx.Context, attachments []*domain.Attachment) error {
	if len(attachments) == 0 {
		return nil
	}
	return ctx.DB(r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"filename", "created_date", "metadata_hash"}),
	}).Create(&attachments).Error
}

// UpdateModifiedDateGuarded mirrors ObjectRepo.UpdateModifiedDateGuarded
// for attachment rows pulled by sync_attachments.
func (r *AttachmentRepo) UpdateModifiedDateGuarded(ctx dbctx.Context, id int64, modifiedDate *time.Time) error {
	if modifiedDate == nil {
		return nil
	}
	return ctx.DB(r.db).Model(&domain.Attachment{}).
		Where("id = ? AND (modified_date IS NULL OR modified_date < ?)", id, *modifiedDate).
		Update("modified_date", *modifiedDate).Error
}

// AssociationsForObjects returns, for each object id in objectIDs, the
// ids of its linked attachments — the first of sync_hashes's two bulk
// queries (object→attachment association, no N+1 per object).
func (r *AttachmentRepo) AssociationsForObjects(ctx dbctx.Context, objectIDs []int64) (map[int64][]int64, error) {
	out := make(map[int64][]int64, len(objectIDs))
	if len(objectIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		ObjectID     int64
		AttachmentID int64
	}
	err := ctx.DB(r.db).Table("object_attachment_association").
		Where("object_id IN ?", objectIDs).
		Select("object_id, attachment_id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ObjectID] = append(out[row.ObjectID], row.AttachmentID)
	}
	return out, nil
}

// HashesByIDs returns metadata_hash keyed by attachment id — the second
// of sync_hashes's two bulk queries.
func (r *AttachmentRepo) HashesByIDs(ctx dbctx.Context, attachmentIDs []int64) (map[int64]*string, error) {
	out := make(map[int64]*string, len(attachmentIDs))
	if len(attachmentIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		ID           int64
		MetadataHash *string
	}
	err := ctx.DB(r.db).Model(&domain.Attachment{}).
		Where("id IN ?", attachmentIDs).
		Select("id, metadata_hash").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row.MetadataHash
	}
	return out, nil
}

// EnsurePlaceholders inserts bare rows (id only) for attachment ids the
// CMS references but that haven't been synced yet, so foreign keys from
// package/object associations always resolve — spec.md §4.3.1's "create
// placeholder rows for unknown ids".
func (r *AttachmentRepo) EnsurePlaceholders(ctx dbctx.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := make([]*domain.Attachment, 0, len(ids))
	for _, id := range ids {
		placeholders = append(placeholders, &domain.Attachment{ID: id})
	}
	return ctx.DB(r.db).Clauses(clause.OnConflict{DoNothing: true}).Create(&placeholders).Error
}

// LinkToPackage associates attachment ids with a package via the join
// table, used by download_object when it builds the new Package row. It
// inserts directly against package_attachment_association with
// ON CONFLICT DO NOTHING rather than GORM's Association API, so a
// re-linked id is silently a no-op instead of a unique-constraint error.
func (r *AttachmentRepo) LinkToPackage(ctx dbctx.Context, packageID int64, attachmentIDs []int64) error {
	if len(attachmentIDs) == 0 {
		return nil
	}
	rows := make([]map[string]any, 0, len(attachmentIDs))
	for _, id := range attachmentIDs {
		rows = append(rows, map[string]any{"package_id": packageID, "attachment_id": id})
	}
	return ctx.DB(r.db).Table("package_attachment_association").
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error
}

// LinkToObject associates attachment ids with an object via the join
// table, used during CMS sync when an object's attachment list changes.
// Cross-references are only ever added here, never removed: spec.md
// §4.5 requires replacing the cross-reference set with the union of old
// and new, not a diff.
func (r *AttachmentRepo) LinkToObject(ctx dbctx.Context, objectID int64, attachmentIDs []int64) error {
	if len(attachmentIDs) == 0 {
		return nil
	}
	rows := make([]map[string]any, 0, len(attachmentIDs))
	for _, id := range attachmentIDs {
		rows = append(rows, map[string]any{"object_id": objectID, "attachment_id": id})
	}
	return ctx.DB(r.db).Table("object_attachment_association").
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error
}
