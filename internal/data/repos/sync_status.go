package repos

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/finnish-heritage-agency/passari-workflow/internal/domain"
	"github.com/finnish-heritage-agency/passari-workflow/internal/pkg/dbctx"
)

type SyncStatusRepo struct {
	db *gorm.DB
}

func NewSyncStatusRepo(db *gorm.DB) *SyncStatusRepo {
	return &SyncStatusRepo{db: db}
}

// Get returns the named cursor, or a fresh zero-value one (not yet
// persisted) if this sync has never run.
func (r *SyncStatusRepo) Get(ctx dbctx.Context, name string) (*domain.SyncStatus, error) {
	var s domain.SyncStatus
	err := ctx.DB(r.db).First(&s, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &domain.SyncStatus{Name: name}, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SyncStatusRepo) Upsert(ctx dbctx.Context, s *domain.SyncStatus) error {
	return ctx.DB(r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"start_sync_date", "prev_start_sync_date", "offset"}),
	}).Create(s).Error
}

func (r *SyncStatusRepo) UpdateOffset(ctx dbctx.Context, name string, offset int) error {
	return ctx.DB(r.db).Model(&domain.SyncStatus{}).Where("name = ?", name).Update("offset", offset).Error
}

// StartIfNeeded sets start_sync_date to now if it is currently null,
// recording the cursor that becomes prev_start_sync_date once this run
// finishes (spec.md §4.5).
func (r *SyncStatusRepo) StartIfNeeded(ctx dbctx.Context, name string, now time.Time) error {
	s, err := r.Get(ctx, name)
	if err != nil {
		return err
	}
	if s.StartSyncDate != nil {
		return nil
	}
	s.StartSyncDate = &now
	return r.Upsert(ctx, s)
}

// FinishSyncProgress rolls start_sync_date into prev_start_sync_date and
// resets the offset, marking a clean completed run.
func (r *SyncStatusRepo) FinishSyncProgress(ctx dbctx.Context, name string) error {
	s, err := r.Get(ctx, name)
	if err != nil {
		return err
	}
	s.PrevStartSyncDate = s.StartSyncDate
	s.StartSyncDate = nil
	s.Offset = 0
	return r.Upsert(ctx, s)
}
