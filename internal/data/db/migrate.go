package db

import (
	"fmt"

	"github.com/finnish-heritage-agency/passari-workflow/internal/domain"
)

// AutoMigrateAll creates/updates the four model tables and their join
// tables, then lays down the indexes spec.md §6 names explicitly: a
// trigram GIN index on each free-text search column, and btree indexes
// on the remaining lookup columns GORM's struct tags don't already
// cover. Safe to run repeatedly; every statement is idempotent.
func (s *PostgresService) AutoMigrateAll() error {
	if err := s.db.AutoMigrate(
		&domain.Object{},
		&domain.Attachment{},
		&domain.Package{},
		&domain.SyncStatus{},
	); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}

	statements := []string{
		`CREATE INDEX IF NOT EXISTS idx_museum_packages_sip_filename_trgm
			ON museum_packages USING GIN (sip_filename gin_trgm_ops)`,
		`CREATE INDEX IF NOT EXISTS idx_museum_objects_title_trgm
			ON museum_objects USING GIN (title gin_trgm_ops)`,
		`CREATE INDEX IF NOT EXISTS idx_museum_objects_freeze_reason_trgm
			ON museum_objects USING GIN (freeze_reason gin_trgm_ops)`,
		`CREATE INDEX IF NOT EXISTS idx_museum_packages_created_date
			ON museum_packages (created_date)`,
		`CREATE INDEX IF NOT EXISTS idx_museum_packages_museum_object_id
			ON museum_packages (museum_object_id)`,
		`CREATE INDEX IF NOT EXISTS idx_museum_objects_latest_package_id
			ON museum_objects (latest_package_id)`,
		`CREATE INDEX IF NOT EXISTS idx_museum_objects_frozen
			ON museum_objects (frozen)`,
	}
	for _, stmt := range statements {
		if err := s.db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}
