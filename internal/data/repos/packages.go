package repos

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/finnish-heritage-agency/passari-workflow/internal/domain"
	pkgerrors "github.com/finnish-heritage-agency/passari-workflow/internal/pkg/errors"
	"github.com/finnish-heritage-agency/passari-workflow/internal/pkg/dbctx"
)

type PackageRepo struct {
	db *gorm.DB
}

func NewPackageRepo(db *gorm.DB) *PackageRepo {
	return &PackageRepo{db: db}
}

// Create fails loudly (UniquenessCollisionError) if sip_filename already
// exists, per spec.md §4.3.1: identical-second creation is disallowed.
func (r *PackageRepo) Create(ctx dbctx.Context, p *domain.Package) error {
	var existing domain.Package
	err := ctx.DB(r.db).Where("sip_filename = ?", p.SIPFilename).First(&existing).Error
	switch {
	case err == nil:
		return &pkgerrors.UniquenessCollisionError{SIPFilename: p.SIPFilename}
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ctx.DB(r.db).Create(p).Error
	default:
		return err
	}
}

func (r *PackageRepo) GetByID(ctx dbctx.Context, id int64) (*domain.Package, error) {
	var p domain.Package
	if err := ctx.DB(r.db).First(&p, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PackageRepo) GetBySIPFilename(ctx dbctx.Context, sipFilename string) (*domain.Package, error) {
	var p domain.Package
	if err := ctx.DB(r.db).First(&p, "sip_filename = ?", sipFilename).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByObjectAndSIPID locates the package a stage job was handed off
// with, by (object, sip_id) rather than the (by-then-known) filename.
func (r *PackageRepo) GetByObjectAndSIPID(ctx dbctx.Context, objectID int64, sipID string) (*domain.Package, error) {
	var p domain.Package
	if err := ctx.DB(r.db).First(&p, "museum_object_id = ? AND sip_id = ?", objectID, sipID).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// LatestPreserved finds the most recently created preserved package for
// an object, used by create_sip to decide first-submission vs. update
// (spec.md §4.3.2).
func (r *PackageRepo) LatestPreserved(ctx dbctx.Context, objectID int64) (*domain.Package, error) {
	var p domain.Package
	err := ctx.DB(r.db).
		Where("museum_object_id = ? AND preserved = true", objectID).
		Order("created_date DESC").
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PackageRepo) SetPackaged(ctx dbctx.Context, id int64) error {
	return ctx.DB(r.db).Model(&domain.Package{}).Where("id = ?", id).Update("packaged", true).Error
}

func (r *PackageRepo) SetUploaded(ctx dbctx.Context, id int64) error {
	return ctx.DB(r.db).Model(&domain.Package{}).Where("id = ?", id).Update("uploaded", true).Error
}

// SetOutcome marks the package preserved or rejected, mutually
// exclusively, per spec.md §4.3.4.
func (r *PackageRepo) SetOutcome(ctx dbctx.Context, id int64, accepted bool) error {
	return ctx.DB(r.db).Model(&domain.Package{}).Where("id = ?", id).Updates(map[string]any{
		"preserved": accepted,
		"rejected":  !accepted,
	}).Error
}

func (r *PackageRepo) SetCancelled(ctx dbctx.Context, id int64, cancelled bool) error {
	return ctx.DB(r.db).Model(&domain.Package{}).Where("id = ?", id).Update("cancelled", cancelled).Error
}

// CancelNonTerminalForObjects marks cancelled=true on every non-terminal
// latest package of the given objects, for bulk freeze (spec.md §4.4).
// Returns the number of rows affected.
func (r *PackageRepo) CancelNonTerminalForObjects(ctx dbctx.Context, objectIDs []int64) (int64, error) {
	if len(objectIDs) == 0 {
		return 0, nil
	}
	tx := ctx.DB(r.db).Model(&domain.Package{}).
		Where("museum_object_id IN ? AND preserved = false AND rejected = false AND cancelled = false", objectIDs).
		Where("id IN (SELECT latest_package_id FROM museum_objects WHERE id IN ?)", objectIDs).
		Update("cancelled", true)
	return tx.RowsAffected, tx.Error
}

// LatestForObjects returns the latest Package for every object id that
// has one, keyed by object id, used by freeze/reset to inspect current
// working state before mutating it.
func (r *PackageRepo) LatestForObjects(ctx dbctx.Context, objectIDs []int64) (map[int64]*domain.Package, error) {
	if len(objectIDs) == 0 {
		return map[int64]*domain.Package{}, nil
	}
	var pkgs []*domain.Package
	err := ctx.DB(r.db).
		Joins("JOIN museum_objects ON museum_objects.latest_package_id = museum_packages.id").
		Where("museum_objects.id IN ?", objectIDs).
		Find(&pkgs).Error
	if err != nil {
		return nil, err
	}
	out := make(map[int64]*domain.Package, len(pkgs))
	for _, p := range pkgs {
		out[p.ObjectID] = p
	}
	return out, nil
}

// Delete removes a package row outright. Only the workflow-reset
// operation does this; every other mutation is an in-place update
// (spec.md §3 Lifecycles).
func (r *PackageRepo) Delete(ctx dbctx.Context, id int64) error {
	return ctx.DB(r.db).Delete(&domain.Package{}, "id = ?", id).Error
}

// ResolvedSIPFilenames returns the set of sip_filenames already marked
// preserved or rejected among packages created after since, the DPRES
// reconciler's skip-set optimization (spec.md §4.6): these are already
// persisted, so re-scanning their remote report directory is wasted work.
func (r *PackageRepo) ResolvedSIPFilenames(ctx dbctx.Context, since time.Time) (map[string]bool, error) {
	var filenames []string
	err := ctx.DB(r.db).Model(&domain.Package{}).
		Where("created_date > ? AND (preserved = true OR rejected = true)", since).
		Pluck("sip_filename", &filenames).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(filenames))
	for _, f := range filenames {
		out[f] = true
	}
	return out, nil
}

// LatestNonUploaded returns every object's latest Package that has not
// reached uploaded=true, the reset candidates per spec.md §8 scenario 6
// (a package already uploaded is left alone; only in-flight download/
// packaged-only attempts are discarded).
func (r *PackageRepo) LatestNonUploaded(ctx dbctx.Context) ([]*domain.Package, error) {
	var pkgs []*domain.Package
	err := ctx.DB(r.db).
		Joins("JOIN museum_objects ON museum_objects.latest_package_id = museum_packages.id").
		Where("museum_packages.uploaded = false").
		Find(&pkgs).Error
	if err != nil {
		return nil, err
	}
	return pkgs, nil
}
