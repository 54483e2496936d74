package domain

import (
	"time"

	"gorm.io/gorm"
)

// sentinelMinDate is the coalesce target for null modification dates in
// the SQL formulation of the update branch, so the "same modification
// date" check treats null as equal only to null. It must sort before any
// real created/modified date a CMS could produce.
const sentinelMinDate = "1970-01-01"

// PreservationPending implements the predicate from spec.md §4.1 in
// memory, given an Object with its LatestPackage preloaded (nil if none).
// now, p (preservation delay) and u (update delay) are always passed in
// explicitly; nothing here reads a mutable global.
func PreservationPending(o *Object, now time.Time, p, u time.Duration) bool {
	if o.Frozen {
		return false
	}
	if o.MetadataHash == nil || o.AttachmentMetadataHash == nil {
		return false
	}

	l := o.LatestPackage
	if l == nil {
		return o.CreatedDate == nil || o.CreatedDate.Before(now.Add(-p))
	}

	if l.Cancelled {
		return true
	}

	if !datesEqualNullSafe(l.ObjectModifiedDate, o.ModifiedDate) {
		withinDelay := l.ObjectModifiedDate == nil || l.ObjectModifiedDate.Before(now.Add(-u))
		hashesChanged := !stringsEqualNullSafe(l.MetadataHash, o.MetadataHash) ||
			!stringsEqualNullSafe(l.AttachmentMetadataHash, o.AttachmentMetadataHash)
		return withinDelay && hashesChanged
	}
	return false
}

// datesEqualNullSafe treats null as equal only to null, per spec.md §9.
func datesEqualNullSafe(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func stringsEqualNullSafe(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// FilterPreservationPending restricts a query to eligible objects, via a
// left join against the latest package with null-safe equality expressed
// through a coalesce to sentinelMinDate. ExcludePreservationPending is
// its exact complement, so for every object the two partitions are
// disjoint and complete (spec.md §8).
func FilterPreservationPending(db *gorm.DB, now time.Time, p, u time.Duration) *gorm.DB {
	return eligibilityBase(db, now, p, u, true)
}

func ExcludePreservationPending(db *gorm.DB, now time.Time, p, u time.Duration) *gorm.DB {
	return eligibilityBase(db, now, p, u, false)
}

// eligibilityBase builds the single left-joined query both partitions
// share, flipping only the outermost boolean so the two predicates are
// always exact negations of one another.
func eligibilityBase(db *gorm.DB, now time.Time, p, u time.Duration, wantPending bool) *gorm.DB {
	preservationBoundary := now.Add(-p)
	updateBoundary := now.Add(-u)

	notFrozen := "museum_objects.frozen = false"
	hasMetadata := "museum_objects.metadata_hash IS NOT NULL AND museum_objects.attachment_metadata_hash IS NOT NULL"

	firstTime := "lp.id IS NULL AND (museum_objects.created_date IS NULL OR museum_objects.created_date < ?)"
	retry := "lp.id IS NOT NULL AND lp.cancelled = true"
	update := `lp.id IS NOT NULL AND lp.cancelled = false AND
		COALESCE(lp.object_modified_date, ?) IS DISTINCT FROM COALESCE(museum_objects.modified_date, ?) AND
		(lp.object_modified_date IS NULL OR lp.object_modified_date < ?) AND
		(lp.metadata_hash IS DISTINCT FROM museum_objects.metadata_hash OR
		 lp.attachment_metadata_hash IS DISTINCT FROM museum_objects.attachment_metadata_hash)`

	pendingExpr := "(" + notFrozen + ") AND (" + hasMetadata + ") AND ((" +
		firstTime + ") OR (" + retry + ") OR (" + update + "))"

	q := db.Model(&Object{}).
		Joins("LEFT JOIN museum_packages lp ON lp.id = museum_objects.latest_package_id")

	if wantPending {
		return q.Where(pendingExpr, preservationBoundary, sentinelMinDate, sentinelMinDate, updateBoundary)
	}
	return q.Where("NOT ("+pendingExpr+")", preservationBoundary, sentinelMinDate, sentinelMinDate, updateBoundary)
}
