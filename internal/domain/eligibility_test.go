package domain

import (
	"testing"
	"time"
)

func ptrTime(t time.Time) *time.Time { return &t }
func ptrStr(s string) *string       { return &s }

func TestPreservationPending_FirstTime_BoundaryBehavior(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := 30 * 24 * time.Hour

	cases := []struct {
		name    string
		created *time.Time
		want    bool
	}{
		{"created one second inside delay is not pending", ptrTime(now.Add(-p + time.Second)), false},
		{"created one second past delay is pending", ptrTime(now.Add(-p - time.Second)), true},
		{"nil created_date is pending immediately", nil, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := &Object{
				CreatedDate:            tc.created,
				MetadataHash:           ptrStr("h1"),
				AttachmentMetadataHash: ptrStr(""),
			}
			if got := PreservationPending(o, now, p, p); got != tc.want {
				t.Errorf("PreservationPending() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestPreservationPending_NilAttachmentHashNeverPending(t *testing.T) {
	now := time.Now()
	o := &Object{
		CreatedDate:  ptrTime(now.Add(-365 * 24 * time.Hour)),
		MetadataHash: ptrStr("h1"),
	}
	if PreservationPending(o, now, time.Hour, time.Hour) {
		t.Fatal("object with nil attachment_metadata_hash must never be pending")
	}
}

func TestPreservationPending_Retry_CancelledIgnoresDelays(t *testing.T) {
	now := time.Now()
	o := &Object{
		Frozen:                 false,
		MetadataHash:           ptrStr("h1"),
		AttachmentMetadataHash: ptrStr("a1"),
		ModifiedDate:           ptrTime(now),
		LatestPackage: &Package{
			Cancelled:          true,
			ObjectModifiedDate: ptrTime(now),
			MetadataHash:       ptrStr("h1"),
			AttachmentMetadataHash: ptrStr("a1"),
		},
	}
	if !PreservationPending(o, now, 365*24*time.Hour, 365*24*time.Hour) {
		t.Fatal("a cancelled latest package must make the object pending regardless of delays")
	}
}

func TestPreservationPending_UpdateScenario(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	u := 30 * 24 * time.Hour

	base := func(modified *time.Time) *Object {
		return &Object{
			CreatedDate:            ptrTime(now.Add(-90 * 24 * time.Hour)),
			ModifiedDate:           modified,
			MetadataHash:           ptrStr("h2"),
			AttachmentMetadataHash: ptrStr("a1"),
			LatestPackage: &Package{
				Preserved:              true,
				ObjectModifiedDate:     ptrTime(now.Add(-50 * 24 * time.Hour)),
				MetadataHash:           ptrStr("h1"),
				AttachmentMetadataHash: ptrStr("a1"),
			},
		}
	}

	o := base(ptrTime(now.Add(-15 * 24 * time.Hour)))
	if !PreservationPending(o, now, u, u) {
		t.Fatal("expected update-eligible object to be pending")
	}

	o2 := base(ptrTime(now.Add(-50 * 24 * time.Hour)))
	if PreservationPending(o2, now, u, u) {
		t.Fatal("matching object_modified_date must not be pending")
	}
}

func TestPreservationPending_MetadataOnlyChangeAfterPreserve(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	u := 30 * 24 * time.Hour
	snapshot := now.Add(-40 * 24 * time.Hour)
	modified := now.Add(-35 * 24 * time.Hour)

	o := &Object{
		ModifiedDate:           &modified,
		MetadataHash:           ptrStr("h2"),
		AttachmentMetadataHash: ptrStr("a1"),
		LatestPackage: &Package{
			Preserved:              true,
			ObjectModifiedDate:     &snapshot,
			MetadataHash:           ptrStr("h1"),
			AttachmentMetadataHash: ptrStr("a1"),
		},
	}
	if !PreservationPending(o, now, u, u) {
		t.Fatal("a metadata_hash-only change after U elapses should make the object pending")
	}
}

func TestPreservationPending_Frozen(t *testing.T) {
	now := time.Now()
	o := &Object{
		Frozen:                 true,
		MetadataHash:           ptrStr("h1"),
		AttachmentMetadataHash: ptrStr(""),
	}
	if PreservationPending(o, now, time.Hour, time.Hour) {
		t.Fatal("frozen object must never be pending")
	}
}

// TestPreservationPending_OpenQuestion_NullLatestModifiedDate documents the decision recorded in
// DESIGN.md for spec.md §9's open question: when the latest package's
// object_modified_date is null but the object's modified_date is not,
// the two are treated as distinct (not null-safe-equal to each other),
// and the null object_modified_date satisfies the "within delay" branch
// unconditionally, so the update branch can fire.
func TestPreservationPending_OpenQuestion_NullLatestModifiedDate(t *testing.T) {
	now := time.Now()
	modified := now.Add(-time.Hour)
	o := &Object{
		ModifiedDate:           &modified,
		MetadataHash:           ptrStr("h2"),
		AttachmentMetadataHash: ptrStr("a1"),
		LatestPackage: &Package{
			Preserved:              true,
			ObjectModifiedDate:     nil,
			MetadataHash:           ptrStr("h1"),
			AttachmentMetadataHash: ptrStr("a1"),
		},
	}
	if !PreservationPending(o, now, 365*24*time.Hour, 365*24*time.Hour) {
		t.Fatal("null latest object_modified_date with a non-null object modified_date and changed hash must be pending")
	}
}
