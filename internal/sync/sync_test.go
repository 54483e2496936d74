package sync

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func strPtr(s string) *string { return &s }

func TestCombineHashes_EmptyAttachmentSet(t *testing.T) {
	combined, ok := combineHashes(nil, map[int64]*string{})
	if !ok {
		t.Fatalf("expected ok=true for empty attachment set")
	}
	if combined != "" {
		t.Fatalf("expected empty string sentinel, got %q", combined)
	}
}

func TestCombineHashes_NullMetadataHashSkips(t *testing.T) {
	hashesByID := map[int64]*string{
		1: strPtr("aaa"),
		2: nil,
	}
	_, ok := combineHashes([]int64{1, 2}, hashesByID)
	if ok {
		t.Fatalf("expected ok=false when any attachment hash is null")
	}
}

func TestCombineHashes_UnknownAttachmentSkips(t *testing.T) {
	hashesByID := map[int64]*string{1: strPtr("aaa")}
	_, ok := combineHashes([]int64{1, 2}, hashesByID)
	if ok {
		t.Fatalf("expected ok=false when an attachment id is missing from the lookup")
	}
}

func TestCombineHashes_SortsBeforeHashing(t *testing.T) {
	hashesByID := map[int64]*string{
		1: strPtr("bbb"),
		2: strPtr("aaa"),
	}

	combined, ok := combineHashes([]int64{1, 2}, hashesByID)
	if !ok {
		t.Fatalf("expected ok=true")
	}

	sum := sha256.Sum256([]byte("aaabbb"))
	want := hex.EncodeToString(sum[:])
	if combined != want {
		t.Fatalf("expected sorted-then-hashed value %q, got %q", want, combined)
	}

	reordered, ok := combineHashes([]int64{2, 1}, hashesByID)
	if !ok || reordered != combined {
		t.Fatalf("expected attachment ordering not to affect the combined hash")
	}
}
