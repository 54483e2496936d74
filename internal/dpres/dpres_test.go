package dpres

import (
	"testing"
	"time"
)

func TestDedupeBySIPFilename_KeepsNewestMTime(t *testing.T) {
	older := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

	entries := []reportEntry{
		{SIPFilename: "sip-1", Accepted: false, ReportMTime: older, Transfer: "t1"},
		{SIPFilename: "sip-1", Accepted: true, ReportMTime: newer, Transfer: "t2"},
	}

	got := dedupeBySIPFilename(entries)
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
	if !got["sip-1"].Accepted || got["sip-1"].Transfer != "t2" {
		t.Fatalf("expected the newer (accepted) report to win, got %+v", got["sip-1"])
	}
}

func TestDedupeBySIPFilename_DistinctSIPsIndependent(t *testing.T) {
	now := time.Now()
	entries := []reportEntry{
		{SIPFilename: "sip-1", Accepted: true, ReportMTime: now},
		{SIPFilename: "sip-2", Accepted: false, ReportMTime: now},
	}

	got := dedupeBySIPFilename(entries)
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
}

func TestDedupeBySIPFilename_EqualMTimeKeepsFirstSeen(t *testing.T) {
	same := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	entries := []reportEntry{
		{SIPFilename: "sip-1", Accepted: true, ReportMTime: same, Transfer: "first"},
		{SIPFilename: "sip-1", Accepted: false, ReportMTime: same, Transfer: "second"},
	}

	got := dedupeBySIPFilename(entries)
	if got["sip-1"].Transfer != "first" {
		t.Fatalf("expected tie to keep the first-seen report, got %+v", got["sip-1"])
	}
}
