package queue

import "testing"

func TestJobIDRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		stage string
		id    int64
	}{
		{StageDownloadObject, 1},
		{StageCreateSIP, 42},
		{StageSubmitSIP, 0},
		{StageConfirmSIP, 123456789},
	} {
		jobID := JobID(tc.stage, tc.id)
		got, err := JobIDToObjectID(jobID)
		if err != nil {
			t.Fatalf("JobIDToObjectID(%q) error: %v", jobID, err)
		}
		if got != tc.id {
			t.Errorf("JobIDToObjectID(%q) = %d, want %d", jobID, got, tc.id)
		}
	}
}

func TestJobIDToObjectID_Malformed(t *testing.T) {
	for _, jobID := range []string{"", "download_object_", "noSeparator"} {
		if _, err := JobIDToObjectID(jobID); err == nil {
			t.Errorf("JobIDToObjectID(%q) expected error, got none", jobID)
		}
	}
}
