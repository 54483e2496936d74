package jobs

import (
	"testing"
	"time"

	"github.com/finnish-heritage-agency/passari-workflow/internal/domain"
)

func TestSipDates_FirstSubmission(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	current := &domain.Package{CreatedDate: created}

	createDate, modifyDate, update := sipDates(nil, current)
	if !createDate.Equal(created) {
		t.Errorf("createDate = %v, want %v", createDate, created)
	}
	if modifyDate != nil {
		t.Errorf("modifyDate = %v, want nil", modifyDate)
	}
	if update {
		t.Error("update = true, want false for a first submission")
	}
}

func TestSipDates_Update(t *testing.T) {
	preservedCreated := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	currentCreated := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	latestPreserved := &domain.Package{CreatedDate: preservedCreated}
	current := &domain.Package{CreatedDate: currentCreated}

	createDate, modifyDate, update := sipDates(latestPreserved, current)
	if !createDate.Equal(preservedCreated) {
		t.Errorf("createDate = %v, want %v", createDate, preservedCreated)
	}
	if modifyDate == nil || !modifyDate.Equal(currentCreated) {
		t.Errorf("modifyDate = %v, want %v", modifyDate, currentCreated)
	}
	if !update {
		t.Error("update = false, want true")
	}
}
