package errors

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"hrdocs/internal/types"
)

func TestErrorManager(t *testing.T) {
	tempDir := t.TempDir()

	em, err := NewErrorManager(tempDir)
	if err != nil {
		t.Fatalf("Failed to create error manager: %v", err)
	}

	cause := types.NewDocError(types.ErrEncoding, "PDF failed validation", nil)
	if err := em.RecordError("work-certificate", "forms/1234.json", cause); err != nil {
		t.Fatalf("Failed to record error: %v", err)
	}

	id := RecordID("work-certificate", "forms/1234.json")
	record, ok := em.GetError(id)
	if !ok {
		t.Fatal("Error record not found")
	}
	if record.Stage != StageEncoding {
		t.Errorf("Expected stage encoding, got %s", record.Stage)
	}
	if record.Code != types.ErrEncoding {
		t.Errorf("Expected code %s, got %s", types.ErrEncoding, record.Code)
	}
	if !record.CanRetry {
		t.Error("Encoding failures should be retryable")
	}

	if err := em.IncrementRetry(id); err != nil {
		t.Fatalf("Failed to increment retry: %v", err)
	}
	record, _ = em.GetError(id)
	if record.RetryCount != 1 {
		t.Errorf("Expected retry count 1, got %d", record.RetryCount)
	}

	// Recording again keeps the retry count.
	if err := em.RecordError("work-certificate", "forms/1234.json", cause); err != nil {
		t.Fatalf("Failed to record error: %v", err)
	}
	record, _ = em.GetError(id)
	if record.RetryCount != 1 {
		t.Errorf("Expected retry count to survive, got %d", record.RetryCount)
	}

	if err := em.RemoveError(id); err != nil {
		t.Fatalf("Failed to remove error: %v", err)
	}
	if records := em.ListErrors(); len(records) != 0 {
		t.Errorf("Expected 0 error records, got %d", len(records))
	}
}

func TestErrorManager_ValidationNotRetryable(t *testing.T) {
	em, err := NewErrorManager(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create error manager: %v", err)
	}

	cause := types.NewFieldError("matricule", "required field is missing")
	if err := em.RecordError("leave-request", "req-1", cause); err != nil {
		t.Fatalf("Failed to record error: %v", err)
	}

	record, ok := em.GetError(RecordID("leave-request", "req-1"))
	if !ok {
		t.Fatal("Error record not found")
	}
	if record.CanRetry {
		t.Error("Validation failures should not be retryable")
	}
	if record.Field != "matricule" {
		t.Errorf("Expected field matricule, got %q", record.Field)
	}
	if len(em.ListRetryable()) != 0 {
		t.Error("Expected no retryable records")
	}
}

func TestErrorManager_NilCause(t *testing.T) {
	em, err := NewErrorManager(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create error manager: %v", err)
	}
	if err := em.RecordError("leave-request", "x", nil); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(em.ListErrors()) != 0 {
		t.Error("A nil cause should not be journaled")
	}
}

func TestErrorManagerPersistence(t *testing.T) {
	tempDir := t.TempDir()

	em1, err := NewErrorManager(tempDir)
	if err != nil {
		t.Fatalf("Failed to create error manager: %v", err)
	}
	for i := 0; i < 3; i++ {
		cause := types.NewDocError(types.ErrArchive, "upload failed", nil)
		if err := em1.RecordError("mission-order", fmt.Sprintf("in%d", i), cause); err != nil {
			t.Fatalf("Failed to record error: %v", err)
		}
	}

	em2, err := NewErrorManager(tempDir)
	if err != nil {
		t.Fatalf("Failed to create second error manager: %v", err)
	}
	records := em2.ListErrors()
	if len(records) != 3 {
		t.Fatalf("Expected 3 error records, got %d", len(records))
	}
	for i, record := range records {
		if want := RecordID("mission-order", fmt.Sprintf("in%d", i)); record.ID != want {
			t.Errorf("Record %d: expected %s, got %s", i, want, record.ID)
		}
		if record.Stage != StageArchive {
			t.Errorf("Expected stage archive, got %s", record.Stage)
		}
	}

	if _, err := os.Stat(filepath.Join(tempDir, JournalFileName)); err != nil {
		t.Errorf("Journal file missing: %v", err)
	}

	if err := em2.ClearAll(); err != nil {
		t.Fatalf("Failed to clear: %v", err)
	}
	if len(em2.ListErrors()) != 0 {
		t.Error("Expected an empty journal")
	}
}

func TestErrorManager_CorruptFile(t *testing.T) {
	tempDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tempDir, JournalFileName), []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewErrorManager(tempDir); err == nil {
		t.Error("Expected an error for a corrupt journal")
	}
}

func TestExportRetryInputs(t *testing.T) {
	tempDir := t.TempDir()
	em, err := NewErrorManager(tempDir)
	if err != nil {
		t.Fatalf("Failed to create error manager: %v", err)
	}

	_ = em.RecordError("leave-request", "b.json", types.NewDocError(types.ErrEncoding, "x", nil))
	_ = em.RecordError("mission-order", "b.json", types.NewDocError(types.ErrArchive, "x", nil))
	_ = em.RecordError("leave-request", "a.json", types.NewDocError(types.ErrFontRegistration, "x", nil))
	_ = em.RecordError("leave-request", "c.json", types.NewDocError(types.ErrLayoutOverflow, "x", nil))

	out := filepath.Join(tempDir, "retry.txt")
	if err := em.ExportRetryInputs(out); err != nil {
		t.Fatalf("Failed to export: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if strings.Join(lines, ",") != "a.json,b.json" {
		t.Errorf("Unexpected retry inputs: %q", lines)
	}
}

func TestStageOf(t *testing.T) {
	tests := []struct {
		code types.ErrorCode
		want ErrorStage
	}{
		{types.ErrValidation, StageValidation},
		{types.ErrUnknownKind, StageValidation},
		{types.ErrFontRegistration, StageFont},
		{types.ErrLayoutOverflow, StageLayout},
		{types.ErrEncoding, StageEncoding},
		{types.ErrFinalized, StageEncoding},
		{types.ErrArchive, StageArchive},
	}
	for _, tt := range tests {
		if got := StageOf(types.NewDocError(tt.code, "x", nil)); got != tt.want {
			t.Errorf("StageOf(%s) = %s, want %s", tt.code, got, tt.want)
		}
	}
	if got := StageOf(fmt.Errorf("plain")); got != StageUnknown {
		t.Errorf("Expected unknown stage, got %s", got)
	}
}

func TestGetStageDisplayName(t *testing.T) {
	if got := GetStageDisplayName(StageLayout); got != "Mise en page" {
		t.Errorf("Unexpected display name %q", got)
	}
	if got := GetStageDisplayName("other"); got != "other" {
		t.Errorf("Unknown stages should display as is, got %q", got)
	}
}
