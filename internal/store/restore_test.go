package store

import (
	"testing"

	"github.com/jvillanueva/hilot/internal/model"
)

func TestRestoreOperationSteps(t *testing.T) {
	s := NewRestoreOperationStore(setupTestDB(t))

	op, err := s.Create(1, "Full_Backup_x", []string{"patient_records", "child_records"}, true, false, true, nil)
	if err != nil {
		t.Fatalf("create restore operation: %v", err)
	}
	if op.Status != model.RestoreStatusPending {
		t.Errorf("status = %q, want pending", op.Status)
	}
	if !op.CreateBackup || op.VerifyIntegrity || !op.SelectiveRestore {
		t.Errorf("options = %v/%v/%v, want true/false/true", op.CreateBackup, op.VerifyIntegrity, op.SelectiveRestore)
	}
	if op.Progress != 0 {
		t.Errorf("progress = %d, want 0", op.Progress)
	}
	if !op.CreateBackup || op.VerifyIntegrity {
		t.Errorf("flags = create_backup=%v verify=%v", op.CreateBackup, op.VerifyIntegrity)
	}

	for _, step := range []struct {
		progress int
		label    string
	}{
		{10, "Starting restore process..."},
		{20, "Creating pre-restore backup..."},
		{60, "Restoring database..."},
	} {
		if err := s.UpdateStep(op.ID, step.progress, step.label); err != nil {
			t.Fatalf("update step: %v", err)
		}
		got, _ := s.GetByID(op.ID)
		if got.Progress != step.progress {
			t.Errorf("progress = %d, want %d", got.Progress, step.progress)
		}
		if got.CurrentStep != step.label {
			t.Errorf("current_step = %q, want %q", got.CurrentStep, step.label)
		}
		if got.Status != model.RestoreStatusInProgress {
			t.Errorf("status = %q, want in_progress", got.Status)
		}
	}

	if err := s.MarkCompleted(op.ID, "Restore completed"); err != nil {
		t.Fatalf("mark completed: %v", err)
	}
	got, _ := s.GetByID(op.ID)
	if got.Status != model.RestoreStatusCompleted || got.Progress != 100 {
		t.Errorf("got status=%q progress=%d, want completed/100", got.Status, got.Progress)
	}
	if got.CompletedAt == nil {
		t.Error("completed_at not set")
	}
}

func TestRestoreProgressMonotonic(t *testing.T) {
	s := NewRestoreOperationStore(setupTestDB(t))

	op, _ := s.Create(1, "b", []string{"patient_records"}, false, false, false, nil)
	if err := s.UpdateStep(op.ID, 60, "Restoring database..."); err != nil {
		t.Fatalf("update step: %v", err)
	}
	// An out-of-order lower write must not move progress backwards.
	if err := s.UpdateStep(op.ID, 40, "Verifying backup integrity..."); err != nil {
		t.Fatalf("update step: %v", err)
	}
	got, _ := s.GetByID(op.ID)
	if got.Progress != 60 {
		t.Errorf("progress = %d, want 60", got.Progress)
	}
}

func TestRestoreMarkFailedResetsProgress(t *testing.T) {
	s := NewRestoreOperationStore(setupTestDB(t))

	op, _ := s.Create(1, "b", []string{"patient_records"}, false, false, false, nil)
	s.UpdateStep(op.ID, 60, "Restoring database...")

	if err := s.MarkFailed(op.ID, "apply restore failed"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	got, _ := s.GetByID(op.ID)
	if got.Status != model.RestoreStatusFailed {
		t.Errorf("status = %q, want failed", got.Status)
	}
	if got.Progress != 0 {
		t.Errorf("progress = %d, want 0", got.Progress)
	}
	if got.ErrorMessage != "apply restore failed" {
		t.Errorf("error_message = %q", got.ErrorMessage)
	}
	if got.CompletedAt == nil {
		t.Error("completed_at not set on failure")
	}
}

func TestRestoreHistorySurvivesBackupDelete(t *testing.T) {
	db := setupTestDB(t)
	backups := NewBackupRecordStore(db)
	restores := NewRestoreOperationStore(db)

	rec, _ := backups.Create("b", model.BackupTypeFull, []string{"patient_records"}, "s3", false, false, nil)
	op, _ := restores.Create(rec.ID, rec.Name, rec.Modules, false, false, false, nil)

	if err := backups.Delete(rec.ID); err != nil {
		t.Fatalf("delete backup: %v", err)
	}
	got, err := restores.GetByID(op.ID)
	if err != nil {
		t.Fatalf("get restore: %v", err)
	}
	if got == nil {
		t.Fatal("restore history lost after backup delete")
	}
	if got.BackupName != "b" {
		t.Errorf("backup_name = %q", got.BackupName)
	}
}
