package backup

import (
	"context"
	"fmt"
	"strings"

	"github.com/jvillanueva/hilot/internal/model"
)

// Restore step labels and their progress values. Progress only moves
// forward on a running operation; a failed run ends at exactly 0 and a
// completed run at exactly 100.
const (
	stepStarting  = "Starting restore process..."
	stepPreBackup = "Creating pre-restore backup..."
	stepVerifying = "Verifying backup integrity..."
	stepRestoring = "Restoring database..."
	stepCompleted = "Restore completed"

	progressStarting  = 10
	progressPreBackup = 20
	progressVerifying = 40
	progressRestoring = 60
)

// Restore validates preconditions, records a RestoreOperation, and runs the
// restore synchronously. The target backup's own status is never mutated:
// this orchestrator only reads it.
func (m *Manager) Restore(ctx context.Context, backupID int64, opts RestoreOptions, restoredBy *int64) (*model.RestoreOperation, error) {
	op, record, err := m.beginRestore(backupID, opts, restoredBy)
	if err != nil {
		return nil, err
	}
	defer m.unlock(backupID)

	m.runRestore(ctx, op, record, restoredBy)
	return m.restores.GetByID(op.ID)
}

// beginRestore checks preconditions and creates the pending operation while
// holding the backup's advisory lock. Precondition violations surface before
// any state is written.
func (m *Manager) beginRestore(backupID int64, opts RestoreOptions, restoredBy *int64) (*model.RestoreOperation, *model.BackupRecord, error) {
	record, err := m.backups.GetByID(backupID)
	if err != nil {
		return nil, nil, &InfrastructureError{Op: "load backup record", Err: err}
	}
	if record == nil {
		return nil, nil, &NotFoundError{Kind: "backup", ID: backupID}
	}
	if record.Status != model.BackupStatusCompleted {
		return nil, nil, &InvalidStateError{Message: "Cannot restore from incomplete backup"}
	}

	if !m.tryLock(backupID) {
		return nil, nil, &InvalidStateError{Message: "another operation is already running against this backup"}
	}

	// The module set is snapshotted from the backup at request time.
	op, err := m.restores.Create(record.ID, record.Name, record.Modules, opts.CreateBackup, opts.VerifyIntegrity, opts.SelectiveRestore, restoredBy)
	if err != nil {
		m.unlock(backupID)
		return nil, nil, &InfrastructureError{Op: "persist restore operation", Err: err}
	}
	return op, record, nil
}

// runRestore executes the step sequence. All failures terminate the
// operation as failed with progress 0; nothing propagates.
func (m *Manager) runRestore(ctx context.Context, op *model.RestoreOperation, record *model.BackupRecord, restoredBy *int64) {
	m.logger.Info("restore started", "operation", op.ID, "backup", record.ID, "modules", op.ModulesRestored)

	m.step(op.ID, progressStarting, stepStarting)

	if op.CreateBackup {
		m.step(op.ID, progressPreBackup, stepPreBackup)
		pre, err := m.CreateBackup(ctx, "", AllModules(), CreateOptions{Compress: true, Encrypt: true, Verify: true}, restoredBy)
		if err != nil {
			m.failRestore(op.ID, fmt.Errorf("pre-restore backup failed: %w", err))
			return
		}
		if pre.Status != model.BackupStatusCompleted {
			m.failRestore(op.ID, fmt.Errorf("pre-restore backup failed: %s", pre.ErrorMessage))
			return
		}
		// Re-fetch the target; only its status may be read, never written.
		record, err = m.backups.GetByID(record.ID)
		if err != nil || record == nil {
			m.failRestore(op.ID, fmt.Errorf("backup record disappeared during restore"))
			return
		}
	}

	if op.VerifyIntegrity {
		m.step(op.ID, progressVerifying, stepVerifying)
		result, err := m.verifyRecord(ctx, record)
		if err != nil {
			m.failRestore(op.ID, err)
			return
		}
		if !result.Valid {
			m.failRestore(op.ID, &IntegrityError{Expected: record.Checksum, Actual: "corrupted artifact"})
			return
		}
	}

	m.step(op.ID, progressRestoring, stepRestoring)
	if err := m.applyArtifact(ctx, record, op.ModulesRestored); err != nil {
		m.failRestore(op.ID, err)
		return
	}

	if err := m.restores.MarkCompleted(op.ID, stepCompleted); err != nil {
		m.logger.Error("mark restore completed", "operation", op.ID, "error", err)
	}
	m.emit(Event{Kind: "restore", ID: op.ID, Status: string(model.RestoreStatusCompleted), Progress: 100, Step: stepCompleted})
	m.logger.Info("restore completed", "operation", op.ID, "backup", record.ID)
}

// applyArtifact downloads the artifact, reverses the archive transforms in
// upload order, and applies the dump filtered to the selected modules.
func (m *Manager) applyArtifact(ctx context.Context, record *model.BackupRecord, modules []string) error {
	storage, err := m.remote()
	if err != nil {
		return err
	}
	artifact, err := storage.Download(ctx, record.RemoteKey)
	if err != nil {
		return err
	}

	if record.Encrypted {
		artifact, err = Decrypt(artifact, m.passphrase())
		if err != nil {
			return &InfrastructureError{Op: "decrypt artifact", Err: err}
		}
	}
	if record.Compressed {
		artifact, err = Decompress(artifact)
		if err != nil {
			return &InfrastructureError{Op: "decompress artifact", Err: err}
		}
	}

	if err := Apply(ctx, m.db, artifact, modules); err != nil {
		return &InfrastructureError{Op: "apply restore", Err: err}
	}
	return nil
}

func (m *Manager) step(opID int64, progress int, label string) {
	if err := m.restores.UpdateStep(opID, progress, label); err != nil {
		m.logger.Error("update restore step", "operation", opID, "error", err)
	}
	m.emit(Event{Kind: "restore", ID: opID, Status: string(model.RestoreStatusInProgress), Progress: progress, Step: label})
}

func (m *Manager) failRestore(opID int64, err error) {
	m.logger.Error("restore failed", "operation", opID, "error", err)
	if uerr := m.restores.MarkFailed(opID, userMessage(err)); uerr != nil {
		m.logger.Error("mark restore failed", "operation", opID, "error", uerr)
	}
	m.emit(Event{Kind: "restore", ID: opID, Status: string(model.RestoreStatusFailed), Error: userMessage(err)})
}

// RestoreMessage builds the user-facing completion message. Selective
// restores list the restored modules and note that everything else was
// preserved.
func RestoreMessage(op *model.RestoreOperation) string {
	switch op.Status {
	case model.RestoreStatusCompleted:
		if IsFullSet(op.ModulesRestored) {
			return "Database restored successfully."
		}
		return fmt.Sprintf("Database restored successfully. Restored modules: %s. All other data was preserved.",
			strings.Join(DisplayNames(op.ModulesRestored), ", "))
	case model.RestoreStatusFailed:
		return "Restore failed: " + op.ErrorMessage
	default:
		return op.CurrentStep
	}
}
