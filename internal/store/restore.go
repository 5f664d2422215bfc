package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jvillanueva/hilot/internal/model"
)

type RestoreOperationStore struct {
	db *sql.DB
}

func NewRestoreOperationStore(db *sql.DB) *RestoreOperationStore {
	return &RestoreOperationStore{db: db}
}

const restoreCols = `id, backup_id, backup_name, modules_restored, status, progress, current_step,
	create_backup, verify_integrity, selective_restore, error_message, restored_by, restored_at, completed_at`

func scanRestore(scanner interface{ Scan(...any) error }) (*model.RestoreOperation, error) {
	var op model.RestoreOperation
	var modules string
	var errMsg sql.NullString
	var restoredBy sql.NullInt64
	var completedAt sql.NullTime
	var createBackup, verifyIntegrity, selectiveRestore int

	err := scanner.Scan(
		&op.ID, &op.BackupID, &op.BackupName, &modules, &op.Status, &op.Progress, &op.CurrentStep,
		&createBackup, &verifyIntegrity, &selectiveRestore, &errMsg, &restoredBy, &op.RestoredAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	if modules != "" {
		op.ModulesRestored = strings.Split(modules, ",")
	}
	op.CreateBackup = createBackup != 0
	op.VerifyIntegrity = verifyIntegrity != 0
	op.SelectiveRestore = selectiveRestore != 0
	op.ErrorMessage = errMsg.String
	if restoredBy.Valid {
		op.RestoredBy = &restoredBy.Int64
	}
	if completedAt.Valid {
		op.CompletedAt = &completedAt.Time
	}
	return &op, nil
}

// Create persists a new restore operation in pending status with the module
// set snapshotted from the backup at request time.
func (s *RestoreOperationStore) Create(backupID int64, backupName string, modules []string, createBackup, verifyIntegrity, selectiveRestore bool, restoredBy *int64) (*model.RestoreOperation, error) {
	var restorer sql.NullInt64
	if restoredBy != nil {
		restorer = sql.NullInt64{Int64: *restoredBy, Valid: true}
	}

	result, err := s.db.Exec(
		`INSERT INTO restore_operations (backup_id, backup_name, modules_restored, status, create_backup, verify_integrity, selective_restore, restored_by, restored_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		backupID, backupName, strings.Join(modules, ","), model.RestoreStatusPending,
		boolInt(createBackup), boolInt(verifyIntegrity), boolInt(selectiveRestore), restorer, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("create restore operation: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *RestoreOperationStore) GetByID(id int64) (*model.RestoreOperation, error) {
	row := s.db.QueryRow(`SELECT `+restoreCols+` FROM restore_operations WHERE id = ?`, id)
	op, err := scanRestore(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get restore operation %d: %w", id, err)
	}
	return op, nil
}

func (s *RestoreOperationStore) List(limit int) ([]model.RestoreOperation, error) {
	rows, err := s.db.Query(`SELECT `+restoreCols+` FROM restore_operations ORDER BY restored_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list restore operations: %w", err)
	}
	defer rows.Close()
	return collectRestores(rows)
}

// ListByBackup returns restore history for one backup. The history survives
// deletion of the backup itself.
func (s *RestoreOperationStore) ListByBackup(backupID int64) ([]model.RestoreOperation, error) {
	rows, err := s.db.Query(`SELECT `+restoreCols+` FROM restore_operations WHERE backup_id = ? ORDER BY restored_at DESC`, backupID)
	if err != nil {
		return nil, fmt.Errorf("list restores for backup %d: %w", backupID, err)
	}
	defer rows.Close()
	return collectRestores(rows)
}

func collectRestores(rows *sql.Rows) ([]model.RestoreOperation, error) {
	var ops []model.RestoreOperation
	for rows.Next() {
		op, err := scanRestore(rows)
		if err != nil {
			return nil, fmt.Errorf("scan restore operation: %w", err)
		}
		ops = append(ops, *op)
	}
	return ops, rows.Err()
}

// UpdateStep advances a running operation to the given progress and step
// label. Progress never moves backwards: MAX() guards against out-of-order
// writes keeping the monotonicity invariant.
func (s *RestoreOperationStore) UpdateStep(id int64, progress int, step string) error {
	_, err := s.db.Exec(
		`UPDATE restore_operations SET status = ?, progress = MAX(progress, ?), current_step = ? WHERE id = ?`,
		model.RestoreStatusInProgress, progress, step, id,
	)
	if err != nil {
		return fmt.Errorf("update restore step: %w", err)
	}
	return nil
}

// MarkCompleted finishes the operation at exactly 100.
func (s *RestoreOperationStore) MarkCompleted(id int64, step string) error {
	_, err := s.db.Exec(
		`UPDATE restore_operations SET status = ?, progress = 100, current_step = ?, completed_at = ? WHERE id = ?`,
		model.RestoreStatusCompleted, step, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("mark restore completed: %w", err)
	}
	return nil
}

// MarkFailed terminates the operation with progress reset to 0. Failure is
// still a terminal timestamp, so completed_at is set.
func (s *RestoreOperationStore) MarkFailed(id int64, errorMsg string) error {
	_, err := s.db.Exec(
		`UPDATE restore_operations SET status = ?, progress = 0, error_message = ?, completed_at = ? WHERE id = ?`,
		model.RestoreStatusFailed, errorMsg, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("mark restore failed: %w", err)
	}
	return nil
}
