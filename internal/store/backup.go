package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jvillanueva/hilot/internal/model"
)

type BackupRecordStore struct {
	db *sql.DB
}

func NewBackupRecordStore(db *sql.DB) *BackupRecordStore {
	return &BackupRecordStore{db: db}
}

const backupCols = `id, name, type, format, modules, status, storage_location, remote_key, remote_link,
	checksum, encrypted, compressed, verified, size_bytes, error_message, created_by,
	started_at, completed_at, created_at, updated_at`

func scanBackup(scanner interface{ Scan(...any) error }) (*model.BackupRecord, error) {
	var b model.BackupRecord
	var modules string
	var errMsg sql.NullString
	var createdBy sql.NullInt64
	var startedAt, completedAt sql.NullTime
	var encrypted, compressed, verified int

	err := scanner.Scan(
		&b.ID, &b.Name, &b.Type, &b.Format, &modules, &b.Status, &b.StorageLocation,
		&b.RemoteKey, &b.RemoteLink, &b.Checksum, &encrypted, &compressed, &verified,
		&b.SizeBytes, &errMsg, &createdBy, &startedAt, &completedAt, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if modules != "" {
		b.Modules = strings.Split(modules, ",")
	}
	b.Encrypted = encrypted != 0
	b.Compressed = compressed != 0
	b.Verified = verified != 0
	b.ErrorMessage = errMsg.String
	if createdBy.Valid {
		b.CreatedBy = &createdBy.Int64
	}
	if startedAt.Valid {
		b.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		b.CompletedAt = &completedAt.Time
	}
	return &b, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Create persists a new backup record in pending status.
func (s *BackupRecordStore) Create(name string, typ model.BackupType, modules []string, storageLocation string, encrypted, compressed bool, createdBy *int64) (*model.BackupRecord, error) {
	now := time.Now().UTC()
	var creator sql.NullInt64
	if createdBy != nil {
		creator = sql.NullInt64{Int64: *createdBy, Valid: true}
	}

	result, err := s.db.Exec(
		`INSERT INTO backups (name, type, format, modules, status, storage_location, encrypted, compressed, created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		name, typ, model.BackupFormatSQLDump, strings.Join(modules, ","), model.BackupStatusPending,
		storageLocation, boolInt(encrypted), boolInt(compressed), creator, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create backup record: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *BackupRecordStore) GetByID(id int64) (*model.BackupRecord, error) {
	row := s.db.QueryRow(`SELECT `+backupCols+` FROM backups WHERE id = ?`, id)
	b, err := scanBackup(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get backup %d: %w", id, err)
	}
	return b, nil
}

func (s *BackupRecordStore) List(limit int) ([]model.BackupRecord, error) {
	rows, err := s.db.Query(`SELECT `+backupCols+` FROM backups ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	defer rows.Close()

	var backups []model.BackupRecord
	for rows.Next() {
		b, err := scanBackup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan backup: %w", err)
		}
		backups = append(backups, *b)
	}
	return backups, rows.Err()
}

// MarkInProgress transitions a pending record to in_progress and stamps started_at.
func (s *BackupRecordStore) MarkInProgress(id int64) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`UPDATE backups SET status = ?, started_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
		model.BackupStatusInProgress, now, now, id, model.BackupStatusPending,
	)
	if err != nil {
		return fmt.Errorf("mark backup in progress: %w", err)
	}
	return nil
}

// SetUploadResult records where the artifact landed and its checksum.
func (s *BackupRecordStore) SetUploadResult(id int64, remoteKey, remoteLink, checksum string, sizeBytes int64) error {
	_, err := s.db.Exec(
		`UPDATE backups SET remote_key = ?, remote_link = ?, checksum = ?, size_bytes = ?, updated_at = ? WHERE id = ?`,
		remoteKey, remoteLink, checksum, sizeBytes, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("set backup upload result: %w", err)
	}
	return nil
}

func (s *BackupRecordStore) MarkCompleted(id int64, verified bool) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`UPDATE backups SET status = ?, verified = ?, completed_at = ?, updated_at = ? WHERE id = ?`,
		model.BackupStatusCompleted, boolInt(verified), now, now, id,
	)
	if err != nil {
		return fmt.Errorf("mark backup completed: %w", err)
	}
	return nil
}

func (s *BackupRecordStore) MarkFailed(id int64, errorMsg string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`UPDATE backups SET status = ?, error_message = ?, completed_at = ?, updated_at = ? WHERE id = ?`,
		model.BackupStatusFailed, errorMsg, now, now, id,
	)
	if err != nil {
		return fmt.Errorf("mark backup failed: %w", err)
	}
	return nil
}

func (s *BackupRecordStore) Delete(id int64) error {
	result, err := s.db.Exec(`DELETE FROM backups WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete backup: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SweepStale fails in_progress records whose last update is older than
// maxAge. A crash mid-sequence leaves records in_progress forever otherwise.
func (s *BackupRecordStore) SweepStale(maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	result, err := s.db.Exec(
		`UPDATE backups SET status = ?, error_message = ?, completed_at = ?, updated_at = ?
		 WHERE status = ? AND updated_at < ?`,
		model.BackupStatusFailed, "backup abandoned: process interrupted", time.Now().UTC(), time.Now().UTC(),
		model.BackupStatusInProgress, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("sweep stale backups: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
