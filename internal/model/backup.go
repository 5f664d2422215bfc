package model

import "time"

type BackupStatus string

const (
	BackupStatusPending    BackupStatus = "pending"
	BackupStatusInProgress BackupStatus = "in_progress"
	BackupStatusCompleted  BackupStatus = "completed"
	BackupStatusFailed     BackupStatus = "failed"
)

type BackupType string

const (
	BackupTypeFull      BackupType = "full"
	BackupTypeSelective BackupType = "selective"
)

// BackupFormatSQLDump is the only artifact format currently produced.
const BackupFormatSQLDump = "sql_dump"

// BackupRecord is the persisted metadata for one backup artifact.
type BackupRecord struct {
	ID              int64        `json:"id"`
	Name            string       `json:"name"`
	Type            BackupType   `json:"type"`
	Format          string       `json:"format"`
	Modules         []string     `json:"modules"`
	Status          BackupStatus `json:"status"`
	StorageLocation string       `json:"storage_location"`
	RemoteKey       string       `json:"remote_key,omitempty"`
	RemoteLink      string       `json:"remote_link,omitempty"`
	Checksum        string       `json:"checksum,omitempty"`
	Encrypted       bool         `json:"encrypted"`
	Compressed      bool         `json:"compressed"`
	Verified        bool         `json:"verified"`
	SizeBytes       int64        `json:"size_bytes"`
	ErrorMessage    string       `json:"error_message,omitempty"`
	CreatedBy       *int64       `json:"created_by"`
	StartedAt       *time.Time   `json:"started_at,omitempty"`
	CompletedAt     *time.Time   `json:"completed_at,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// Terminal reports whether the record can no longer change status.
func (b *BackupRecord) Terminal() bool {
	return b.Status == BackupStatusCompleted || b.Status == BackupStatusFailed
}

type RestoreStatus string

const (
	RestoreStatusPending    RestoreStatus = "pending"
	RestoreStatusInProgress RestoreStatus = "in_progress"
	RestoreStatusCompleted  RestoreStatus = "completed"
	RestoreStatusFailed     RestoreStatus = "failed"
)

// RestoreOperation tracks one restore attempt against a BackupRecord.
// It references the backup by id only; deleting the backup keeps the history.
type RestoreOperation struct {
	ID               int64         `json:"id"`
	BackupID         int64         `json:"backup_id"`
	BackupName       string        `json:"backup_name"`
	ModulesRestored  []string      `json:"modules_restored"`
	Status           RestoreStatus `json:"status"`
	Progress         int           `json:"progress"`
	CurrentStep      string        `json:"current_step"`
	CreateBackup     bool          `json:"create_backup"`
	VerifyIntegrity  bool          `json:"verify_integrity"`
	SelectiveRestore bool          `json:"selective_restore"`
	ErrorMessage     string        `json:"error_message,omitempty"`
	RestoredBy       *int64        `json:"restored_by"`
	RestoredAt       time.Time     `json:"restored_at"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty"`
}
