package backup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/jvillanueva/hilot/internal/model"
	"github.com/jvillanueva/hilot/internal/store"
)

// staleAfter is how long an in_progress record may go without updates before
// the reaper fails it.
const staleAfter = 30 * time.Minute

// maxConcurrentRestores bounds the background restore pool.
const maxConcurrentRestores = 1

// Config holds backup manager configuration.
type Config struct {
	S3         S3Config
	Passphrase string
}

// Event is emitted on every backup/restore state change, for websocket
// broadcast and push notification fan-out.
type Event struct {
	Kind     string `json:"kind"` // "backup" or "restore"
	ID       int64  `json:"id"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Step     string `json:"step,omitempty"`
	Error    string `json:"error,omitempty"`
}

// EventCallback is called whenever a backup or restore changes state.
type EventCallback func(Event)

// CreateOptions are the flags accepted by CreateBackup.
type CreateOptions struct {
	Compress bool
	Encrypt  bool
	Verify   bool
}

// RestoreOptions are the flags accepted by Restore.
type RestoreOptions struct {
	CreateBackup     bool
	VerifyIntegrity  bool
	SelectiveRestore bool
}

// Manager orchestrates backup and restore against the record stores and the
// remote storage client. It is the sole writer of status, progress, and
// error fields on both record kinds.
type Manager struct {
	mu       sync.RWMutex
	cfg      Config
	storage  RemoteStorage
	callback EventCallback
	logger   *slog.Logger

	db       *sql.DB
	backups  *store.BackupRecordStore
	restores *store.RestoreOperationStore
	settings *store.SettingsStore

	// locks holds per-backup advisory locks so at most one in-flight
	// operation mutates a given record at a time.
	locks   map[int64]struct{}
	lockMu  sync.Mutex
	restSem *semaphore.Weighted

	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a backup manager. Remote storage stays nil until a
// complete S3 config is supplied, and every operation that needs it fails
// with an InfrastructureError.
func NewManager(cfg Config, db *sql.DB, backups *store.BackupRecordStore, restores *store.RestoreOperationStore, settings *store.SettingsStore, callback EventCallback, logger *slog.Logger) *Manager {
	m := &Manager{
		cfg:      cfg,
		db:       db,
		backups:  backups,
		restores: restores,
		settings: settings,
		callback: callback,
		logger:   logger,
		locks:    make(map[int64]struct{}),
		restSem:  semaphore.NewWeighted(maxConcurrentRestores),
	}
	if cfg.S3.Configured() {
		m.storage = NewS3Storage(cfg.S3)
	}
	return m
}

// UpdateS3Config hot-reloads the remote storage configuration.
func (m *Manager) UpdateS3Config(s3cfg S3Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.S3 = s3cfg
	if s3cfg.Configured() {
		m.storage = NewS3Storage(s3cfg)
	} else {
		m.storage = nil
	}
}

// SetStorage injects a remote storage implementation; used by tests.
func (m *Manager) SetStorage(s RemoteStorage) {
	m.mu.Lock()
	m.storage = s
	m.mu.Unlock()
}

func (m *Manager) remote() (RemoteStorage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.storage == nil {
		return nil, &InfrastructureError{Op: "remote storage", Err: fmt.Errorf("not configured")}
	}
	return m.storage, nil
}

// Storage returns the current remote storage client, or nil when not
// configured. Used by the storage status handler.
func (m *Manager) Storage() RemoteStorage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.storage
}

func (m *Manager) emit(ev Event) {
	if m.callback != nil {
		m.callback(ev)
	}
}

// tryLock acquires the advisory lock for a backup record. Returns false if
// another operation already holds it.
func (m *Manager) tryLock(backupID int64) bool {
	m.lockMu.Lock()
	defer m.lockMu.Unlock()
	if _, held := m.locks[backupID]; held {
		return false
	}
	m.locks[backupID] = struct{}{}
	return true
}

func (m *Manager) unlock(backupID int64) {
	m.lockMu.Lock()
	delete(m.locks, backupID)
	m.lockMu.Unlock()
}

// CreateBackup runs the full backup sequence: validate, persist a pending
// record, dump, optionally compress then encrypt, upload, finish. Any
// failure after the record exists is recorded on it; no record is ever left
// in_progress.
func (m *Manager) CreateBackup(ctx context.Context, name string, modules []string, opts CreateOptions, createdBy *int64) (*model.BackupRecord, error) {
	modules, err := ValidateModules(modules)
	if err != nil {
		return nil, err
	}

	storage, err := m.remote()
	if err != nil {
		return nil, err
	}

	typ := model.BackupTypeSelective
	if IsFullSet(modules) {
		typ = model.BackupTypeFull
	}
	if name == "" {
		stamp := time.Now().UTC().Format("2006-01-02_15-04-05")
		if typ == model.BackupTypeFull {
			name = "Full_Backup_" + stamp
		} else {
			name = "Selective_Backup_" + stamp
		}
	}

	record, err := m.backups.Create(name, typ, modules, storage.Location(), opts.Encrypt, opts.Compress, createdBy)
	if err != nil {
		return nil, &InfrastructureError{Op: "persist backup record", Err: err}
	}

	if !m.tryLock(record.ID) {
		// A freshly created record cannot be contended in practice.
		return nil, &InvalidStateError{Message: "backup record is locked by another operation"}
	}
	defer m.unlock(record.ID)

	if err := m.runBackup(ctx, record, opts, storage); err != nil {
		m.failBackup(record.ID, err)
		return m.backups.GetByID(record.ID)
	}

	return m.backups.GetByID(record.ID)
}

func (m *Manager) runBackup(ctx context.Context, record *model.BackupRecord, opts CreateOptions, storage RemoteStorage) error {
	if err := m.backups.MarkInProgress(record.ID); err != nil {
		return &InfrastructureError{Op: "update backup status", Err: err}
	}
	m.emit(Event{Kind: "backup", ID: record.ID, Status: string(model.BackupStatusInProgress)})

	m.logger.Info("backup started", "id", record.ID, "name", record.Name, "type", record.Type, "modules", record.Modules)

	artifact, err := Dump(ctx, m.db, record.Modules)
	if err != nil {
		return &InfrastructureError{Op: "database dump", Err: err}
	}

	if opts.Compress {
		artifact, err = Compress(artifact)
		if err != nil {
			return &InfrastructureError{Op: "compress artifact", Err: err}
		}
	}

	if opts.Encrypt {
		salt, err := GenerateSalt()
		if err != nil {
			return &InfrastructureError{Op: "encrypt artifact", Err: err}
		}
		artifact, err = Encrypt(artifact, m.passphrase(), salt)
		if err != nil {
			return &InfrastructureError{Op: "encrypt artifact", Err: err}
		}
	}

	checksum := Checksum(artifact)
	remoteName := fmt.Sprintf("%s-%s%s", record.Name, uuid.NewString()[:8], artifactExt(opts))

	result, err := storage.Upload(ctx, remoteName, artifact)
	if err != nil {
		return err
	}

	if err := m.backups.SetUploadResult(record.ID, result.Key, result.Link, checksum, result.SizeBytes); err != nil {
		return &InfrastructureError{Op: "persist upload result", Err: err}
	}

	verified := false
	if opts.Verify {
		stored, err := storage.Download(ctx, result.Key)
		if err != nil {
			return err
		}
		if Checksum(stored) != checksum {
			return &IntegrityError{Expected: checksum, Actual: Checksum(stored)}
		}
		verified = true
	}

	if err := m.backups.MarkCompleted(record.ID, verified); err != nil {
		return &InfrastructureError{Op: "update backup status", Err: err}
	}
	m.emit(Event{Kind: "backup", ID: record.ID, Status: string(model.BackupStatusCompleted), Progress: 100})

	m.logger.Info("backup completed", "id", record.ID, "size", result.SizeBytes, "verified", verified)
	return nil
}

func (m *Manager) failBackup(id int64, err error) {
	m.logger.Error("backup failed", "id", id, "error", err)
	if uerr := m.backups.MarkFailed(id, userMessage(err)); uerr != nil {
		m.logger.Error("mark backup failed", "id", id, "error", uerr)
	}
	m.emit(Event{Kind: "backup", ID: id, Status: string(model.BackupStatusFailed), Error: userMessage(err)})
}

func (m *Manager) passphrase() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.Passphrase
}

func artifactExt(opts CreateOptions) string {
	ext := ".sql"
	if opts.Compress {
		ext += ".gz"
	}
	if opts.Encrypt {
		ext += ".enc"
	}
	return ext
}

// userMessage keeps infrastructure detail out of user-facing fields. The
// full error chain goes to the log instead.
func userMessage(err error) string {
	if ie, ok := err.(*InfrastructureError); ok {
		return ie.Summary()
	}
	return err.Error()
}

// SizeEstimate is the advisory output of EstimateSize.
type SizeEstimate struct {
	Bytes int64  `json:"bytes"`
	Human string `json:"human"`
}

// EstimateSize sums per-module row counts against rough per-row sizes. It
// has no side effects and the result is approximate and uncompressed.
func (m *Manager) EstimateSize(ctx context.Context, modules []string) (SizeEstimate, error) {
	modules, err := ValidateModules(modules)
	if err != nil {
		return SizeEstimate{}, err
	}
	total, err := estimateTables(ctx, m.db, TablesFor(modules))
	if err != nil {
		return SizeEstimate{}, &InfrastructureError{Op: "size estimate", Err: err}
	}
	return SizeEstimate{Bytes: total, Human: humanize.Bytes(uint64(total))}, nil
}

// Delete removes the remote artifact first, then the record. If the remote
// delete fails the record is kept, so no blob is orphaned silently.
func (m *Manager) Delete(ctx context.Context, id int64) error {
	record, err := m.backups.GetByID(id)
	if err != nil {
		return &InfrastructureError{Op: "load backup record", Err: err}
	}
	if record == nil {
		return &NotFoundError{Kind: "backup", ID: id}
	}

	if !m.tryLock(id) {
		return &InvalidStateError{Message: "backup is in use by another operation"}
	}
	defer m.unlock(id)

	if record.RemoteKey != "" {
		storage, err := m.remote()
		if err != nil {
			return err
		}
		if err := storage.Delete(ctx, record.RemoteKey); err != nil {
			return err
		}
	}

	if err := m.backups.Delete(id); err != nil {
		if err == sql.ErrNoRows {
			return &NotFoundError{Kind: "backup", ID: id}
		}
		return &InfrastructureError{Op: "delete backup record", Err: err}
	}
	m.logger.Info("backup deleted", "id", id, "name", record.Name)
	return nil
}

// VerifyResult is the outcome of an integrity check.
type VerifyResult struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// VerifyIntegrity recomputes the stored artifact's checksum and compares it
// to the one captured at backup time. Pure check: no state is mutated.
func (m *Manager) VerifyIntegrity(ctx context.Context, id int64) (VerifyResult, error) {
	record, err := m.backups.GetByID(id)
	if err != nil {
		return VerifyResult{}, &InfrastructureError{Op: "load backup record", Err: err}
	}
	if record == nil {
		return VerifyResult{}, &NotFoundError{Kind: "backup", ID: id}
	}
	return m.verifyRecord(ctx, record)
}

func (m *Manager) verifyRecord(ctx context.Context, record *model.BackupRecord) (VerifyResult, error) {
	if record.RemoteKey == "" || record.Checksum == "" {
		return VerifyResult{Valid: false, Error: "backup has no stored artifact to verify"}, nil
	}
	storage, err := m.remote()
	if err != nil {
		return VerifyResult{}, err
	}
	stored, err := storage.Download(ctx, record.RemoteKey)
	if err != nil {
		return VerifyResult{}, err
	}
	if actual := Checksum(stored); actual != record.Checksum {
		return VerifyResult{Valid: false, Error: (&IntegrityError{Expected: record.Checksum, Actual: actual}).Error()}, nil
	}
	return VerifyResult{Valid: true}, nil
}

// Start begins the scheduled backup loop and the stale-record reaper.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	m.mu.Unlock()

	if n, err := m.backups.SweepStale(staleAfter); err != nil {
		m.logger.Error("sweep stale backups", "error", err)
	} else if n > 0 {
		m.logger.Warn("failed orphaned in-progress backups", "count", n)
	}

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(1 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.checkSchedule(ctx)
			}
		}
	}()
}

// Stop gracefully stops the scheduler.
func (m *Manager) Stop() {
	m.mu.RLock()
	cancel := m.cancel
	done := m.done
	m.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (m *Manager) checkSchedule(ctx context.Context) {
	now := time.Now().UTC()

	settings, err := m.settings.GetBackupSettings()
	if err != nil {
		return
	}
	if settings["backup_enabled"] != "true" {
		return
	}

	hour, _ := strconv.Atoi(settings["backup_schedule_hour"])
	if now.Hour() != hour || now.Minute() != 0 {
		return
	}

	if _, err := m.CreateBackup(ctx, "", AllModules(), CreateOptions{Compress: true, Encrypt: true, Verify: true}, nil); err != nil {
		m.logger.Error("scheduled backup failed", "error", err)
	}

	if _, err := m.backups.SweepStale(staleAfter); err != nil {
		m.logger.Error("sweep stale backups", "error", err)
	}

	retentionDays, _ := strconv.Atoi(settings["backup_retention_days"])
	if retentionDays <= 0 {
		retentionDays = 30
	}
	if err := m.Cleanup(ctx, retentionDays); err != nil {
		m.logger.Error("backup cleanup failed", "error", err)
	}
}

// Cleanup deletes completed backups older than the retention period,
// remote artifact first.
func (m *Manager) Cleanup(ctx context.Context, retentionDays int) error {
	records, err := m.backups.List(500)
	if err != nil {
		return fmt.Errorf("list backups: %w", err)
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	for _, r := range records {
		if !r.Terminal() || r.CreatedAt.After(cutoff) {
			continue
		}
		if err := m.Delete(ctx, r.ID); err != nil {
			m.logger.Error("retention delete failed", "id", r.ID, "error", err)
		}
	}
	return nil
}
