package backup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/jvillanueva/hilot/internal/database"
	"github.com/jvillanueva/hilot/internal/model"
	"github.com/jvillanueva/hilot/internal/store"
)

// mockStorage is an in-memory RemoteStorage with injectable failures.
type mockStorage struct {
	mu          sync.Mutex
	objects     map[string][]byte
	uploadErr   error
	downloadErr error
	deleteErr   error
}

func newMockStorage() *mockStorage {
	return &mockStorage{objects: make(map[string][]byte)}
}

func (m *mockStorage) TestConnection(ctx context.Context) error { return nil }

func (m *mockStorage) Quota(ctx context.Context) (Quota, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := Quota{}
	for _, data := range m.objects {
		q.UsedBytes += int64(len(data))
		q.Objects++
	}
	return q, nil
}

func (m *mockStorage) Upload(ctx context.Context, key string, data []byte) (UploadResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.uploadErr != nil {
		return UploadResult{}, &InfrastructureError{Op: "upload to remote storage", Err: m.uploadErr}
	}
	m.objects[key] = append([]byte(nil), data...)
	return UploadResult{Key: key, Link: "mock://" + key, SizeBytes: int64(len(data))}, nil
}

func (m *mockStorage) Download(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.downloadErr != nil {
		return nil, &InfrastructureError{Op: "download from remote storage", Err: m.downloadErr}
	}
	data, ok := m.objects[key]
	if !ok {
		return nil, &InfrastructureError{Op: "download from remote storage", Err: fmt.Errorf("no such key %s", key)}
	}
	return append([]byte(nil), data...), nil
}

func (m *mockStorage) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return &InfrastructureError{Op: "delete remote artifact", Err: m.deleteErr}
	}
	delete(m.objects, key)
	return nil
}

func (m *mockStorage) Location() string { return "mock" }

func (m *mockStorage) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

// tamperAll flips a byte in every stored object.
func (m *mockStorage) tamperAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, data := range m.objects {
		if len(data) > 0 {
			data[len(data)-1] ^= 0xff
			m.objects[key] = data
		}
	}
}

type managerFixture struct {
	m        *Manager
	storage  *mockStorage
	db       *sql.DB
	backups  *store.BackupRecordStore
	restores *store.RestoreOperationStore
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	backups := store.NewBackupRecordStore(db)
	restores := store.NewRestoreOperationStore(db)
	settings := store.NewSettingsStore(db)

	storage := newMockStorage()
	logger := slog.New(slog.DiscardHandler)
	m := NewManager(Config{Passphrase: "test passphrase"}, db, backups, restores, settings, nil, logger)
	m.SetStorage(storage)

	return &managerFixture{m: m, storage: storage, db: db, backups: backups, restores: restores}
}

func (f *managerFixture) seedPatient(t *testing.T, first, last string) {
	t.Helper()
	seedPatient(t, f.db, first, last)
}

func TestCreateBackupFull(t *testing.T) {
	f := newManagerFixture(t)
	f.seedPatient(t, "Maria", "Santos")

	rec, err := f.m.CreateBackup(context.Background(), "", AllModules(),
		CreateOptions{Compress: true, Encrypt: true, Verify: true}, nil)
	if err != nil {
		t.Fatalf("create backup: %v", err)
	}

	if rec.Status != model.BackupStatusCompleted {
		t.Fatalf("status = %q (%s), want completed", rec.Status, rec.ErrorMessage)
	}
	if rec.Type != model.BackupTypeFull {
		t.Errorf("type = %q, want full", rec.Type)
	}
	if !strings.HasPrefix(rec.Name, "Full_Backup_") {
		t.Errorf("name = %q, want Full_Backup_ prefix", rec.Name)
	}
	if !strings.HasSuffix(rec.RemoteKey, ".sql.gz.enc") {
		t.Errorf("remote key = %q, want .sql.gz.enc suffix", rec.RemoteKey)
	}
	if rec.Checksum == "" || rec.SizeBytes == 0 {
		t.Errorf("upload result not recorded: checksum=%q size=%d", rec.Checksum, rec.SizeBytes)
	}
	if !rec.Verified {
		t.Error("verify option should mark the record verified")
	}
	if f.storage.count() != 1 {
		t.Errorf("remote objects = %d, want 1", f.storage.count())
	}
}

func TestCreateBackupSelectivePlain(t *testing.T) {
	f := newManagerFixture(t)
	f.seedPatient(t, "Maria", "Santos")

	rec, err := f.m.CreateBackup(context.Background(), "", []string{ModulePatientRecords}, CreateOptions{}, nil)
	if err != nil {
		t.Fatalf("create backup: %v", err)
	}

	if rec.Type != model.BackupTypeSelective {
		t.Errorf("type = %q, want selective", rec.Type)
	}
	if !strings.HasPrefix(rec.Name, "Selective_Backup_") {
		t.Errorf("name = %q, want Selective_Backup_ prefix", rec.Name)
	}
	if rec.Encrypted || rec.Compressed {
		t.Error("plain backup must not be flagged encrypted or compressed")
	}

	// Without transforms the stored artifact is readable SQL.
	artifact, err := f.storage.Download(context.Background(), rec.RemoteKey)
	if err != nil {
		t.Fatalf("download artifact: %v", err)
	}
	if !strings.HasPrefix(string(artifact), dumpHeader) {
		t.Error("artifact is not a plain sql_dump")
	}
	if strings.Contains(string(artifact), `"children"`) {
		t.Error("selective artifact must not include unselected tables")
	}
}

func TestCreateBackupUnknownModule(t *testing.T) {
	f := newManagerFixture(t)

	_, err := f.m.CreateBackup(context.Background(), "", []string{"dental_records"}, CreateOptions{}, nil)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}

	recs, err := f.backups.List(10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("rejected request must not persist a record, got %d", len(recs))
	}
}

func TestCreateBackupUploadFailure(t *testing.T) {
	f := newManagerFixture(t)
	f.storage.uploadErr = errors.New("connection reset")

	rec, err := f.m.CreateBackup(context.Background(), "", AllModules(), CreateOptions{}, nil)
	if err != nil {
		t.Fatalf("failed run should still return the record, got err %v", err)
	}
	if rec.Status != model.BackupStatusFailed {
		t.Fatalf("status = %q, want failed", rec.Status)
	}
	if rec.ErrorMessage != "upload to remote storage failed" {
		t.Errorf("error message = %q, want short user summary", rec.ErrorMessage)
	}
	if strings.Contains(rec.ErrorMessage, "connection reset") {
		t.Error("infrastructure detail must not reach the user-facing field")
	}
}

func TestCreateBackupStorageUnconfigured(t *testing.T) {
	f := newManagerFixture(t)
	f.m.SetStorage(nil)

	_, err := f.m.CreateBackup(context.Background(), "", AllModules(), CreateOptions{}, nil)
	var ierr *InfrastructureError
	if !errors.As(err, &ierr) {
		t.Fatalf("err = %v, want InfrastructureError", err)
	}
}

func TestDeleteRemovesRemoteFirst(t *testing.T) {
	f := newManagerFixture(t)
	rec, err := f.m.CreateBackup(context.Background(), "", AllModules(), CreateOptions{}, nil)
	if err != nil || rec.Status != model.BackupStatusCompleted {
		t.Fatalf("create backup: %v (%s)", err, rec.Status)
	}

	if err := f.m.Delete(context.Background(), rec.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if f.storage.count() != 0 {
		t.Error("remote artifact not removed")
	}
	got, err := f.backups.GetByID(rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Error("record not removed")
	}

	var nferr *NotFoundError
	if err := f.m.Delete(context.Background(), rec.ID); !errors.As(err, &nferr) {
		t.Errorf("second delete err = %v, want NotFoundError", err)
	}
}

func TestDeleteKeepsRecordWhenRemoteFails(t *testing.T) {
	f := newManagerFixture(t)
	rec, _ := f.m.CreateBackup(context.Background(), "", AllModules(), CreateOptions{}, nil)

	f.storage.deleteErr = errors.New("forbidden")
	if err := f.m.Delete(context.Background(), rec.ID); err == nil {
		t.Fatal("delete should surface the remote failure")
	}
	got, _ := f.backups.GetByID(rec.ID)
	if got == nil {
		t.Error("record must survive when the remote delete fails")
	}
}

func TestVerifyIntegrity(t *testing.T) {
	f := newManagerFixture(t)
	f.seedPatient(t, "Maria", "Santos")
	rec, _ := f.m.CreateBackup(context.Background(), "", AllModules(), CreateOptions{Compress: true}, nil)

	res, err := f.m.VerifyIntegrity(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !res.Valid {
		t.Fatalf("fresh artifact reported invalid: %s", res.Error)
	}

	f.storage.tamperAll()

	res, err = f.m.VerifyIntegrity(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("verify tampered: %v", err)
	}
	if res.Valid {
		t.Error("tampered artifact reported valid")
	}
	if !strings.Contains(res.Error, "checksum mismatch") {
		t.Errorf("error = %q, want checksum mismatch", res.Error)
	}
}

func TestRestoreRejectsIncompleteBackup(t *testing.T) {
	f := newManagerFixture(t)
	rec, err := f.backups.Create("Pending", model.BackupTypeFull, AllModules(), "mock", false, false, nil)
	if err != nil {
		t.Fatalf("create record: %v", err)
	}

	_, err = f.m.Restore(context.Background(), rec.ID, RestoreOptions{}, nil)
	var serr *InvalidStateError
	if !errors.As(err, &serr) {
		t.Fatalf("err = %v, want InvalidStateError", err)
	}
	if serr.Message != "Cannot restore from incomplete backup" {
		t.Errorf("message = %q", serr.Message)
	}

	ops, err := f.restores.List(10)
	if err != nil {
		t.Fatalf("list restores: %v", err)
	}
	if len(ops) != 0 {
		t.Errorf("rejected restore must not persist an operation, got %d", len(ops))
	}
}

func TestRestoreUnknownBackup(t *testing.T) {
	f := newManagerFixture(t)
	_, err := f.m.Restore(context.Background(), 999, RestoreOptions{}, nil)
	var nferr *NotFoundError
	if !errors.As(err, &nferr) {
		t.Fatalf("err = %v, want NotFoundError", err)
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	f := newManagerFixture(t)
	f.seedPatient(t, "Maria", "Santos")

	rec, err := f.m.CreateBackup(context.Background(), "", []string{ModulePatientRecords},
		CreateOptions{Compress: true, Encrypt: true}, nil)
	if err != nil || rec.Status != model.BackupStatusCompleted {
		t.Fatalf("create backup: %v (%s)", err, rec.Status)
	}

	// Diverge: drop the backed-up row, add rows in and out of scope.
	if _, err := f.db.Exec(`DELETE FROM patients`); err != nil {
		t.Fatalf("clear patients: %v", err)
	}
	seedChild(t, f.db, "Ana", "Santos")

	op, err := f.m.Restore(context.Background(), rec.ID, RestoreOptions{VerifyIntegrity: true}, nil)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if op.Status != model.RestoreStatusCompleted {
		t.Fatalf("status = %q (%s)", op.Status, op.ErrorMessage)
	}
	if op.Progress != 100 {
		t.Errorf("progress = %d, want 100", op.Progress)
	}
	if op.CurrentStep != "Restore completed" {
		t.Errorf("step = %q", op.CurrentStep)
	}
	if op.CompletedAt == nil {
		t.Error("completed_at not set")
	}

	if n := countRows(t, f.db, "patients"); n != 1 {
		t.Errorf("patients = %d, want 1 after restore", n)
	}
	// Children are outside the restored module set and must survive.
	if n := countRows(t, f.db, "children"); n != 1 {
		t.Errorf("children = %d, want 1 (preserved)", n)
	}

	msg := RestoreMessage(op)
	if !strings.Contains(msg, "Patient Records") || !strings.Contains(msg, "All other data was preserved.") {
		t.Errorf("message = %q", msg)
	}
}

// seedAllModules populates every module's tables with FK-linked rows.
func (f *managerFixture) seedAllModules(t *testing.T) map[string]int {
	t.Helper()
	stmts := []string{
		`INSERT INTO patients (first_name, last_name) VALUES ('Maria', 'Santos'), ('Josefina', 'Reyes')`,
		`INSERT INTO prenatal_records (patient_id, gravida, para) VALUES (1, 2, 1)`,
		`INSERT INTO prenatal_checkups (prenatal_id, checkup_date, weeks_gestation) VALUES (1, '2026-08-01 00:00:00', 12), (1, '2026-08-28 00:00:00', 16)`,
		`INSERT INTO children (mother_id, first_name, last_name, birth_date) VALUES (1, 'Ana', 'Santos', '2024-07-01 00:00:00')`,
		`INSERT INTO vaccines (name, doses_required, stock_on_hand) VALUES ('BCG', 1, 20)`,
		`INSERT INTO vaccine_transactions (vaccine_id, type, quantity) VALUES (1, 'received', 20), (1, 'administered', 1)`,
		`INSERT INTO immunizations (child_id, vaccine_id, dose_number, date_given) VALUES (1, 1, 1, '2024-07-02 00:00:00')`,
	}
	for _, stmt := range stmts {
		if _, err := f.db.Exec(stmt); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return map[string]int{
		"patients":             2,
		"prenatal_records":     1,
		"prenatal_checkups":    2,
		"children":             1,
		"vaccines":             1,
		"vaccine_transactions": 2,
		"immunizations":        1,
	}
}

func TestRestoreFullRoundTripAllModules(t *testing.T) {
	f := newManagerFixture(t)
	want := f.seedAllModules(t)

	rec, err := f.m.CreateBackup(context.Background(), "", AllModules(),
		CreateOptions{Compress: true, Encrypt: true, Verify: true}, nil)
	if err != nil || rec.Status != model.BackupStatusCompleted {
		t.Fatalf("create backup: %v (%s)", err, rec.Status)
	}

	// Wipe every table, child rows before their FK parents.
	for _, table := range []string{
		"immunizations", "vaccine_transactions", "prenatal_checkups",
		"prenatal_records", "children", "vaccines", "patients",
	} {
		if _, err := f.db.Exec(`DELETE FROM ` + table); err != nil {
			t.Fatalf("wipe %s: %v", table, err)
		}
		if n := countRows(t, f.db, table); n != 0 {
			t.Fatalf("%s not empty after wipe", table)
		}
	}

	op, err := f.m.Restore(context.Background(), rec.ID, RestoreOptions{VerifyIntegrity: true}, nil)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if op.Status != model.RestoreStatusCompleted {
		t.Fatalf("status = %q (%s)", op.Status, op.ErrorMessage)
	}

	for table, n := range want {
		if got := countRows(t, f.db, table); got != n {
			t.Errorf("%s = %d rows after restore, want %d", table, got, n)
		}
	}

	// FK links survive the round trip.
	var motherID int64
	if err := f.db.QueryRow(`SELECT mother_id FROM children WHERE first_name = 'Ana'`).Scan(&motherID); err != nil {
		t.Fatalf("restored child missing: %v", err)
	}
	if motherID != 1 {
		t.Errorf("mother_id = %d, want 1", motherID)
	}
}

func TestRestoreIntegrityFailureStopsBeforeApply(t *testing.T) {
	f := newManagerFixture(t)
	f.seedPatient(t, "Maria", "Santos")
	rec, _ := f.m.CreateBackup(context.Background(), "", []string{ModulePatientRecords}, CreateOptions{}, nil)

	f.seedPatient(t, "Josefina", "Reyes")
	f.storage.tamperAll()

	op, err := f.m.Restore(context.Background(), rec.ID, RestoreOptions{VerifyIntegrity: true}, nil)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if op.Status != model.RestoreStatusFailed {
		t.Fatalf("status = %q, want failed", op.Status)
	}
	if op.Progress != 0 {
		t.Errorf("progress = %d, want 0 after failure", op.Progress)
	}
	if op.CurrentStep == "Restoring database..." {
		t.Error("failed verification must not reach the restoring step")
	}
	if !strings.Contains(op.ErrorMessage, "checksum mismatch") {
		t.Errorf("error = %q", op.ErrorMessage)
	}

	// Target database untouched.
	if n := countRows(t, f.db, "patients"); n != 2 {
		t.Errorf("patients = %d, want 2 (apply never ran)", n)
	}
}

func TestRestoreCreatePreBackup(t *testing.T) {
	f := newManagerFixture(t)
	f.seedPatient(t, "Maria", "Santos")
	rec, _ := f.m.CreateBackup(context.Background(), "", AllModules(), CreateOptions{}, nil)

	op, err := f.m.Restore(context.Background(), rec.ID, RestoreOptions{CreateBackup: true}, nil)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if op.Status != model.RestoreStatusCompleted {
		t.Fatalf("status = %q (%s)", op.Status, op.ErrorMessage)
	}

	recs, err := f.backups.List(10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("backups = %d, want original plus pre-restore", len(recs))
	}
	pre := recs[0]
	if pre.ID == rec.ID {
		pre = recs[1]
	}
	if pre.Type != model.BackupTypeFull || pre.Status != model.BackupStatusCompleted {
		t.Errorf("pre-restore backup: type=%q status=%q", pre.Type, pre.Status)
	}
}

func TestRestoreEmitsProgressEvents(t *testing.T) {
	f := newManagerFixture(t)
	f.seedPatient(t, "Maria", "Santos")
	rec, _ := f.m.CreateBackup(context.Background(), "", AllModules(), CreateOptions{}, nil)

	var mu sync.Mutex
	var progress []int
	f.m.callback = func(ev Event) {
		if ev.Kind != "restore" {
			return
		}
		mu.Lock()
		progress = append(progress, ev.Progress)
		mu.Unlock()
	}

	op, err := f.m.Restore(context.Background(), rec.ID, RestoreOptions{VerifyIntegrity: true}, nil)
	if err != nil || op.Status != model.RestoreStatusCompleted {
		t.Fatalf("restore: %v (%s)", err, op.Status)
	}

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(progress); i++ {
		if progress[i] < progress[i-1] {
			t.Fatalf("progress went backwards: %v", progress)
		}
	}
	if len(progress) == 0 || progress[len(progress)-1] != 100 {
		t.Errorf("final progress event = %v, want 100", progress)
	}
}

func TestEstimateSize(t *testing.T) {
	f := newManagerFixture(t)
	f.seedPatient(t, "Maria", "Santos")
	f.seedPatient(t, "Josefina", "Reyes")

	est, err := f.m.EstimateSize(context.Background(), []string{ModulePatientRecords})
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if est.Bytes != 440 {
		t.Errorf("bytes = %d, want 2 rows x 220", est.Bytes)
	}
	if est.Human == "" {
		t.Error("human-readable size missing")
	}

	if _, err := f.m.EstimateSize(context.Background(), nil); err == nil {
		t.Error("empty module list should be rejected")
	}
}
