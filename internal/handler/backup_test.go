package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jvillanueva/hilot/internal/backup"
	"github.com/jvillanueva/hilot/internal/database"
	"github.com/jvillanueva/hilot/internal/model"
	"github.com/jvillanueva/hilot/internal/store"
)

// stubStorage is an in-memory backup.RemoteStorage for handler tests.
type stubStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newStubStorage() *stubStorage {
	return &stubStorage{objects: make(map[string][]byte)}
}

func (s *stubStorage) TestConnection(ctx context.Context) error { return nil }

func (s *stubStorage) Quota(ctx context.Context) (backup.Quota, error) {
	return backup.Quota{}, nil
}

func (s *stubStorage) Upload(ctx context.Context, key string, data []byte) (backup.UploadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = append([]byte(nil), data...)
	return backup.UploadResult{Key: key, Link: "stub://" + key, SizeBytes: int64(len(data))}, nil
}

func (s *stubStorage) Download(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("no such key %s", key)
	}
	return append([]byte(nil), data...), nil
}

func (s *stubStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *stubStorage) Location() string { return "stub" }

type backupTestEnv struct {
	mux     *http.ServeMux
	db      *sql.DB
	backups *store.BackupRecordStore
	manager *backup.Manager
}

func newBackupTestEnv(t *testing.T) *backupTestEnv {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	backups := store.NewBackupRecordStore(db)
	restores := store.NewRestoreOperationStore(db)
	settings := store.NewSettingsStore(db)

	logger := slog.New(slog.DiscardHandler)
	m := backup.NewManager(backup.Config{Passphrase: "test"}, db, backups, restores, settings, nil, logger)
	m.SetStorage(newStubStorage())

	h := NewBackupHandler(m, backups, restores, logger)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/backups", h.Create)
	mux.HandleFunc("GET /api/backups/{id}/progress", h.Progress)
	mux.HandleFunc("POST /api/restores", h.Restore)
	mux.HandleFunc("GET /api/restores/{id}/progress", h.RestoreProgress)

	return &backupTestEnv{mux: mux, db: db, backups: backups, manager: m}
}

func (e *backupTestEnv) post(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, req)
	return w
}

func (e *backupTestEnv) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, req)
	return w
}

func decodeResult(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestBackupCreateAndProgress(t *testing.T) {
	e := newBackupTestEnv(t)

	w := e.post(t, "/api/backups", map[string]any{
		"modules": []string{"patient_records", "prenatal_monitoring", "child_records", "immunization_records", "vaccine_management"},
		"options": []string{"compress", "verify"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var res backupResult
	decodeResult(t, w, &res)
	if !res.Success || res.BackupID == 0 {
		t.Fatalf("result = %+v", res)
	}

	w = e.get(t, fmt.Sprintf("/api/backups/%d/progress", res.BackupID))
	if w.Code != http.StatusOK {
		t.Fatalf("progress status = %d", w.Code)
	}
	var prog progressResponse
	decodeResult(t, w, &prog)
	if prog.Status != "completed" || prog.Progress != 100 {
		t.Errorf("progress = %+v, want completed/100", prog)
	}
}

func TestBackupCreateRejectsUnknownOption(t *testing.T) {
	e := newBackupTestEnv(t)

	w := e.post(t, "/api/backups", map[string]any{
		"modules": []string{"patient_records"},
		"options": []string{"shred"},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestBackupCreateRejectsUnknownModule(t *testing.T) {
	e := newBackupTestEnv(t)

	w := e.post(t, "/api/backups", map[string]any{
		"modules": []string{"dental_records"},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	var res backupResult
	decodeResult(t, w, &res)
	if res.Success {
		t.Error("success must be false on validation failure")
	}
}

// vanishingStorage deletes every backup row before failing the upload,
// simulating a concurrent delete racing a failed run.
type vanishingStorage struct {
	db *sql.DB
}

func (s *vanishingStorage) TestConnection(ctx context.Context) error { return nil }

func (s *vanishingStorage) Quota(ctx context.Context) (backup.Quota, error) {
	return backup.Quota{}, nil
}

func (s *vanishingStorage) Upload(ctx context.Context, key string, data []byte) (backup.UploadResult, error) {
	if _, err := s.db.Exec(`DELETE FROM backups`); err != nil {
		return backup.UploadResult{}, err
	}
	return backup.UploadResult{}, fmt.Errorf("connection reset")
}

func (s *vanishingStorage) Download(ctx context.Context, key string) ([]byte, error) {
	return nil, fmt.Errorf("no such key %s", key)
}

func (s *vanishingStorage) Delete(ctx context.Context, key string) error { return nil }

func (s *vanishingStorage) Location() string { return "stub" }

func TestBackupCreateRecordDeletedDuringFailure(t *testing.T) {
	e := newBackupTestEnv(t)
	e.manager.SetStorage(&vanishingStorage{db: e.db})

	w := e.post(t, "/api/backups", map[string]any{
		"modules": []string{"patient_records"},
	})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500, body %s", w.Code, w.Body.String())
	}
	var res backupResult
	decodeResult(t, w, &res)
	if res.Success {
		t.Error("success must be false when the record vanished")
	}
}

func TestRestoreRequiresConfirmation(t *testing.T) {
	e := newBackupTestEnv(t)

	w := e.post(t, "/api/restores", map[string]any{
		"backup_id":       1,
		"confirm_restore": false,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	var res restoreResult
	decodeResult(t, w, &res)
	if res.Success || !strings.Contains(res.Message, "confirm_restore") {
		t.Errorf("result = %+v", res)
	}
}

func TestRestoreIncompleteBackupConflict(t *testing.T) {
	e := newBackupTestEnv(t)

	rec, err := e.backups.Create("Pending", model.BackupTypeFull,
		[]string{"patient_records"}, "stub", false, false, nil)
	if err != nil {
		t.Fatalf("seed record: %v", err)
	}

	w := e.post(t, "/api/restores", map[string]any{
		"backup_id":       rec.ID,
		"confirm_restore": true,
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
	var res restoreResult
	decodeResult(t, w, &res)
	if res.Success {
		t.Error("success must be false")
	}
	if res.Message != "Cannot restore from incomplete backup" {
		t.Errorf("message = %q", res.Message)
	}
}

func TestRestoreUnknownBackupNotFound(t *testing.T) {
	e := newBackupTestEnv(t)

	w := e.post(t, "/api/restores", map[string]any{
		"backup_id":       9999,
		"confirm_restore": true,
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestRestoreDispatchAndPoll(t *testing.T) {
	e := newBackupTestEnv(t)

	w := e.post(t, "/api/backups", map[string]any{
		"modules": []string{"patient_records"},
		"options": []string{"compress", "encrypt"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create backup status = %d, body %s", w.Code, w.Body.String())
	}
	var created backupResult
	decodeResult(t, w, &created)

	w = e.post(t, "/api/restores", map[string]any{
		"backup_id":       created.BackupID,
		"confirm_restore": true,
		"restore_options": []string{"verify_integrity"},
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("restore status = %d, body %s", w.Code, w.Body.String())
	}
	var dispatched restoreResult
	decodeResult(t, w, &dispatched)
	if !dispatched.Success || dispatched.RestoreID == 0 {
		t.Fatalf("result = %+v", dispatched)
	}

	deadline := time.Now().Add(10 * time.Second)
	for {
		w = e.get(t, fmt.Sprintf("/api/restores/%d/progress", dispatched.RestoreID))
		if w.Code != http.StatusOK {
			t.Fatalf("progress status = %d", w.Code)
		}
		var prog progressResponse
		decodeResult(t, w, &prog)

		switch prog.Status {
		case "completed":
			if prog.Progress != 100 {
				t.Errorf("completed progress = %d, want 100", prog.Progress)
			}
			return
		case "failed":
			t.Fatalf("restore failed: %+v", prog)
		}
		if time.Now().After(deadline) {
			t.Fatalf("restore did not finish: %+v", prog)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
