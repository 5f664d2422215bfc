package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jvillanueva/hilot/internal/auth"
	"github.com/jvillanueva/hilot/internal/backup"
	"github.com/jvillanueva/hilot/internal/model"
	"github.com/jvillanueva/hilot/internal/store"
)

type BackupHandler struct {
	manager      *backup.Manager
	backupStore  *store.BackupRecordStore
	restoreStore *store.RestoreOperationStore
	logger       *slog.Logger
}

func NewBackupHandler(m *backup.Manager, bs *store.BackupRecordStore, rs *store.RestoreOperationStore, logger *slog.Logger) *BackupHandler {
	return &BackupHandler{
		manager:      m,
		backupStore:  bs,
		restoreStore: rs,
		logger:       logger.With("component", "backup_handler"),
	}
}

type backupResult struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	BackupID int64  `json:"backup_id,omitempty"`
}

type restoreResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	RestoreID int64  `json:"restore_id,omitempty"`
}

// statusFor maps the typed backup errors onto HTTP status codes.
// Infrastructure failures during a run are recorded on the row and reported
// through the result body, so only precondition errors reach this mapping
// with non-500 codes.
func statusFor(err error) int {
	var ve *backup.ValidationError
	var nfe *backup.NotFoundError
	var ise *backup.InvalidStateError
	var ie *backup.IntegrityError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.As(err, &nfe):
		return http.StatusNotFound
	case errors.As(err, &ise):
		return http.StatusConflict
	case errors.As(err, &ie):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type createBackupRequest struct {
	BackupName string   `json:"backup_name"`
	Modules    []string `json:"modules"`
	Options    []string `json:"options"`
}

// Create runs a backup synchronously within the request, returning the
// terminal record. Failed runs still answer 200 with success=false; the
// failure is recorded on the backup row, not lost.
func (h *BackupHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createBackupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, backupResult{Success: false, Message: "invalid JSON"})
		return
	}

	opts := backup.CreateOptions{}
	for _, o := range req.Options {
		switch o {
		case "compress":
			opts.Compress = true
		case "encrypt":
			opts.Encrypt = true
		case "verify":
			opts.Verify = true
		default:
			writeJSON(w, http.StatusBadRequest, backupResult{
				Success: false,
				Message: "options may only contain compress, encrypt, or verify",
			})
			return
		}
	}

	record, err := h.manager.CreateBackup(r.Context(), strings.TrimSpace(req.BackupName), req.Modules, opts, auth.UserIDPtr(r.Context()))
	if err != nil {
		writeJSON(w, statusFor(err), backupResult{Success: false, Message: err.Error()})
		return
	}
	if record == nil {
		// The record was deleted out from under a failed run.
		writeJSON(w, http.StatusInternalServerError, backupResult{Success: false, Message: "backup record no longer exists"})
		return
	}

	if record.Status == model.BackupStatusFailed {
		writeJSON(w, http.StatusOK, backupResult{
			Success:  false,
			Message:  record.ErrorMessage,
			BackupID: record.ID,
		})
		return
	}

	writeJSON(w, http.StatusCreated, backupResult{
		Success:  true,
		Message:  "Backup completed successfully",
		BackupID: record.ID,
	})
}

func (h *BackupHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.backupStore.List(100)
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "failed to list backups")
		return
	}
	if records == nil {
		records = []model.BackupRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *BackupHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid id")
		return
	}

	record, err := h.backupStore.GetByID(id)
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "failed to get backup")
		return
	}
	if record == nil {
		errorJSON(w, http.StatusNotFound, "backup not found")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *BackupHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := h.manager.Delete(r.Context(), id); err != nil {
		writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Estimate reports the advisory uncompressed size of a would-be backup.
func (h *BackupHandler) Estimate(w http.ResponseWriter, r *http.Request) {
	var modules []string
	if raw := r.URL.Query().Get("modules"); raw != "" {
		modules = strings.Split(raw, ",")
	}

	est, err := h.manager.EstimateSize(r.Context(), modules)
	if err != nil {
		writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, est)
}

func (h *BackupHandler) Verify(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid id")
		return
	}

	result, err := h.manager.VerifyIntegrity(r.Context(), id)
	if err != nil {
		writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type progressResponse struct {
	Status   string  `json:"status"`
	Progress int     `json:"progress"`
	Message  string  `json:"message"`
	Error    *string `json:"error"`
}

// backupProgress derives a coarse percentage: the backup row itself carries
// no step counter, only a status.
func backupProgress(status model.BackupStatus) int {
	switch status {
	case model.BackupStatusInProgress:
		return 50
	case model.BackupStatusCompleted:
		return 100
	default:
		return 0
	}
}

func (h *BackupHandler) Progress(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid id")
		return
	}

	record, err := h.backupStore.GetByID(id)
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "failed to get backup")
		return
	}
	if record == nil {
		errorJSON(w, http.StatusNotFound, "backup not found")
		return
	}

	resp := progressResponse{
		Status:   string(record.Status),
		Progress: backupProgress(record.Status),
		Message:  "Backup " + string(record.Status),
	}
	if record.ErrorMessage != "" {
		resp.Error = &record.ErrorMessage
	}
	writeJSON(w, http.StatusOK, resp)
}

type restoreRequest struct {
	BackupID       int64    `json:"backup_id"`
	RestoreOptions []string `json:"restore_options"`
	ConfirmRestore bool     `json:"confirm_restore"`
}

// Restore dispatches a background restore job. Precondition failures
// (missing backup, incomplete backup, concurrent operation) are reported
// synchronously before any job starts.
func (h *BackupHandler) Restore(w http.ResponseWriter, r *http.Request) {
	var req restoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, restoreResult{Success: false, Message: "invalid JSON"})
		return
	}

	if !req.ConfirmRestore {
		writeJSON(w, http.StatusBadRequest, restoreResult{
			Success: false,
			Message: "confirm_restore must be true; restoring overwrites current data",
		})
		return
	}

	opts := backup.RestoreOptions{}
	for _, o := range req.RestoreOptions {
		switch o {
		case "create_backup":
			opts.CreateBackup = true
		case "verify_integrity":
			opts.VerifyIntegrity = true
		case "selective_restore":
			opts.SelectiveRestore = true
		default:
			writeJSON(w, http.StatusBadRequest, restoreResult{
				Success: false,
				Message: "restore_options may only contain create_backup, verify_integrity, or selective_restore",
			})
			return
		}
	}

	op, err := h.manager.RestoreAsync(req.BackupID, opts, auth.UserIDPtr(r.Context()))
	if err != nil {
		writeJSON(w, statusFor(err), restoreResult{Success: false, Message: err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, restoreResult{
		Success:   true,
		Message:   "Restore started",
		RestoreID: op.ID,
	})
}

func (h *BackupHandler) ListRestores(w http.ResponseWriter, r *http.Request) {
	ops, err := h.restoreStore.List(100)
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "failed to list restores")
		return
	}
	if ops == nil {
		ops = []model.RestoreOperation{}
	}
	writeJSON(w, http.StatusOK, ops)
}

func (h *BackupHandler) RestoreProgress(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid id")
		return
	}

	op, err := h.restoreStore.GetByID(id)
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "failed to get restore operation")
		return
	}
	if op == nil {
		errorJSON(w, http.StatusNotFound, "restore operation not found")
		return
	}

	resp := progressResponse{
		Status:   string(op.Status),
		Progress: op.Progress,
		Message:  op.CurrentStep,
	}
	if op.Status == model.RestoreStatusCompleted {
		resp.Message = backup.RestoreMessage(op)
	}
	if op.ErrorMessage != "" {
		resp.Error = &op.ErrorMessage
	}
	writeJSON(w, http.StatusOK, resp)
}

type storageStatusResponse struct {
	Configured bool          `json:"configured"`
	Connected  bool          `json:"connected"`
	Location   string        `json:"location,omitempty"`
	Quota      *backup.Quota `json:"quota,omitempty"`
	Error      string        `json:"error,omitempty"`
}

func (h *BackupHandler) StorageStatus(w http.ResponseWriter, r *http.Request) {
	storage := h.manager.Storage()
	if storage == nil {
		writeJSON(w, http.StatusOK, storageStatusResponse{Configured: false})
		return
	}

	resp := storageStatusResponse{Configured: true, Location: storage.Location()}
	if err := storage.TestConnection(r.Context()); err != nil {
		resp.Error = err.Error()
		writeJSON(w, http.StatusOK, resp)
		return
	}
	resp.Connected = true

	quota, err := storage.Quota(r.Context())
	if err != nil {
		h.logger.Warn("storage quota", "error", err)
	} else {
		resp.Quota = &quota
	}
	writeJSON(w, http.StatusOK, resp)
}
