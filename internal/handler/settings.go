package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/jvillanueva/hilot/internal/backup"
	"github.com/jvillanueva/hilot/internal/store"
)

type SettingsHandler struct {
	settingsStore *store.SettingsStore
	manager       *backup.Manager
	logger        *slog.Logger
}

func NewSettingsHandler(ss *store.SettingsStore, m *backup.Manager, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{settingsStore: ss, manager: m, logger: logger.With("component", "settings")}
}

func (h *SettingsHandler) GetStorage(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settingsStore.GetS3Settings()
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "failed to load storage settings")
		return
	}
	// The secret never leaves the server; report only whether it is set.
	if settings["s3_secret_key"] != "" {
		settings["s3_secret_key"] = "********"
	}
	writeJSON(w, http.StatusOK, settings)
}

type storageSettingsRequest struct {
	Endpoint  string `json:"s3_endpoint"`
	Bucket    string `json:"s3_bucket"`
	Region    string `json:"s3_region"`
	AccessKey string `json:"s3_access_key"`
	SecretKey string `json:"s3_secret_key"`
	Prefix    string `json:"s3_prefix"`
}

// UpdateStorage persists the S3 settings and hot-reloads the backup
// manager's remote client.
func (h *SettingsHandler) UpdateStorage(w http.ResponseWriter, r *http.Request) {
	var req storageSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if req.Bucket == "" {
		errorJSON(w, http.StatusBadRequest, "s3_bucket is required")
		return
	}

	pairs := map[string]string{
		"s3_endpoint": req.Endpoint,
		"s3_bucket":   req.Bucket,
		"s3_region":   req.Region,
		"s3_prefix":   req.Prefix,
	}
	if req.AccessKey != "" {
		pairs["s3_access_key"] = req.AccessKey
	}
	if req.SecretKey != "" && req.SecretKey != "********" {
		pairs["s3_secret_key"] = req.SecretKey
	}
	for key, value := range pairs {
		if err := h.settingsStore.Set(key, value); err != nil {
			h.logger.Error("save storage setting", "key", key, "error", err)
			errorJSON(w, http.StatusInternalServerError, "failed to save settings")
			return
		}
	}

	saved, err := h.settingsStore.GetS3Settings()
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "failed to reload settings")
		return
	}
	h.manager.UpdateS3Config(backup.S3Config{
		Endpoint:  saved["s3_endpoint"],
		Bucket:    saved["s3_bucket"],
		Region:    saved["s3_region"],
		AccessKey: saved["s3_access_key"],
		SecretKey: saved["s3_secret_key"],
		Prefix:    saved["s3_prefix"],
	})

	h.logger.Info("storage settings updated", "bucket", req.Bucket)
	w.WriteHeader(http.StatusNoContent)
}

func (h *SettingsHandler) GetBackupSchedule(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settingsStore.GetBackupSettings()
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "failed to load backup settings")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

type backupScheduleRequest struct {
	Enabled       bool `json:"enabled"`
	ScheduleHour  int  `json:"schedule_hour"`
	RetentionDays int  `json:"retention_days"`
}

func (h *SettingsHandler) UpdateBackupSchedule(w http.ResponseWriter, r *http.Request) {
	var req backupScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if req.ScheduleHour < 0 || req.ScheduleHour > 23 {
		errorJSON(w, http.StatusBadRequest, "schedule_hour must be between 0 and 23")
		return
	}
	if req.RetentionDays < 0 {
		errorJSON(w, http.StatusBadRequest, "retention_days must not be negative")
		return
	}

	enabled := "false"
	if req.Enabled {
		enabled = "true"
	}
	pairs := map[string]string{
		"backup_enabled":        enabled,
		"backup_schedule_hour":  strconv.Itoa(req.ScheduleHour),
		"backup_retention_days": strconv.Itoa(req.RetentionDays),
	}
	for key, value := range pairs {
		if err := h.settingsStore.Set(key, value); err != nil {
			h.logger.Error("save backup setting", "key", key, "error", err)
			errorJSON(w, http.StatusInternalServerError, "failed to save settings")
			return
		}
	}

	w.WriteHeader(http.StatusNoContent)
}
