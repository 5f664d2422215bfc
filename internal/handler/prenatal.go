package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/jvillanueva/hilot/internal/auth"
	"github.com/jvillanueva/hilot/internal/model"
	"github.com/jvillanueva/hilot/internal/store"
	"github.com/jvillanueva/hilot/internal/websocket"
)

type PrenatalHandler struct {
	prenatalStore *store.PrenatalStore
	patientStore  *store.PatientStore
	hub           *websocket.Hub
	logger        *slog.Logger
}

func NewPrenatalHandler(ps *store.PrenatalStore, pat *store.PatientStore, hub *websocket.Hub, logger *slog.Logger) *PrenatalHandler {
	return &PrenatalHandler{prenatalStore: ps, patientStore: pat, hub: hub, logger: logger}
}

func (h *PrenatalHandler) broadcast(msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}

var validRiskLevels = map[string]bool{
	"low":    true,
	"medium": true,
	"high":   true,
}

type prenatalRequest struct {
	PatientID         int64      `json:"patient_id"`
	Gravida           int        `json:"gravida"`
	Para              int        `json:"para"`
	LastMenstrualDate *time.Time `json:"last_menstrual_date"`
	ExpectedDelivery  *time.Time `json:"expected_delivery"`
	RiskLevel         string     `json:"risk_level"`
	Notes             string     `json:"notes"`
}

func (h *PrenatalHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req prenatalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if req.RiskLevel == "" {
		req.RiskLevel = "low"
	}
	if !validRiskLevels[req.RiskLevel] {
		errorJSON(w, http.StatusBadRequest, "risk_level must be low, medium, or high")
		return
	}

	patient, err := h.patientStore.GetByID(req.PatientID)
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "failed to get patient")
		return
	}
	if patient == nil {
		errorJSON(w, http.StatusBadRequest, "patient does not exist")
		return
	}

	// Expected delivery defaults to Naegele's rule from the LMP.
	if req.ExpectedDelivery == nil && req.LastMenstrualDate != nil {
		edd := req.LastMenstrualDate.AddDate(0, 0, 280)
		req.ExpectedDelivery = &edd
	}

	record, err := h.prenatalStore.Create(&model.PrenatalRecord{
		PatientID:         req.PatientID,
		Gravida:           req.Gravida,
		Para:              req.Para,
		LastMenstrualDate: req.LastMenstrualDate,
		ExpectedDelivery:  req.ExpectedDelivery,
		RiskLevel:         req.RiskLevel,
		Notes:             req.Notes,
	})
	if err != nil {
		h.logger.Error("create prenatal record", "error", err)
		errorJSON(w, http.StatusInternalServerError, "failed to create prenatal record")
		return
	}

	h.broadcast(websocket.NewMessage("prenatal", "created", record.ID))
	writeJSON(w, http.StatusCreated, record)
}

func (h *PrenatalHandler) ListByPatient(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid id")
		return
	}

	records, err := h.prenatalStore.ListByPatient(id)
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "failed to list prenatal records")
		return
	}
	if records == nil {
		records = []model.PrenatalRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *PrenatalHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid id")
		return
	}

	record, err := h.prenatalStore.GetByID(id)
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "failed to get prenatal record")
		return
	}
	if record == nil {
		errorJSON(w, http.StatusNotFound, "prenatal record not found")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// Close marks a pregnancy record inactive (delivery or transfer out).
func (h *PrenatalHandler) Close(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid id")
		return
	}

	record, err := h.prenatalStore.GetByID(id)
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "failed to get prenatal record")
		return
	}
	if record == nil {
		errorJSON(w, http.StatusNotFound, "prenatal record not found")
		return
	}

	if err := h.prenatalStore.Close(id); err != nil {
		errorJSON(w, http.StatusInternalServerError, "failed to close prenatal record")
		return
	}

	h.broadcast(websocket.NewMessage("prenatal", "closed", id))
	w.WriteHeader(http.StatusNoContent)
}

type checkupRequest struct {
	CheckupDate    *time.Time `json:"checkup_date"`
	WeeksGestation int        `json:"weeks_gestation"`
	WeightKg       float64    `json:"weight_kg"`
	BloodPressure  string     `json:"blood_pressure"`
	FundalHeightCm float64    `json:"fundal_height_cm"`
	FetalHeartRate int        `json:"fetal_heart_rate"`
	Findings       string     `json:"findings"`
	NextVisit      *time.Time `json:"next_visit"`
}

func (h *PrenatalHandler) AddCheckup(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid id")
		return
	}

	record, err := h.prenatalStore.GetByID(id)
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "failed to get prenatal record")
		return
	}
	if record == nil {
		errorJSON(w, http.StatusNotFound, "prenatal record not found")
		return
	}
	if !record.Active {
		errorJSON(w, http.StatusConflict, "prenatal record is closed")
		return
	}

	var req checkupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	checkupDate := time.Now().UTC()
	if req.CheckupDate != nil {
		checkupDate = *req.CheckupDate
	}

	checkup, err := h.prenatalStore.AddCheckup(&model.PrenatalCheckup{
		PrenatalID:     id,
		CheckupDate:    checkupDate,
		WeeksGestation: req.WeeksGestation,
		WeightKg:       req.WeightKg,
		BloodPressure:  req.BloodPressure,
		FundalHeightCm: req.FundalHeightCm,
		FetalHeartRate: req.FetalHeartRate,
		Findings:       req.Findings,
		NextVisit:      req.NextVisit,
		RecordedBy:     auth.UserIDPtr(r.Context()),
	})
	if err != nil {
		h.logger.Error("add prenatal checkup", "error", err)
		errorJSON(w, http.StatusInternalServerError, "failed to add checkup")
		return
	}

	h.broadcast(websocket.NewMessage("prenatal", "checkup_added", id))
	writeJSON(w, http.StatusCreated, checkup)
}

func (h *PrenatalHandler) ListCheckups(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid id")
		return
	}

	checkups, err := h.prenatalStore.ListCheckups(id)
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "failed to list checkups")
		return
	}
	if checkups == nil {
		checkups = []model.PrenatalCheckup{}
	}
	writeJSON(w, http.StatusOK, checkups)
}
