package handler

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jvillanueva/hilot/internal/model"
	"github.com/jvillanueva/hilot/internal/store"
	"github.com/jvillanueva/hilot/internal/websocket"
)

type PatientHandler struct {
	patientStore *store.PatientStore
	hub          *websocket.Hub
	logger       *slog.Logger
}

func NewPatientHandler(ps *store.PatientStore, hub *websocket.Hub, logger *slog.Logger) *PatientHandler {
	return &PatientHandler{patientStore: ps, hub: hub, logger: logger}
}

func (h *PatientHandler) broadcast(msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}

type patientRequest struct {
	FirstName     string     `json:"first_name"`
	LastName      string     `json:"last_name"`
	BirthDate     *time.Time `json:"birth_date"`
	Sex           string     `json:"sex"`
	Address       string     `json:"address"`
	ContactNumber string     `json:"contact_number"`
	PhilhealthNo  string     `json:"philhealth_no"`
	BloodType     string     `json:"blood_type"`
}

func (r *patientRequest) validate() string {
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	if r.FirstName == "" || r.LastName == "" {
		return "first_name and last_name are required"
	}
	if r.Sex != "" && r.Sex != "male" && r.Sex != "female" {
		return "sex must be male or female"
	}
	return ""
}

func (r *patientRequest) toModel() *model.Patient {
	return &model.Patient{
		FirstName:     r.FirstName,
		LastName:      r.LastName,
		BirthDate:     r.BirthDate,
		Sex:           r.Sex,
		Address:       r.Address,
		ContactNumber: r.ContactNumber,
		PhilhealthNo:  r.PhilhealthNo,
		BloodType:     r.BloodType,
	}
}

func (h *PatientHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req patientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := req.validate(); msg != "" {
		errorJSON(w, http.StatusBadRequest, msg)
		return
	}

	patient, err := h.patientStore.Create(req.toModel())
	if err != nil {
		h.logger.Error("create patient", "error", err)
		errorJSON(w, http.StatusInternalServerError, "failed to create patient")
		return
	}

	h.broadcast(websocket.NewMessage("patient", "created", patient.ID))
	writeJSON(w, http.StatusCreated, patient)
}

func (h *PatientHandler) List(w http.ResponseWriter, r *http.Request) {
	patients, err := h.patientStore.List()
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "failed to list patients")
		return
	}
	if patients == nil {
		patients = []model.Patient{}
	}
	writeJSON(w, http.StatusOK, patients)
}

func (h *PatientHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid id")
		return
	}

	patient, err := h.patientStore.GetByID(id)
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "failed to get patient")
		return
	}
	if patient == nil {
		errorJSON(w, http.StatusNotFound, "patient not found")
		return
	}
	writeJSON(w, http.StatusOK, patient)
}

func (h *PatientHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid id")
		return
	}

	existing, err := h.patientStore.GetByID(id)
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "failed to get patient")
		return
	}
	if existing == nil {
		errorJSON(w, http.StatusNotFound, "patient not found")
		return
	}

	var req patientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := req.validate(); msg != "" {
		errorJSON(w, http.StatusBadRequest, msg)
		return
	}

	patient, err := h.patientStore.Update(id, req.toModel())
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "failed to update patient")
		return
	}

	h.broadcast(websocket.NewMessage("patient", "updated", id))
	writeJSON(w, http.StatusOK, patient)
}

func (h *PatientHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := h.patientStore.Delete(id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			errorJSON(w, http.StatusNotFound, "patient not found")
			return
		}
		errorJSON(w, http.StatusInternalServerError, "failed to delete patient")
		return
	}

	h.broadcast(websocket.NewMessage("patient", "deleted", id))
	w.WriteHeader(http.StatusNoContent)
}
