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

type ChildHandler struct {
	childStore   *store.ChildStore
	patientStore *store.PatientStore
	hub          *websocket.Hub
	logger       *slog.Logger
}

func NewChildHandler(cs *store.ChildStore, ps *store.PatientStore, hub *websocket.Hub, logger *slog.Logger) *ChildHandler {
	return &ChildHandler{childStore: cs, patientStore: ps, hub: hub, logger: logger}
}

func (h *ChildHandler) broadcast(msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}

type childRequest struct {
	MotherID        *int64     `json:"mother_id"`
	FirstName       string     `json:"first_name"`
	LastName        string     `json:"last_name"`
	BirthDate       time.Time  `json:"birth_date"`
	Sex             string     `json:"sex"`
	BirthWeightKg   float64    `json:"birth_weight_kg"`
	BirthLengthCm   float64    `json:"birth_length_cm"`
	PlaceOfBirth    string     `json:"place_of_birth"`
	DeliveryType    string     `json:"delivery_type"`
	NewbornScreened bool       `json:"newborn_screened"`
	ScreeningDate   *time.Time `json:"screening_date"`
}

func (h *ChildHandler) validate(req *childRequest) string {
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	if req.FirstName == "" || req.LastName == "" {
		return "first_name and last_name are required"
	}
	if req.BirthDate.IsZero() {
		return "birth_date is required"
	}

	if req.MotherID != nil {
		mother, err := h.patientStore.GetByID(*req.MotherID)
		if err != nil || mother == nil {
			return "mother_id does not reference a known patient"
		}
	}
	return ""
}

func (req *childRequest) toModel() *model.Child {
	return &model.Child{
		MotherID:        req.MotherID,
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		BirthDate:       req.BirthDate,
		Sex:             req.Sex,
		BirthWeightKg:   req.BirthWeightKg,
		BirthLengthCm:   req.BirthLengthCm,
		PlaceOfBirth:    req.PlaceOfBirth,
		DeliveryType:    req.DeliveryType,
		NewbornScreened: req.NewbornScreened,
		ScreeningDate:   req.ScreeningDate,
	}
}

func (h *ChildHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req childRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := h.validate(&req); msg != "" {
		errorJSON(w, http.StatusBadRequest, msg)
		return
	}

	child, err := h.childStore.Create(req.toModel())
	if err != nil {
		h.logger.Error("create child record", "error", err)
		errorJSON(w, http.StatusInternalServerError, "failed to create child record")
		return
	}

	h.broadcast(websocket.NewMessage("child", "created", child.ID))
	writeJSON(w, http.StatusCreated, child)
}

func (h *ChildHandler) List(w http.ResponseWriter, r *http.Request) {
	children, err := h.childStore.List()
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "failed to list children")
		return
	}
	if children == nil {
		children = []model.Child{}
	}
	writeJSON(w, http.StatusOK, children)
}

func (h *ChildHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid id")
		return
	}

	child, err := h.childStore.GetByID(id)
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "failed to get child")
		return
	}
	if child == nil {
		errorJSON(w, http.StatusNotFound, "child not found")
		return
	}
	writeJSON(w, http.StatusOK, child)
}

func (h *ChildHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid id")
		return
	}

	existing, err := h.childStore.GetByID(id)
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "failed to get child")
		return
	}
	if existing == nil {
		errorJSON(w, http.StatusNotFound, "child not found")
		return
	}

	var req childRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := h.validate(&req); msg != "" {
		errorJSON(w, http.StatusBadRequest, msg)
		return
	}

	child, err := h.childStore.Update(id, req.toModel())
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "failed to update child record")
		return
	}

	h.broadcast(websocket.NewMessage("child", "updated", id))
	writeJSON(w, http.StatusOK, child)
}

func (h *ChildHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := h.childStore.Delete(id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			errorJSON(w, http.StatusNotFound, "child not found")
			return
		}
		errorJSON(w, http.StatusInternalServerError, "failed to delete child record")
		return
	}

	h.broadcast(websocket.NewMessage("child", "deleted", id))
	w.WriteHeader(http.StatusNoContent)
}
