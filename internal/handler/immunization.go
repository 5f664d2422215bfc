package handler

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jvillanueva/hilot/internal/auth"
	"github.com/jvillanueva/hilot/internal/model"
	"github.com/jvillanueva/hilot/internal/notify"
	"github.com/jvillanueva/hilot/internal/store"
	"github.com/jvillanueva/hilot/internal/websocket"
)

type ImmunizationHandler struct {
	immunizationStore *store.ImmunizationStore
	childStore        *store.ChildStore
	vaccineStore      *store.VaccineStore
	hub               *websocket.Hub
	notifier          *notify.Broadcaster
	logger            *slog.Logger
}

func NewImmunizationHandler(is *store.ImmunizationStore, cs *store.ChildStore, vs *store.VaccineStore, hub *websocket.Hub, notifier *notify.Broadcaster, logger *slog.Logger) *ImmunizationHandler {
	return &ImmunizationHandler{
		immunizationStore: is,
		childStore:        cs,
		vaccineStore:      vs,
		hub:               hub,
		notifier:          notifier,
		logger:            logger,
	}
}

func (h *ImmunizationHandler) broadcast(msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}

type immunizationRequest struct {
	ChildID     int64      `json:"child_id"`
	VaccineID   int64      `json:"vaccine_id"`
	DoseNumber  int        `json:"dose_number"`
	DateGiven   *time.Time `json:"date_given"`
	BatchNumber string     `json:"batch_number"`
	Remarks     string     `json:"remarks"`
}

// Create records a dose given to a child. Stock is decremented through a
// vaccine transaction and the next dose date is derived from the vaccine's
// dose interval.
func (h *ImmunizationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req immunizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	child, err := h.childStore.GetByID(req.ChildID)
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "failed to get child")
		return
	}
	if child == nil {
		errorJSON(w, http.StatusBadRequest, "child does not exist")
		return
	}

	vaccine, err := h.vaccineStore.GetByID(req.VaccineID)
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "failed to get vaccine")
		return
	}
	if vaccine == nil {
		errorJSON(w, http.StatusBadRequest, "vaccine does not exist")
		return
	}

	if req.DoseNumber < 1 {
		req.DoseNumber = 1
	}
	if req.DoseNumber > vaccine.DosesRequired {
		errorJSON(w, http.StatusBadRequest, "dose_number exceeds doses required for this vaccine")
		return
	}

	dateGiven := time.Now().UTC()
	if req.DateGiven != nil {
		dateGiven = *req.DateGiven
	}

	var nextDose *time.Time
	if req.DoseNumber < vaccine.DosesRequired && vaccine.IntervalWeeks > 0 {
		next := dateGiven.AddDate(0, 0, vaccine.IntervalWeeks*7)
		nextDose = &next
	}

	userID := auth.UserIDPtr(r.Context())
	im, err := h.immunizationStore.Create(&model.Immunization{
		ChildID:        req.ChildID,
		VaccineID:      req.VaccineID,
		DoseNumber:     req.DoseNumber,
		DateGiven:      dateGiven,
		AdministeredBy: userID,
		BatchNumber:    req.BatchNumber,
		Remarks:        req.Remarks,
		NextDoseDate:   nextDose,
	})
	if err != nil {
		h.logger.Error("create immunization", "error", err)
		errorJSON(w, http.StatusInternalServerError, "failed to record immunization")
		return
	}

	// Deduct one dose from stock. The immunization stands even if the
	// ledger write fails; stock can be corrected with an adjustment.
	_, err = h.vaccineStore.RecordTransaction(&model.VaccineTransaction{
		VaccineID:   req.VaccineID,
		Type:        model.VaccineTxAdministered,
		Quantity:    1,
		BatchNumber: req.BatchNumber,
		RecordedBy:  userID,
	})
	if err != nil {
		h.logger.Error("record administered dose", "vaccine_id", req.VaccineID, "error", err)
	} else if h.notifier != nil {
		if v, err := h.vaccineStore.GetByID(req.VaccineID); err == nil && v != nil && v.StockOnHand <= v.ReorderLevel {
			h.notifier.LowStock(v)
		}
	}

	h.broadcast(websocket.NewMessage("immunization", "created", im.ID))
	writeJSON(w, http.StatusCreated, im)
}

func (h *ImmunizationHandler) ListByChild(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid id")
		return
	}

	ims, err := h.immunizationStore.ListByChild(id)
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "failed to list immunizations")
		return
	}
	if ims == nil {
		ims = []model.Immunization{}
	}
	writeJSON(w, http.StatusOK, ims)
}

func (h *ImmunizationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := h.immunizationStore.Delete(id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			errorJSON(w, http.StatusNotFound, "immunization not found")
			return
		}
		errorJSON(w, http.StatusInternalServerError, "failed to delete immunization")
		return
	}

	h.broadcast(websocket.NewMessage("immunization", "deleted", id))
	w.WriteHeader(http.StatusNoContent)
}
