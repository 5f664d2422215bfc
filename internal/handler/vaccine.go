package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jvillanueva/hilot/internal/auth"
	"github.com/jvillanueva/hilot/internal/model"
	"github.com/jvillanueva/hilot/internal/notify"
	"github.com/jvillanueva/hilot/internal/store"
	"github.com/jvillanueva/hilot/internal/websocket"
)

type VaccineHandler struct {
	vaccineStore *store.VaccineStore
	hub          *websocket.Hub
	notifier     *notify.Broadcaster
	logger       *slog.Logger
}

func NewVaccineHandler(vs *store.VaccineStore, hub *websocket.Hub, notifier *notify.Broadcaster, logger *slog.Logger) *VaccineHandler {
	return &VaccineHandler{vaccineStore: vs, hub: hub, notifier: notifier, logger: logger}
}

func (h *VaccineHandler) broadcast(msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}

type vaccineRequest struct {
	Name           string  `json:"name"`
	Manufacturer   string  `json:"manufacturer"`
	DosesRequired  int     `json:"doses_required"`
	IntervalWeeks  int     `json:"interval_weeks"`
	MinAgeWeeks    int     `json:"min_age_weeks"`
	ReorderLevel   int     `json:"reorder_level"`
	StorageTempMin float64 `json:"storage_temp_min"`
	StorageTempMax float64 `json:"storage_temp_max"`
}

func (h *VaccineHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req vaccineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		errorJSON(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.DosesRequired < 1 {
		req.DosesRequired = 1
	}

	vaccine, err := h.vaccineStore.Create(&model.Vaccine{
		Name:           req.Name,
		Manufacturer:   req.Manufacturer,
		DosesRequired:  req.DosesRequired,
		IntervalWeeks:  req.IntervalWeeks,
		MinAgeWeeks:    req.MinAgeWeeks,
		ReorderLevel:   req.ReorderLevel,
		StorageTempMin: req.StorageTempMin,
		StorageTempMax: req.StorageTempMax,
	})
	if err != nil {
		h.logger.Error("create vaccine", "error", err)
		errorJSON(w, http.StatusInternalServerError, "failed to create vaccine")
		return
	}

	h.broadcast(websocket.NewMessage("vaccine", "created", vaccine.ID))
	writeJSON(w, http.StatusCreated, vaccine)
}

func (h *VaccineHandler) List(w http.ResponseWriter, r *http.Request) {
	vaccines, err := h.vaccineStore.List()
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "failed to list vaccines")
		return
	}
	if vaccines == nil {
		vaccines = []model.Vaccine{}
	}
	writeJSON(w, http.StatusOK, vaccines)
}

func (h *VaccineHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid id")
		return
	}

	vaccine, err := h.vaccineStore.GetByID(id)
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "failed to get vaccine")
		return
	}
	if vaccine == nil {
		errorJSON(w, http.StatusNotFound, "vaccine not found")
		return
	}
	writeJSON(w, http.StatusOK, vaccine)
}

var validTxTypes = map[model.VaccineTransactionType]bool{
	model.VaccineTxReceived:     true,
	model.VaccineTxAdministered: true,
	model.VaccineTxExpired:      true,
	model.VaccineTxAdjustment:   true,
}

type transactionRequest struct {
	Type        model.VaccineTransactionType `json:"type"`
	Quantity    int                          `json:"quantity"`
	BatchNumber string                       `json:"batch_number"`
	ExpiryDate  *time.Time                   `json:"expiry_date"`
	Remarks     string                       `json:"remarks"`
}

// RecordTransaction posts a stock movement against a vaccine. Received adds,
// administered and expired subtract, adjustment applies the signed quantity.
func (h *VaccineHandler) RecordTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid id")
		return
	}

	vaccine, err := h.vaccineStore.GetByID(id)
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "failed to get vaccine")
		return
	}
	if vaccine == nil {
		errorJSON(w, http.StatusNotFound, "vaccine not found")
		return
	}

	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if !validTxTypes[req.Type] {
		errorJSON(w, http.StatusBadRequest, "type must be received, administered, expired, or adjustment")
		return
	}
	if req.Quantity == 0 {
		errorJSON(w, http.StatusBadRequest, "quantity must be non-zero")
		return
	}
	if req.Type != model.VaccineTxAdjustment && req.Quantity < 0 {
		errorJSON(w, http.StatusBadRequest, "quantity must be positive")
		return
	}

	tx, err := h.vaccineStore.RecordTransaction(&model.VaccineTransaction{
		VaccineID:   id,
		Type:        req.Type,
		Quantity:    req.Quantity,
		BatchNumber: req.BatchNumber,
		ExpiryDate:  req.ExpiryDate,
		Remarks:     req.Remarks,
		RecordedBy:  auth.UserIDPtr(r.Context()),
	})
	if err != nil {
		h.logger.Error("record vaccine transaction", "vaccine_id", id, "error", err)
		errorJSON(w, http.StatusInternalServerError, "failed to record transaction")
		return
	}

	if h.notifier != nil {
		if v, err := h.vaccineStore.GetByID(id); err == nil && v != nil && v.StockOnHand <= v.ReorderLevel {
			h.notifier.LowStock(v)
		}
	}

	h.broadcast(websocket.NewMessage("vaccine", "stock_changed", id))
	writeJSON(w, http.StatusCreated, tx)
}

func (h *VaccineHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid id")
		return
	}

	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	txs, err := h.vaccineStore.ListTransactions(id, limit)
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}
	if txs == nil {
		txs = []model.VaccineTransaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

func (h *VaccineHandler) LowStock(w http.ResponseWriter, r *http.Request) {
	vaccines, err := h.vaccineStore.LowStock()
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "failed to list low stock")
		return
	}
	if vaccines == nil {
		vaccines = []model.Vaccine{}
	}
	writeJSON(w, http.StatusOK, vaccines)
}
