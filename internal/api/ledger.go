package api

import (
	"fmt"
	"net/http"

	"github.com/MikeSquared-Agency/Cortex/internal/broker"
	"github.com/MikeSquared-Agency/Cortex/internal/ledger"
	"github.com/MikeSquared-Agency/Cortex/internal/scoring"
)

type LedgerHandler struct {
	broker *broker.Broker
}

func NewLedgerHandler(b *broker.Broker) *LedgerHandler {
	return &LedgerHandler{broker: b}
}

type ledgerResponse struct {
	Modality   string         `json:"modality"`
	FloorHours float64        `json:"floor_hours"`
	Workers    []ledger.Entry `json:"workers"`
}

// Get lists every counter of a modality, including workers no longer on
// shift.
func (h *LedgerHandler) Get(w http.ResponseWriter, r *http.Request) {
	mod := pathParam(r, "modality")
	if !h.broker.Catalog().HasModality(mod) {
		writeError(w, fmt.Errorf("%w: %w: %s", scoring.ErrInvalidRequest, scoring.ErrUnknownModality, mod))
		return
	}
	writeJSON(w, http.StatusOK, ledgerResponse{
		Modality:   mod,
		FloorHours: h.broker.Ledger().FloorHours(),
		Workers:    h.broker.Ledger().Counters(mod),
	})
}

// QuickReload is the display refresh: GET /api/quick_reload?modality=ct.
func (h *LedgerHandler) QuickReload(w http.ResponseWriter, r *http.Request) {
	h.stats(w, r)
}

func (h *LedgerHandler) Stats(w http.ResponseWriter, r *http.Request) {
	h.stats(w, r)
}

func (h *LedgerHandler) stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.broker.Stats(r.URL.Query().Get("modality"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
