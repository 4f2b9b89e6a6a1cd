package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/MikeSquared-Agency/Cortex/internal/broker"
	"github.com/MikeSquared-Agency/Cortex/internal/ledger"
	"github.com/MikeSquared-Agency/Cortex/internal/roster"
	"github.com/MikeSquared-Agency/Cortex/internal/store"
)

type AdminHandler struct {
	broker *broker.Broker
}

func NewAdminHandler(b *broker.Broker) *AdminHandler {
	return &AdminHandler{broker: b}
}

type rosterResponse struct {
	Workers     int    `json:"workers"`
	Fingerprint string `json:"fingerprint"`
	Changed     bool   `json:"changed"`
}

func (h *AdminHandler) rosterStatus(w http.ResponseWriter, changed bool) {
	ix := h.broker.Roster()
	writeJSON(w, http.StatusOK, rosterResponse{Workers: ix.Len(), Fingerprint: ix.Fingerprint(), Changed: changed})
}

func (h *AdminHandler) GetRoster(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.broker.Roster().Document())
}

func (h *AdminHandler) PutRoster(w http.ResponseWriter, r *http.Request) {
	var doc roster.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		badRequest(w, "invalid roster: "+err.Error())
		return
	}
	changed, err := h.broker.ReplaceRoster(doc)
	if err != nil {
		writeError(w, err)
		return
	}
	h.rosterStatus(w, changed)
}

func (h *AdminHandler) ReloadRoster(w http.ResponseWriter, r *http.Request) {
	changed, err := h.broker.ReloadRoster(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	h.rosterStatus(w, changed)
}

// ImportSkills applies a CSV skill matrix: PUT /admin/roster/skills?mode=merge.
func (h *AdminHandler) ImportSkills(w http.ResponseWriter, r *http.Request) {
	mode, err := roster.ParseImportMode(r.URL.Query().Get("mode"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	stats, err := h.broker.ImportSkills(r.Body, mode)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *AdminHandler) ExportSkills(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="skills.csv"`)
	if err := h.broker.ExportSkills(w); err != nil {
		writeError(w, err)
	}
}

func (h *AdminHandler) PutWorker(w http.ResponseWriter, r *http.Request) {
	var wk roster.Worker
	if err := json.NewDecoder(r.Body).Decode(&wk); err != nil {
		badRequest(w, "invalid worker: "+err.Error())
		return
	}
	if wk.Name == "" {
		wk.Name = pathParam(r, "id")
	}
	stored, err := h.broker.UpsertWorker(wk)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

func (h *AdminHandler) DeleteWorker(w http.ResponseWriter, r *http.Request) {
	if err := h.broker.RemoveWorker(pathParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) Drain(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	h.broker.DrainWorker(id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "drained", "worker": id})
}

func (h *AdminHandler) Undrain(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	h.broker.UndrainWorker(id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "active", "worker": id})
}

// ResetLedger zeroes one modality (?modality=ct) or all of them.
func (h *AdminHandler) ResetLedger(w http.ResponseWriter, r *http.Request) {
	mod := r.URL.Query().Get("modality")
	if err := h.broker.ResetLedger(r.Context(), mod); err != nil {
		writeError(w, err)
		return
	}
	scope := mod
	if scope == "" {
		scope = "all"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset", "modality": scope})
}

func (h *AdminHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.broker.Snapshot())
}

func (h *AdminHandler) PutSnapshot(w http.ResponseWriter, r *http.Request) {
	var st ledger.State
	if err := json.NewDecoder(r.Body).Decode(&st); err != nil {
		badRequest(w, "invalid snapshot: "+err.Error())
		return
	}
	if err := h.broker.RestoreLedger(st); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"counters": st.Len()})
}

// Assignments lists the assignment log.
// GET /admin/assignments?modality=&worker=&since=RFC3339&limit=&offset=
func (h *AdminHandler) Assignments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.AssignmentFilter{
		Modality: q.Get("modality"),
		Worker:   q.Get("worker"),
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			badRequest(w, "since must be RFC3339")
			return
		}
		filter.Since = &t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			badRequest(w, "limit must be an integer")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			badRequest(w, "offset must be an integer")
			return
		}
		filter.Offset = n
	}

	list, err := h.broker.ListAssignments(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if list == nil {
		list = []*store.Assignment{}
	}
	writeJSON(w, http.StatusOK, list)
}
