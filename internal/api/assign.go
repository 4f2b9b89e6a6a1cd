package api

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/MikeSquared-Agency/Cortex/internal/broker"
	"github.com/MikeSquared-Agency/Cortex/internal/scoring"
)

type AssignHandler struct {
	broker *broker.Broker
}

func NewAssignHandler(b *broker.Broker) *AssignHandler {
	return &AssignHandler{broker: b}
}

type assignResponse struct {
	AssignmentID      string  `json:"assignment_id"`
	Worker            string  `json:"worker"`
	Modality          string  `json:"modality"`
	RequestedModality string  `json:"requested_modality,omitempty"`
	Skill             string  `json:"skill"`
	PoolSkill         string  `json:"pool_skill,omitempty"`
	Level             int     `json:"level"`
	Phase             int     `json:"phase"`
	Weight            float64 `json:"weight"`
	RatioAfter        float64 `json:"ratio_after"`
	Assisted          bool    `json:"assisted,omitempty"`
	CrossModality     bool    `json:"cross_modality,omitempty"`
}

type noAssignmentResponse struct {
	Status   string `json:"status"`
	Modality string `json:"modality"`
	Skill    string `json:"skill"`
	Phase    int    `json:"phase"`
}

// pathParam returns an unescaped URL parameter; skill names may contain
// spaces.
func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

// Assign handles GET /api/{modality}/{skill}.
func (h *AssignHandler) Assign(w http.ResponseWriter, r *http.Request) {
	h.assign(w, r, false)
}

// AssignStrict handles GET /api/{modality}/{skill}/strict.
func (h *AssignHandler) AssignStrict(w http.ResponseWriter, r *http.Request) {
	h.assign(w, r, true)
}

func (h *AssignHandler) assign(w http.ResponseWriter, r *http.Request, strict bool) {
	req := scoring.Request{
		Modality: pathParam(r, "modality"),
		Skill:    pathParam(r, "skill"),
		Strict:   strict,
	}
	res, err := h.broker.Assign(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	if !res.Found {
		writeJSON(w, http.StatusOK, noAssignmentResponse{
			Status:   "no_assignment",
			Modality: req.Modality,
			Skill:    req.Skill,
			Phase:    int(res.Phase),
		})
		return
	}

	resp := assignResponse{
		AssignmentID:  res.AssignmentID.String(),
		Worker:        res.Worker,
		Modality:      res.Modality,
		Skill:         req.Skill,
		PoolSkill:     res.PoolSkill,
		Level:         res.Level,
		Phase:         int(res.Phase),
		Weight:        res.Weight,
		RatioAfter:    res.RatioAfter,
		Assisted:      res.Assisted(),
		CrossModality: res.CrossModality,
	}
	if res.CrossModality {
		resp.RequestedModality = req.Modality
	}
	writeJSON(w, http.StatusOK, resp)
}

// Explain returns the selection a request would get right now without
// recording it.
// GET /api/v1/explain/{modality}/{skill}?strict=true
func (h *AssignHandler) Explain(w http.ResponseWriter, r *http.Request) {
	strict := false
	if raw := r.URL.Query().Get("strict"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(w, "strict must be a boolean")
			return
		}
		strict = v
	}
	sel, err := h.broker.Preview(scoring.Request{
		Modality: pathParam(r, "modality"),
		Skill:    pathParam(r, "skill"),
		Strict:   strict,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sel)
}
