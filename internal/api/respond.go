package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MikeSquared-Agency/Cortex/internal/broker"
	"github.com/MikeSquared-Agency/Cortex/internal/ledger"
	"github.com/MikeSquared-Agency/Cortex/internal/roster"
	"github.com/MikeSquared-Agency/Cortex/internal/scoring"
)

// Error kinds on the wire.
const (
	errInvalidRequest = "invalid_request"
	errUnknownWorker  = "unknown_worker"
	errUnknownRole    = "unknown_role"
	errInternal       = "internal"
)

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status, kind := classify(err)
	writeJSON(w, status, errorResponse{Error: kind, Detail: err.Error()})
}

func badRequest(w http.ResponseWriter, detail string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: errInvalidRequest, Detail: detail})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, roster.ErrUnknownWorker):
		return http.StatusNotFound, errUnknownWorker
	case errors.Is(err, ledger.ErrUnknownRole):
		return http.StatusBadRequest, errUnknownRole
	case errors.Is(err, scoring.ErrInvalidRequest),
		errors.Is(err, scoring.ErrInvalidConfig),
		errors.Is(err, roster.ErrInvalidEntry),
		errors.Is(err, roster.ErrInvalidSkillValue),
		errors.Is(err, ledger.ErrInvalidState),
		errors.Is(err, ledger.ErrInvalidWeight):
		return http.StatusBadRequest, errInvalidRequest
	case errors.Is(err, broker.ErrNoFeed):
		return http.StatusServiceUnavailable, errInternal
	}
	return http.StatusInternalServerError, errInternal
}
