package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/foremanhq/foreman/internal/model"
)

// errorResponse is the REST surface's error shape, verbatim from spec §6:
// {error, statusCode, details?}.
type errorResponse struct {
	Error      string      `json:"error"`
	StatusCode int         `json:"statusCode"`
	Details    interface{} `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			log.Printf("[API] failed to encode response: %v", err)
		}
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	log.Printf("[API] error %d: %s", status, message)
	writeJSON(w, status, errorResponse{Error: message, StatusCode: status})
}

// writeDomainError maps a sentinel error from model/catalog/store onto the
// status codes spec §6 names: 400 validation, 404 not found, 409 conflict,
// 500 internal.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrDuplicateName), errors.Is(err, model.ErrSystemProtected), errors.Is(err, model.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, model.ErrInvalidTransition), errors.Is(err, model.ErrApprovalRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
