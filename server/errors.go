package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dorky-robot/salita-mesh/internal/jointoken"
	"github.com/dorky-robot/salita-mesh/internal/pairing"
	"github.com/dorky-robot/salita-mesh/internal/passkey"
	"github.com/dorky-robot/salita-mesh/internal/peertoken"
	"github.com/dorky-robot/salita-mesh/internal/session"
	"github.com/dorky-robot/salita-mesh/storage"
)

// Error codes surfaced in apiError.Code, modeled on dex's
// server/error.go constant block.
const (
	errorNotFound     = "not_found"
	errorUnauthorized = "unauthorized"
	errorBadRequest   = "bad_request"
	errorServerError  = "server_error"
)

// apiError is the JSON error body for every non-2xx response, matching
// dex's server/error.go apiError{Type, Description} shape (renamed
// Code/Message to read naturally against the four HTTP error classes
// below).
type apiError struct {
	Code    string `json:"error"`
	Message string `json:"message,omitempty"`
}

func (e *apiError) Error() string {
	return e.Code
}

func newAPIError(code, message string) *apiError {
	return &apiError{Code: code, Message: message}
}

func writeAPIError(w http.ResponseWriter, status int, err *apiError) {
	if err == nil {
		err = newAPIError(errorServerError, "")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}

// writeError maps an error from a domain/storage/service call to one of
// four HTTP classes and writes the response. Peer-token verification
// failures are never distinguished in the response body, regardless of
// which sentinel underlies them.
func writeError(w http.ResponseWriter, logger loggerFunc, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeAPIError(w, http.StatusNotFound, newAPIError(errorNotFound, "not found"))
	case errors.Is(err, session.ErrInvalid),
		errors.Is(err, peertoken.ErrInvalid),
		errors.Is(err, passkey.ErrCeremonyNotFound):
		writeAPIError(w, http.StatusUnauthorized, newAPIError(errorUnauthorized, "unauthorized"))
	case errors.Is(err, jointoken.ErrNotFound),
		errors.Is(err, jointoken.ErrAlreadyUsed):
		writeAPIError(w, http.StatusBadRequest, newAPIError(errorBadRequest, err.Error()))
	default:
		var perr *pairing.PairingError
		if errors.As(err, &perr) {
			writeAPIError(w, http.StatusBadRequest, newAPIError(errorBadRequest, perr.Error()))
			return
		}
		if logger != nil {
			logger("internal error: %v", err)
		}
		writeAPIError(w, http.StatusInternalServerError, newAPIError(errorServerError, "internal server error"))
	}
}

// loggerFunc lets writeError log without importing pkg/log directly,
// keeping this file's only dependency surface on the error taxonomy.
type loggerFunc func(format string, args ...interface{})
