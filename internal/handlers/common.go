package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"daily-album-backend/internal/apperr"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

// respondClassified maps a service error to an HTTP status and a stable,
// user-presentable message. Unrecognized errors become an opaque 500 so
// internals never leak to the client.
func respondClassified(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		respondError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, apperr.ErrAuthFailure):
		respondError(w, "Incorrect email or password.", http.StatusUnauthorized)
	case errors.Is(err, apperr.ErrAccessDenied):
		respondError(w, "This app is invite-only. Your account is not on the access list.", http.StatusForbidden)
	case errors.Is(err, apperr.ErrPermissionDenied):
		respondError(w, "You don't have access to this resource.", http.StatusForbidden)
	case errors.Is(err, apperr.ErrNotFound):
		respondError(w, "Not found.", http.StatusNotFound)
	case errors.Is(err, apperr.ErrConnectivity):
		respondError(w, "Connection problem. Check your network and try again.", http.StatusServiceUnavailable)
	case errors.Is(err, apperr.ErrTransient):
		respondError(w, "Temporary problem. Please try again.", http.StatusServiceUnavailable)
	default:
		respondError(w, "Something went wrong.", http.StatusInternalServerError)
	}
}
