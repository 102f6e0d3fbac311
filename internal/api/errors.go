package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/remapd/internal/device"
	"github.com/nerrad567/remapd/internal/plugin"
	"github.com/nerrad567/remapd/internal/profile"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeNotFound    = "not_found"
	ErrCodeConflict    = "conflict"
	ErrCodeInternal    = "internal_error"
	ErrCodeValidation  = "validation_error"
	ErrCodeUnavailable = "unavailable"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDomainError maps domain sentinels to HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, profile.ErrProfileNotFound),
		errors.Is(err, profile.ErrPluginNotFound),
		errors.Is(err, device.ErrDeviceNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, profile.ErrCannotDelete),
		errors.Is(err, profile.ErrPluginAttached),
		errors.Is(err, plugin.ErrAlreadyLoaded),
		errors.Is(err, plugin.ErrRemoved):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, plugin.ErrUnknownKind),
		errors.Is(err, plugin.ErrInvalidSetting),
		errors.Is(err, plugin.ErrSlotOutOfRange),
		errors.Is(err, profile.ErrInvalidDeviceType),
		errors.Is(err, profile.ErrUnsupportedSchema),
		errors.Is(err, device.ErrUnknownDirection):
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
	default:
		writeInternalError(w, err.Error())
	}
}
