package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gray-logic-timetable/internal/timetable"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeForbidden    = "forbidden"
	ErrCodeConflict     = "conflict"
	ErrCodeInternal     = "internal_error"
	ErrCodeValidation   = "validation_error"
	ErrCodeUnavailable  = "unavailable"
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

// writeValidationError writes a 400 validation error response.
func writeValidationError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeValidation, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeForbidden writes a 403 error response.
func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeTimetableError maps a timetable package error to a response.
// Unrecognised errors are logged by the caller and reported as 500.
func writeTimetableError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, timetable.ErrNotFound):
		writeNotFound(w, "timetable not found")
	case errors.Is(err, timetable.ErrTimeNotFound):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, timetable.ErrReadOnly):
		writeError(w, http.StatusConflict, ErrCodeConflict, "timetable is defined in the configuration file and cannot be changed here")
	case errors.Is(err, timetable.ErrExists):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, timetable.ErrInvalidName),
		errors.Is(err, timetable.ErrMalformedTime),
		errors.Is(err, timetable.ErrInvalidState),
		errors.Is(err, timetable.ErrDuplicateTime):
		writeValidationError(w, err.Error())
	case errors.Is(err, timetable.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "service is shutting down")
	default:
		writeInternalError(w, "timetable operation failed")
	}
}

// isClientError reports whether err is caused by the request rather than
// the service.
func isClientError(err error) bool {
	for _, target := range []error{
		timetable.ErrNotFound,
		timetable.ErrTimeNotFound,
		timetable.ErrReadOnly,
		timetable.ErrExists,
		timetable.ErrInvalidName,
		timetable.ErrMalformedTime,
		timetable.ErrInvalidState,
		timetable.ErrDuplicateTime,
		timetable.ErrClosed,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
