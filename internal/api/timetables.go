package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-timetable/internal/timetable"
)

// History query bounds.
const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// createTimetableRequest is the body of POST /timetables and PATCH /timetables/{id}.
type createTimetableRequest struct {
	Name string `json:"name"`
}

// setRequest is the body of POST /timetables/{id}/set.
type setRequest struct {
	Time  string `json:"time"`
	State string `json:"state"`
}

// unsetRequest is the body of POST /timetables/{id}/unset.
type unsetRequest struct {
	Time string `json:"time"`
}

// reconfigRequest is the body of POST /timetables/{id}/reconfig.
type reconfigRequest struct {
	Timetable []timetable.Attribute `json:"timetable"`
}

// handleListTimetables returns every timetable ordered by ID.
func (s *Server) handleListTimetables(w http.ResponseWriter, _ *http.Request) {
	timetables := s.registry.List()
	writeJSON(w, http.StatusOK, map[string]any{"timetables": timetables, "count": len(timetables)})
}

// handleGetTimetable returns a single timetable by ID.
func (s *Server) handleGetTimetable(w http.ResponseWriter, r *http.Request) {
	u, err := s.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// handleCreateTimetable adds a timetable to the storage collection.
func (s *Server) handleCreateTimetable(w http.ResponseWriter, r *http.Request) {
	var req createTimetableRequest
	if !decodeBody(w, r, &req) {
		return
	}

	u, err := s.registry.Create(r.Context(), req.Name)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// handleRenameTimetable changes the name of a stored timetable.
func (s *Server) handleRenameTimetable(w http.ResponseWriter, r *http.Request) {
	var req createTimetableRequest
	if !decodeBody(w, r, &req) {
		return
	}

	u, err := s.registry.Rename(r.Context(), chi.URLParam(r, "id"), req.Name)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// handleDeleteTimetable removes a stored timetable.
func (s *Server) handleDeleteTimetable(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSet inserts or overwrites one event.
func (s *Server) handleSet(w http.ResponseWriter, r *http.Request) {
	var req setRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Time == "" || req.State == "" {
		writeValidationError(w, "time and state are required")
		return
	}
	at, err := timetable.ParseTimeOfDay(req.Time)
	if err != nil {
		writeValidationError(w, err.Error())
		return
	}
	state, err := timetable.ParseState(req.State)
	if err != nil {
		writeValidationError(w, err.Error())
		return
	}

	u, err := s.registry.Set(chi.URLParam(r, "id"), at, state)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// handleUnset removes one event.
func (s *Server) handleUnset(w http.ResponseWriter, r *http.Request) {
	var req unsetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Time == "" {
		writeValidationError(w, "time is required")
		return
	}
	at, err := timetable.ParseTimeOfDay(req.Time)
	if err != nil {
		writeValidationError(w, err.Error())
		return
	}

	u, err := s.registry.Unset(chi.URLParam(r, "id"), at)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// handleReset clears every event.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	u, err := s.registry.Reset(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// handleReconfig replaces every event. The timetable field is required; an
// empty list clears the table. The whole request is rejected if any entry is
// malformed or two entries share a time.
func (s *Server) handleReconfig(w http.ResponseWriter, r *http.Request) {
	var req reconfigRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Timetable == nil {
		writeValidationError(w, "timetable is required")
		return
	}
	events, err := timetable.ParseAttributes(req.Timetable)
	if err != nil {
		writeValidationError(w, err.Error())
		return
	}

	u, err := s.registry.Reconfig(chi.URLParam(r, "id"), events)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// handleGetHistory returns recent state changes of a timetable, newest first.
//
// Query parameters:
//   - limit: number of entries (default 50, max 200)
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeNotFound(w, "state history is not enabled")
		return
	}

	id := chi.URLParam(r, "id")
	if _, err := s.registry.Get(id); err != nil {
		s.respondError(w, r, err)
		return
	}

	limit, err := parseHistoryLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	entries, err := s.history.GetHistory(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("failed to load timetable history", "timetable_id", id, "error", err)
		writeInternalError(w, "failed to load timetable history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"timetable_id": id, "history": entries, "count": len(entries)})
}

// handleReload re-reads the configuration file and syncs the read-only
// collection. A partially applied reload reports the skipped entries.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if s.reload == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "reload is not available")
		return
	}
	if err := s.reload(r.Context()); err != nil {
		s.logger.Warn("configuration reload reported problems", "error", err)
		writeValidationError(w, err.Error())
		return
	}
	timetables := s.registry.List()
	writeJSON(w, http.StatusOK, map[string]any{"status": "reloaded", "count": len(timetables)})
}

// respondError writes the mapped error response, logging anything that
// maps to a 500.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	if !isClientError(err) {
		s.logger.Error("timetable operation failed",
			"path", r.URL.Path,
			"error", err,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
	}
	writeTimetableError(w, err)
}

// decodeBody decodes a JSON request body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return false
	}
	return true
}

// parseHistoryLimit parses the limit query parameter with bounds enforcement.
func parseHistoryLimit(raw string) (int, error) {
	if raw == "" {
		return defaultHistoryLimit, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("invalid limit")
	}
	if limit > maxHistoryLimit {
		return 0, fmt.Errorf("limit exceeds maximum")
	}

	return limit, nil
}
