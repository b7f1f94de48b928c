package api

import "net/http"

// handleMetrics serves the Prometheus registry when one is configured.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		writeNotFound(w, "metrics are not enabled")
		return
	}
	s.metrics.ServeHTTP(w, r)
}
