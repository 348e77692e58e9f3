package httpapi

import (
	"encoding/json"
	"net/http"
)

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes the error body shape of spec.md §7:
// {"error_kind": ..., "detail": ...}. kind is one of the model.ErrorKind*
// constants.
func (s *Server) writeError(w http.ResponseWriter, status int, kind, detail string) {
	s.writeJSON(w, status, map[string]string{"error_kind": kind, "detail": detail})
}
