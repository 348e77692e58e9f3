package httpapi

import (
	"net/http"
	"time"

	"github.com/neutrino-sh/neutrino/internal/model"
)

// handleHealth returns 200 iff the pool has at least one worker in
// Idle/Busy, or the server is still within its startup grace period,
// per spec.md §4.5.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.pool.ActiveWorkers() > 0 || time.Since(s.startedAt) < s.startupGrace {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	// No workers means no capacity to dispatch against, same kind as a
	// dispatch-time no-capacity rejection.
	s.writeError(w, http.StatusServiceUnavailable, model.ErrorKindCapacity, "no workers available")
}
