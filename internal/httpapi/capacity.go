package httpapi

import "net/http"

// capacitySnapshotResponse mirrors the canonical JSON schema in spec.md §4.6.
type capacitySnapshotResponse struct {
	Available resourceVectorJSON `json:"available"`
	Total     resourceVectorJSON `json:"total"`
	Workers   struct {
		Total int `json:"total"`
		Idle  int `json:"idle"`
	} `json:"workers"`
}

type resourceVectorJSON struct {
	CPUs     float64 `json:"cpus"`
	GPUs     float64 `json:"gpus"`
	MemoryGB float64 `json:"memory_gb"`
}

// handleCapacity returns the pool-capacity snapshot, recomputed on demand.
func (s *Server) handleCapacity(w http.ResponseWriter, r *http.Request) {
	snap := s.pool.CapacitySnapshot()
	resp := capacitySnapshotResponse{
		Available: resourceVectorJSON{snap.Available.CPUs, snap.Available.GPUs, snap.Available.MemoryGB},
		Total:     resourceVectorJSON{snap.Total.CPUs, snap.Total.GPUs, snap.Total.MemoryGB},
	}
	resp.Workers.Total = snap.Workers.Total
	resp.Workers.Idle = snap.Workers.Idle
	s.writeJSON(w, http.StatusOK, resp)
}
