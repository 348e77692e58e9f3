package gateway

import (
	"errors"

	"github.com/neutrino-sh/neutrino/internal/model"
)

// ErrNoBackend is returned when no healthy backend dominates the requested
// resource vector.
var ErrNoBackend = errors.New("no backend has capacity")

// Select implements spec.md §4.7 steps 2-3: filter to healthy backends
// whose available vector dominates req, then pick the minimum-utilization
// candidate, tie-breaking on backend ID for stability (L2: a second call
// with no intervening state change returns the same backend).
func (p *Pool) Select(req model.ResourceVector) (*Backend, error) {
	candidates := p.snapshotBackends()

	var best *Backend
	var bestScore float64
	for _, b := range candidates {
		if !b.hasCapacity(req) {
			continue
		}
		score := b.utilization(req)
		if best == nil || score < bestScore || (score == bestScore && b.ID < best.ID) {
			best = b
			bestScore = score
		}
	}

	if best == nil {
		return nil, ErrNoBackend
	}
	return best, nil
}
