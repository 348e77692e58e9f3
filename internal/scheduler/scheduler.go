// Package scheduler implements the hybrid idle-first/busy-eligible worker
// selection policy described in spec.md §4.4: prefer an idle worker that
// satisfies the resource requirement, fall back to the least-loaded busy
// worker under its concurrency ceiling, otherwise fail fast.
package scheduler

import (
	"errors"
	"sort"

	"github.com/neutrino-sh/neutrino/internal/model"
	"github.com/neutrino-sh/neutrino/internal/pool"
)

// ErrNoCapacity is returned when no worker, idle or busy-eligible, can take
// the task. The HTTP front-end surfaces this as a 503 with a Retry-After
// advisory. Mirrors the fail-closed sentinel shape of the teacher's
// backend registry Resolve().
var ErrNoCapacity = errors.New("scheduler: no worker has capacity")

// DefaultConcurrencyCeiling is the per-worker outstanding-task limit for
// busy-eligible workers (Open Question 2 decision: CPU-bound pools default
// to 1, i.e. a worker already running a task is never double-booked unless
// configured otherwise).
const DefaultConcurrencyCeiling = 1

// Scheduler selects a worker handle from a pool for each incoming task.
type Scheduler struct {
	p       *pool.Pool
	ceiling int
}

// New creates a scheduler over p with the given busy-eligible concurrency
// ceiling. A ceiling of 0 uses DefaultConcurrencyCeiling.
func New(p *pool.Pool, ceiling int) *Scheduler {
	if ceiling <= 0 {
		ceiling = DefaultConcurrencyCeiling
	}
	return &Scheduler{p: p, ceiling: ceiling}
}

// Select picks an eligible worker handle for req, or returns ErrNoCapacity.
// It does not dispatch the task; callers invoke pool.Dispatch on the
// returned handle.
func (s *Scheduler) Select(req model.ResourceVector) (*pool.Handle, error) {
	if h := pickLeastLoaded(eligibleByCapability(s.p.Idle(), req)); h != nil {
		return h, nil
	}
	if h := pickLeastLoaded(eligibleByAvailability(s.p.BusyEligible(s.ceiling), req, s.ceiling)); h != nil {
		return h, nil
	}
	return nil, ErrNoCapacity
}

// eligibleByCapability filters idle handles whose declared capability
// dominates req. An idle worker has no outstanding tasks, so its available
// resources equal its capability.
func eligibleByCapability(handles []*pool.Handle, req model.ResourceVector) []*pool.Handle {
	out := make([]*pool.Handle, 0, len(handles))
	for _, h := range handles {
		if h.Capability().Dominates(req) {
			out = append(out, h)
		}
	}
	return out
}

// eligibleByAvailability filters busy-eligible handles by remaining
// resources, not declared capability: a busy worker already consuming part
// of its capability must not be handed a task its full capability would
// have fit but its availability does not.
func eligibleByAvailability(handles []*pool.Handle, req model.ResourceVector, ceiling int) []*pool.Handle {
	out := make([]*pool.Handle, 0, len(handles))
	for _, h := range handles {
		if h.AvailableResources(ceiling).Dominates(req) {
			out = append(out, h)
		}
	}
	return out
}

// pickLeastLoaded applies the tie-break rules: lowest outstanding_count,
// then oldest last-assignment timestamp, then stable identity order.
func pickLeastLoaded(handles []*pool.Handle) *pool.Handle {
	if len(handles) == 0 {
		return nil
	}
	sort.SliceStable(handles, func(i, j int) bool {
		a, b := handles[i], handles[j]
		ao, bo := a.OutstandingCount(), b.OutstandingCount()
		if ao != bo {
			return ao < bo
		}
		ac, bc := a.Counters(), b.Counters()
		if !ac.LastAssignmentAt.Equal(bc.LastAssignmentAt) {
			return ac.LastAssignmentAt.Before(bc.LastAssignmentAt)
		}
		return a.ID() < b.ID()
	})
	return handles[0]
}
