package pool

import (
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/neutrino-sh/neutrino/internal/ipc"
	"github.com/neutrino-sh/neutrino/internal/model"
)

// pendingTask is the one-shot notifier for a task dispatched to this
// worker, resolved exactly once either by a TaskResult frame, a deadline
// timer, or the worker being marked Exited.
type pendingTask struct {
	resultCh chan model.TaskOutcome
}

// Handle is the orchestrator-side representation of one worker: process
// identity, socket endpoint, liveness state, counters, and the outstanding-
// task map. The pool exclusively owns handles. The outstanding map is
// guarded by mu: dispatch inserts from the caller's goroutine, and the
// reader goroutine, the deadline timer and markExited remove entries.
type Handle struct {
	mu sync.Mutex

	id         string
	generation int // not set: a respawn builds a new Handle under the reused identity string
	cmd        *exec.Cmd
	conn       *ipc.Conn
	sockPath   string

	state      string
	capability model.ResourceVector
	counters   model.WorkerCounters

	outstanding map[string]*pendingTask
}

// newHandle constructs a handle in the Spawning state. capability is the
// pool's configured per-worker resource declaration.
func newHandle(id string, capability model.ResourceVector) *Handle {
	return &Handle{
		id:          id,
		state:       model.WorkerSpawning,
		capability:  capability,
		outstanding: make(map[string]*pendingTask),
	}
}

// ID returns the worker's stable identity string.
func (h *Handle) ID() string {
	return h.id
}

// State returns the worker's current lifecycle state.
func (h *Handle) State() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// transition moves the handle to a new state, returning an error if the
// move is not allowed per model.ValidWorkerTransition.
func (h *Handle) transition(to string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !model.ValidWorkerTransition(h.state, to) {
		return fmt.Errorf("invalid worker transition %s -> %s", h.state, to)
	}
	h.state = to
	return nil
}

// OutstandingCount returns the number of tasks currently dispatched to and
// unresolved on this worker.
func (h *Handle) OutstandingCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.outstanding)
}

// AvailableResources returns capability minus outstanding-task usage,
// floored at zero per spec.md §4.3. The per-task-assumed unit is
// capability/ceiling, so that exactly ceiling outstanding tasks exhaust a
// worker's declared capability.
func (h *Handle) AvailableResources(ceiling int) model.ResourceVector {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ceiling <= 0 {
		ceiling = 1
	}
	perTask := h.capability.Scale(1 / float64(ceiling))
	used := perTask.Scale(float64(len(h.outstanding)))
	return h.capability.Sub(used)
}

// Capability returns the worker's full declared resource vector.
func (h *Handle) Capability() model.ResourceVector {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.capability
}

// Counters returns a snapshot of the handle's liveness/utilization counters.
func (h *Handle) Counters() model.WorkerCounters {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.counters
}

// dispatch registers a task as outstanding and sends it over the
// connection. The caller (scheduler) must have already validated worker
// eligibility; dispatch performs the state transition to Busy if this was
// the worker's first outstanding task.
func (h *Handle) dispatch(task model.Task, deadline time.Duration) (<-chan model.TaskOutcome, error) {
	h.mu.Lock()
	if h.state != model.WorkerIdle && h.state != model.WorkerBusy {
		h.mu.Unlock()
		return nil, fmt.Errorf("worker %s not eligible for dispatch (state=%s)", h.id, h.state)
	}
	wasIdle := h.state == model.WorkerIdle
	pt := &pendingTask{resultCh: make(chan model.TaskOutcome, 1)}
	h.outstanding[task.ID] = pt
	h.counters.LastAssignmentAt = time.Now()
	h.mu.Unlock()

	if wasIdle {
		if err := h.transition(model.WorkerBusy); err != nil {
			return nil, err
		}
	}

	msg := ipc.NewTaskAssignment(ipc.TaskAssignmentBody{
		TaskID:   task.ID,
		Path:     task.Path,
		Method:   task.Method,
		Headers:  task.Headers,
		Body:     task.Body,
		PathArgs: task.PathArgs,
	})
	if err := h.conn.Send(msg); err != nil {
		h.removeOutstanding(task.ID)
		return nil, fmt.Errorf("dispatch to worker %s: %w", h.id, err)
	}

	if deadline > 0 {
		go h.watchDeadline(task.ID, pt, deadline)
	}

	return pt.resultCh, nil
}

// watchDeadline resolves a task with a Deadline outcome if no TaskResult
// arrives within deadline. The worker is not interrupted; its eventual
// TaskResult, if any, finds the id already removed and is discarded.
func (h *Handle) watchDeadline(taskID string, pt *pendingTask, deadline time.Duration) {
	timer := time.NewTimer(deadline)
	defer timer.Stop()
	<-timer.C

	h.mu.Lock()
	_, stillPending := h.outstanding[taskID]
	if stillPending {
		delete(h.outstanding, taskID)
	}
	empty := len(h.outstanding) == 0
	h.mu.Unlock()

	if !stillPending {
		return
	}

	select {
	case pt.resultCh <- model.TaskOutcome{Success: false, Kind: model.ErrorKindDeadline, Error: "deadline exceeded"}:
	default:
	}

	if empty {
		h.transition(model.WorkerIdle)
	}
}

// resolveResult delivers an incoming TaskResult frame to the matching
// pending task, satisfying P1: the future resolves exactly once and the id
// is removed. Results for unknown (already-resolved-by-deadline) ids are
// silently discarded, per spec.md §4.4 cancellation semantics.
func (h *Handle) resolveResult(body *ipc.TaskResultBody) {
	pt := h.removeOutstanding(body.TaskID)
	if pt == nil {
		return
	}

	outcome := model.TaskOutcome{Success: body.Success, Result: body.Result, Error: body.Error}
	if !body.Success {
		outcome.Kind = model.ErrorKindHandler
	}

	select {
	case pt.resultCh <- outcome:
	default:
	}

	h.mu.Lock()
	h.counters.TasksCompleted++
	empty := len(h.outstanding) == 0
	h.mu.Unlock()

	if empty {
		h.transition(model.WorkerIdle)
	}
}

// removeOutstanding deletes and returns the pending task for id, if present.
func (h *Handle) removeOutstanding(id string) *pendingTask {
	h.mu.Lock()
	defer h.mu.Unlock()
	pt, ok := h.outstanding[id]
	if !ok {
		return nil
	}
	delete(h.outstanding, id)
	return pt
}

// failAllOutstanding resolves every outstanding task with a worker-death
// outcome, used when the worker is marked Exited.
func (h *Handle) failAllOutstanding() {
	h.mu.Lock()
	pending := h.outstanding
	h.outstanding = make(map[string]*pendingTask)
	h.mu.Unlock()

	for _, pt := range pending {
		select {
		case pt.resultCh <- model.TaskOutcome{Success: false, Kind: model.ErrorKindWorkerDeath, Error: "worker died mid-task"}:
		default:
		}
	}
}

// markExited transitions the handle to Exited and fails any outstanding
// tasks with a worker-death outcome.
func (h *Handle) markExited() {
	h.mu.Lock()
	h.state = model.WorkerExited
	h.mu.Unlock()
	h.failAllOutstanding()
}

// shouldRecycle reports whether any recycling threshold has been crossed.
func (h *Handle) shouldRecycle(r int64, m int64, t time.Duration) bool {
	c := h.Counters()
	return c.TasksCompleted >= r || c.ResidentMemoryMB >= m || c.Age() >= t
}
