package model

// Task carries everything the scheduler and worker need to execute one
// HTTP-triggered unit of work. A task is assigned to exactly one worker and
// is never retried internally.
type Task struct {
	ID        string
	Method    string
	Path      string // matched route template, not the raw request target
	Headers   map[string][]string
	Body      []byte
	PathArgs  map[string]string
	Resources ResourceVector
}

// TaskOutcome is the terminal disposition of a task as observed by the
// scheduler, independent of how it got there (result frame, worker death,
// or deadline expiry).
type TaskOutcome struct {
	Success bool
	Result  []byte // JSON-encoded result, present iff Success
	Error   string
	Kind    string // "handler", "worker-death", "deadline", "routing"
}

// Error kinds surfaced in HTTP error bodies ({"error_kind":..., "detail":...}).
const (
	ErrorKindHandler     = "handler"
	ErrorKindWorkerDeath = "worker-death"
	ErrorKindDeadline    = "deadline"
	ErrorKindRouting     = "routing"
	ErrorKindCapacity    = "capacity"
	ErrorKindTransport   = "transport"
)
