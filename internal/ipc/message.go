// Package ipc implements the framed local-socket protocol between the
// orchestrator and its worker processes: a 4-byte big-endian length prefix
// followed by a JSON-encoded tagged envelope.
package ipc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// MaxFrameSize is the maximum allowed frame payload (16 MiB). Larger frames
// are a protocol error and close the connection.
const MaxFrameSize = 16 << 20

// Message tags, the outer discriminator of every frame.
const (
	TagWorkerReady    = "WorkerReady"
	TagRouteRegistry  = "RouteRegistry"
	TagHeartbeat      = "Heartbeat"
	TagTaskAssignment = "TaskAssignment"
	TagTaskResult     = "TaskResult"
	TagShutdown       = "Shutdown"
)

// WorkerReadyBody announces a worker's identity after it has connected.
type WorkerReadyBody struct {
	WorkerID string `json:"worker_id"`
	PID      int    `json:"pid"`
}

// RouteEntry is one path's declared methods, as sent by a discovery worker.
type RouteEntry struct {
	Path    string   `json:"path"`
	Methods []string `json:"methods"`
}

// RouteRegistryBody is sent once by a discovery worker after loading the
// user program, enumerating every route it found.
type RouteRegistryBody struct {
	Routes []RouteEntry `json:"routes"`
}

// HeartbeatBody reports liveness counters since the previous heartbeat.
type HeartbeatBody struct {
	WorkerID         string `json:"worker_id"`
	TasksCompleted   int64  `json:"tasks_completed"`
	ResidentMemoryMB int64  `json:"resident_memory_mb"`
}

// TaskAssignmentBody dispatches one task to a worker.
type TaskAssignmentBody struct {
	TaskID   string              `json:"task_id"`
	Path     string              `json:"path"`
	Method   string              `json:"method"`
	Headers  map[string][]string `json:"headers,omitempty"`
	Body     []byte              `json:"body,omitempty"`
	PathArgs map[string]string   `json:"path_args,omitempty"`
}

// TaskResultBody is the worker's terminal response to a TaskAssignment.
type TaskResultBody struct {
	TaskID  string `json:"task_id"`
	Success bool   `json:"success"`
	Result  []byte `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ShutdownBody requests that the worker stop serving.
type ShutdownBody struct {
	Graceful bool `json:"graceful"`
}

// Message is the envelope carried over the wire: exactly one of the body
// fields is populated, selected by Tag.
type Message struct {
	Tag string `json:"tag"`

	WorkerReady    *WorkerReadyBody    `json:"worker_ready,omitempty"`
	RouteRegistry  *RouteRegistryBody  `json:"route_registry,omitempty"`
	Heartbeat      *HeartbeatBody      `json:"heartbeat,omitempty"`
	TaskAssignment *TaskAssignmentBody `json:"task_assignment,omitempty"`
	TaskResult     *TaskResultBody     `json:"task_result,omitempty"`
	Shutdown       *ShutdownBody       `json:"shutdown,omitempty"`
}

// NewWorkerReady builds a WorkerReady message.
func NewWorkerReady(workerID string, pid int) Message {
	return Message{Tag: TagWorkerReady, WorkerReady: &WorkerReadyBody{WorkerID: workerID, PID: pid}}
}

// NewRouteRegistry builds a RouteRegistry message.
func NewRouteRegistry(routes []RouteEntry) Message {
	return Message{Tag: TagRouteRegistry, RouteRegistry: &RouteRegistryBody{Routes: routes}}
}

// NewHeartbeat builds a Heartbeat message.
func NewHeartbeat(workerID string, tasksCompleted, residentMemoryMB int64) Message {
	return Message{Tag: TagHeartbeat, Heartbeat: &HeartbeatBody{
		WorkerID:         workerID,
		TasksCompleted:   tasksCompleted,
		ResidentMemoryMB: residentMemoryMB,
	}}
}

// NewTaskAssignment builds a TaskAssignment message.
func NewTaskAssignment(b TaskAssignmentBody) Message {
	return Message{Tag: TagTaskAssignment, TaskAssignment: &b}
}

// NewTaskResultOK builds a successful TaskResult message.
func NewTaskResultOK(taskID string, result []byte) Message {
	return Message{Tag: TagTaskResult, TaskResult: &TaskResultBody{TaskID: taskID, Success: true, Result: result}}
}

// NewTaskResultErr builds a failed TaskResult message.
func NewTaskResultErr(taskID, errMsg string) Message {
	return Message{Tag: TagTaskResult, TaskResult: &TaskResultBody{TaskID: taskID, Success: false, Error: errMsg}}
}

// NewShutdown builds a Shutdown message.
func NewShutdown(graceful bool) Message {
	return Message{Tag: TagShutdown, Shutdown: &ShutdownBody{Graceful: graceful}}
}

// WriteFrame writes a length-prefixed JSON message to w.
// Frame format: 4-byte big-endian length prefix followed by the JSON payload.
func WriteFrame(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	length := uint32(len(data))
	if err := binary.Write(w, binary.BigEndian, length); err != nil {
		return fmt.Errorf("write length prefix: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}

	return nil
}

// ReadFrame reads a length-prefixed JSON message from r and decodes it into v.
func ReadFrame(r io.Reader, v any) error {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return fmt.Errorf("read length prefix: %w", err)
	}

	if length > MaxFrameSize {
		return fmt.Errorf("frame size %d exceeds maximum %d", length, MaxFrameSize)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return fmt.Errorf("read payload: %w", err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal frame: %w", err)
	}

	return nil
}
