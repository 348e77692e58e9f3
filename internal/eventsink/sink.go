// Package eventsink defines a pluggable record of completed tasks. The
// orchestrator's dispatch path is never blocked on durable storage — a
// sink records what already happened, it never gates whether it happens.
package eventsink

import (
	"context"
	"time"
)

// TaskEvent is one task's terminal disposition, recorded after the
// HTTP front-end has already responded to the caller.
type TaskEvent struct {
	TaskID     string
	WorkerID   string
	Method     string
	Path       string
	Success    bool
	ErrorKind  string
	DurationMS int64
	FinishedAt time.Time
}

// Sink persists task events. Implementations must not block the dispatch
// path on slow storage; Record is called from a detached goroutine by
// callers in internal/httpapi.
type Sink interface {
	Record(ctx context.Context, evt TaskEvent) error
	Close() error
}

// Stats holds aggregate counts over recorded events.
type Stats struct {
	Total         int            `json:"total"`
	CountByKind   map[string]int `json:"count_by_kind"`
	AvgDurationMS float64        `json:"avg_duration_ms"`
}
