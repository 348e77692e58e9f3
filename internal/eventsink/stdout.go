package eventsink

import (
	"context"
	"log/slog"
)

// Compile-time interface satisfaction check.
var _ Sink = (*LogSink)(nil)

// LogSink records task events as structured log lines. It is the default
// sink when no database file is configured, so the orchestrator never
// requires a database just to start.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink that writes one log line per task event.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Record logs the event at info level.
func (s *LogSink) Record(ctx context.Context, evt TaskEvent) error {
	s.logger.Info("task_event",
		"task_id", evt.TaskID,
		"worker_id", evt.WorkerID,
		"method", evt.Method,
		"path", evt.Path,
		"success", evt.Success,
		"error_kind", evt.ErrorKind,
		"duration_ms", evt.DurationMS,
	)
	return nil
}

// Close is a no-op; LogSink owns no resources.
func (s *LogSink) Close() error {
	return nil
}
