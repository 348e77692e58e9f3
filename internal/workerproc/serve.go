// Package workerproc implements the worker process side of spec.md §4.2's
// serve loop: connect, announce readiness, optionally register routes, then
// read task assignments one frame at a time until asked to shut down.
package workerproc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/neutrino-sh/neutrino/internal/ipc"
	"github.com/neutrino-sh/neutrino/internal/procstat"
	"github.com/neutrino-sh/neutrino/internal/userprogram"
)

// bytesResultKey wraps raw byte handler results so they remain
// distinguishable from a JSON object that happens to be the real return
// value (Open Question 3 decision).
const bytesResultKey = "$bytes"

// Server runs one worker process's serve loop against a single connection.
type Server struct {
	conn     *ipc.Conn
	program  *userprogram.Program
	workerID string
	logger   *slog.Logger

	heartbeatInterval time.Duration
	taskTimeout       time.Duration

	tasksCompleted atomic.Int64
}

// Config configures a worker serve loop.
type Config struct {
	WorkerID          string
	HeartbeatInterval time.Duration
	TaskTimeout       time.Duration
}

// New creates a worker server bound to conn, serving handlers from program.
func New(conn *ipc.Conn, program *userprogram.Program, cfg Config, logger *slog.Logger) *Server {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 5 * time.Second
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 30 * time.Second
	}
	return &Server{
		conn:              conn,
		program:           program,
		workerID:          cfg.WorkerID,
		logger:            logger,
		heartbeatInterval: cfg.HeartbeatInterval,
		taskTimeout:       cfg.TaskTimeout,
	}
}

// Serve announces readiness, optionally registers routes, then processes
// frames until Shutdown or a read error. It returns nil on a graceful
// shutdown and a non-nil error on transport failure (the caller should
// exit non-zero in the latter case, per the worker launch contract).
func (s *Server) Serve(ctx context.Context, discover bool) error {
	if err := s.conn.Send(ipc.NewWorkerReady(s.workerID, os.Getpid())); err != nil {
		return fmt.Errorf("send WorkerReady: %w", err)
	}

	if discover {
		if err := s.conn.Send(ipc.NewRouteRegistry(routeEntries(s.program.Routes()))); err != nil {
			return fmt.Errorf("send RouteRegistry: %w", err)
		}
	}

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go s.heartbeatLoop(hbCtx)

	for {
		msg, err := s.conn.Recv()
		if err != nil {
			return fmt.Errorf("recv frame: %w", err)
		}

		switch msg.Tag {
		case ipc.TagTaskAssignment:
			s.handleTaskAssignment(ctx, msg.TaskAssignment)
		case ipc.TagShutdown:
			if msg.Shutdown != nil && msg.Shutdown.Graceful {
				s.logger.Info("graceful shutdown requested")
				return nil
			}
			s.logger.Info("immediate shutdown requested")
			return nil
		default:
			return fmt.Errorf("unknown message tag: %q", msg.Tag)
		}
	}
}

func (s *Server) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(s.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rssMB, err := procstat.ResidentMemoryMB(os.Getpid())
			if err != nil {
				rssMB = 0
			}
			hb := ipc.NewHeartbeat(s.workerID, s.tasksCompleted.Load(), rssMB)
			if err := s.conn.Send(hb); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleTaskAssignment(ctx context.Context, ta *ipc.TaskAssignmentBody) {
	if ta == nil {
		return
	}

	taskCtx, cancel := context.WithTimeout(ctx, s.taskTimeout)
	defer cancel()

	args := decodeArgs(ta)

	result, err := s.program.Invoke(taskCtx, ta.Method, ta.Path, args)
	s.tasksCompleted.Add(1)
	s.sendResult(ta.TaskID, result, err)
}

// routeEntries groups a program's (method, pattern) pairs by path for the
// RouteRegistry frame, one entry per path with its full method set.
func routeEntries(routes []userprogram.Route) []ipc.RouteEntry {
	methodsByPath := make(map[string][]string)
	var order []string
	for _, r := range routes {
		if _, seen := methodsByPath[r.Pattern]; !seen {
			order = append(order, r.Pattern)
		}
		methodsByPath[r.Pattern] = append(methodsByPath[r.Pattern], r.Method)
	}

	entries := make([]ipc.RouteEntry, 0, len(order))
	for _, path := range order {
		entries = append(entries, ipc.RouteEntry{Path: path, Methods: methodsByPath[path]})
	}
	return entries
}

func decodeArgs(ta *ipc.TaskAssignmentBody) userprogram.Args {
	args := userprogram.Args{PathArgs: ta.PathArgs}

	if len(ta.Body) == 0 {
		args.Body = map[string]any{}
		return args
	}

	var body map[string]any
	if err := json.Unmarshal(ta.Body, &body); err == nil {
		args.Body = body
		return args
	}

	args.Body = map[string]any{bytesResultKey: base64.StdEncoding.EncodeToString(ta.Body)}
	return args
}

func (s *Server) sendResult(taskID string, result any, err error) {
	if err != nil {
		if sendErr := s.conn.Send(ipc.NewTaskResultErr(taskID, err.Error())); sendErr != nil {
			s.logger.Error("send task result", "error", sendErr)
		}
		return
	}

	encoded, encErr := encodeResult(result)
	if encErr != nil {
		if sendErr := s.conn.Send(ipc.NewTaskResultErr(taskID, encErr.Error())); sendErr != nil {
			s.logger.Error("send task result", "error", sendErr)
		}
		return
	}

	if sendErr := s.conn.Send(ipc.NewTaskResultOK(taskID, encoded)); sendErr != nil {
		s.logger.Error("send task result", "error", sendErr)
	}
}

// encodeResult marshals a handler's return value to JSON, wrapping raw
// bytes per the Open Question 3 decision.
func encodeResult(result any) ([]byte, error) {
	if b, ok := result.([]byte); ok {
		return json.Marshal(map[string]string{bytesResultKey: base64.StdEncoding.EncodeToString(b)})
	}
	return json.Marshal(result)
}
