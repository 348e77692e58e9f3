package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/neutrino-sh/neutrino/internal/eventsink"
	"github.com/neutrino-sh/neutrino/internal/ipc"
	"github.com/neutrino-sh/neutrino/internal/model"
	"github.com/neutrino-sh/neutrino/internal/scheduler"
)

// maxRequestBody mirrors ipc.MaxFrameSize so the HTTP-side body ceiling and
// the IPC frame ceiling agree, per spec.md §8's max+1 boundary behavior.
const maxRequestBody = ipc.MaxFrameSize

// makeDispatchHandler closes over one route's method, pattern, and resource
// requirement, implementing the per-request flow of spec.md §4.5: extract
// path parameters, read the body, build a TaskAssignment, invoke the
// scheduler, map the outcome to a status code.
func (s *Server) makeDispatchHandler(route model.Route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		body, err := readBody(w, r)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				s.writeError(w, http.StatusRequestEntityTooLarge, model.ErrorKindTransport, "request body exceeds max frame size")
				return
			}
			s.writeError(w, http.StatusBadRequest, model.ErrorKindTransport, "request body unreadable")
			return
		}

		task := model.Task{
			ID:        model.NewID(),
			Method:    route.Method,
			Path:      route.Pattern,
			Headers:   r.Header,
			Body:      body,
			PathArgs:  pathParams(r),
			Resources: route.Resources,
		}

		h, err := s.sched.Select(route.Resources)
		if errors.Is(err, scheduler.ErrNoCapacity) {
			w.Header().Set("Retry-After", "1")
			s.writeError(w, http.StatusServiceUnavailable, model.ErrorKindCapacity, "no worker has capacity")
			s.recordOutcome(task, "", false, model.ErrorKindCapacity, start)
			return
		}

		resultCh, err := s.pool.Dispatch(h, task)
		if err != nil {
			s.writeError(w, http.StatusServiceUnavailable, model.ErrorKindWorkerDeath, "dispatch failed")
			s.recordOutcome(task, h.ID(), false, model.ErrorKindWorkerDeath, start)
			return
		}

		select {
		case outcome := <-resultCh:
			s.writeOutcome(w, outcome, start)
			s.recordOutcome(task, h.ID(), outcome.Success, outcome.Kind, start)
		case <-r.Context().Done():
			// Client disconnected; the task stays outstanding on the worker
			// per spec.md §4.4 cancellation semantics — its eventual result
			// is discarded, not acted on here.
			s.recordOutcome(task, h.ID(), false, "client-disconnect", start)
		}
	}
}

func (s *Server) writeOutcome(w http.ResponseWriter, outcome model.TaskOutcome, start time.Time) {
	w.Header().Set("X-Neutrino-Duration-Ms", durationMS(start))

	if outcome.Success {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(outcome.Result)
		return
	}

	switch outcome.Kind {
	case model.ErrorKindDeadline:
		s.writeError(w, http.StatusGatewayTimeout, model.ErrorKindDeadline, outcome.Error)
	case model.ErrorKindWorkerDeath:
		s.writeError(w, http.StatusBadGateway, model.ErrorKindWorkerDeath, outcome.Error)
	default:
		s.writeError(w, http.StatusInternalServerError, model.ErrorKindHandler, outcome.Error)
	}
}

func (s *Server) recordOutcome(task model.Task, workerID string, success bool, kind string, start time.Time) {
	label := kind
	if success {
		label = "success"
	}
	taskDispatchTotal.WithLabelValues(label).Inc()

	if s.sink == nil {
		return
	}
	evt := eventsink.TaskEvent{
		TaskID:     task.ID,
		WorkerID:   workerID,
		Method:     task.Method,
		Path:       task.Path,
		Success:    success,
		ErrorKind:  kind,
		DurationMS: time.Since(start).Milliseconds(),
		FinishedAt: time.Now(),
	}
	go func() {
		if err := s.sink.Record(context.Background(), evt); err != nil {
			s.logger.Warn("record task event", "error", err)
		}
	}()
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	return io.ReadAll(r.Body)
}

// pathParams reads chi's matched URL parameters into a plain map, for the
// TaskAssignment's separate path_args field (Open Question 1 decision).
func pathParams(r *http.Request) map[string]string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return nil
	}
	keys := rctx.URLParams.Keys
	if len(keys) == 0 {
		return nil
	}
	args := make(map[string]string, len(keys))
	for i, k := range keys {
		args[k] = rctx.URLParams.Values[i]
	}
	return args
}

func durationMS(start time.Time) string {
	return strconv.FormatInt(time.Since(start).Milliseconds(), 10)
}
