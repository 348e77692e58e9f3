package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/neutrino-sh/neutrino/internal/eventsink"
	"github.com/neutrino-sh/neutrino/internal/ipc"
	"github.com/neutrino-sh/neutrino/internal/model"
	"github.com/neutrino-sh/neutrino/internal/pool"
	"github.com/neutrino-sh/neutrino/internal/routetable"
	"github.com/neutrino-sh/neutrino/internal/scheduler"
	"github.com/neutrino-sh/neutrino/internal/userprogram"
	"github.com/neutrino-sh/neutrino/internal/workerproc"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testProgram() *userprogram.Program {
	p := userprogram.New("test:app")
	p.Register("POST", "/add", func(ctx context.Context, args userprogram.Args) (any, error) {
		x := args.Body["x"].(float64)
		y := args.Body["y"].(float64)
		return map[string]any{"result": x + y}, nil
	})
	p.Register("POST", "/boom", func(ctx context.Context, args userprogram.Args) (any, error) {
		return nil, errBoom
	})
	p.Register("GET", "/users/{id}", func(ctx context.Context, args userprogram.Args) (any, error) {
		return map[string]any{"id": args.PathArgs["id"]}, nil
	})
	p.Register("POST", "/slow", func(ctx context.Context, args userprogram.Args) (any, error) {
		select {
		case <-ctx.Done():
		case <-time.After(2 * time.Second):
		}
		return map[string]any{"ok": true}, nil
	})
	return p
}

var errBoom = boomError{}

type boomError struct{}

func (boomError) Error() string { return "boom" }

func inProcessSpawner() pool.Spawner {
	return func(ctx context.Context, sockPath, workerID, appEntry string, discover bool) (*exec.Cmd, error) {
		go func() {
			var conn net.Conn
			var err error
			for i := 0; i < 50; i++ {
				conn, err = net.Dial("unix", sockPath)
				if err == nil {
					break
				}
				time.Sleep(5 * time.Millisecond)
			}
			if err != nil {
				return
			}
			srv := workerproc.New(ipc.NewConn(conn), testProgram(), workerproc.Config{
				WorkerID:          workerID,
				HeartbeatInterval: time.Hour,
			}, testLogger())
			srv.Serve(ctx, discover)
		}()
		return nil, nil
	}
}

func testRoutes() []model.Route {
	return []model.Route{
		{Method: "POST", Pattern: "/add", HandlerName: "add", Resources: model.DefaultResourceVector},
		{Method: "POST", Pattern: "/boom", HandlerName: "boom", Resources: model.DefaultResourceVector},
		{Method: "GET", Pattern: "/users/{id}", HandlerName: "get_user", Resources: model.DefaultResourceVector},
	}
}

func newTestServer(t *testing.T, size int) (*Server, *pool.Pool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	p := pool.New(pool.Config{
		Size:             size,
		AppEntry:         "test:app",
		RuntimeDir:       t.TempDir(),
		WorkerCapability: model.DefaultResourceVector,
		TaskDeadline:     2 * time.Second,
	}, inProcessSpawner(), testLogger())

	if _, err := p.Start(ctx); err != nil {
		t.Fatalf("pool.Start: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(p.Idle()) < size && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	table := routetable.New(testRoutes())
	sched := scheduler.New(p, 1)
	sink := eventsink.NewLogSink(testLogger())
	srv := NewServer(":0", table, sched, p, sink, testLogger())
	return srv, p
}

func TestDispatchSuccess(t *testing.T) {
	srv, _ := newTestServer(t, 1)

	req := httptest.NewRequest("POST", "/add", strings.NewReader(`{"x":2,"y":3}`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body = %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Neutrino-Duration-Ms") == "" {
		t.Error("missing X-Neutrino-Duration-Ms header")
	}
	var decoded map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["result"] != float64(5) {
		t.Errorf("result = %v, want 5", decoded["result"])
	}
}

func TestDispatchHandlerFailureReturns500(t *testing.T) {
	srv, _ := newTestServer(t, 1)

	req := httptest.NewRequest("POST", "/boom", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestDispatchPathParamBinding(t *testing.T) {
	srv, _ := newTestServer(t, 1)

	req := httptest.NewRequest("GET", "/users/42", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body = %s", rec.Code, rec.Body.String())
	}
	var decoded map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["id"] != "42" {
		t.Errorf("id = %v, want 42", decoded["id"])
	}
}

func TestUnknownPathReturns404(t *testing.T) {
	srv, _ := newTestServer(t, 1)

	req := httptest.NewRequest("GET", "/nope", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestMethodNotAllowedReturns405(t *testing.T) {
	srv, _ := newTestServer(t, 1)

	req := httptest.NewRequest("GET", "/add", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestNoCapacityReturns503WithRetryAfter(t *testing.T) {
	srv, p := newTestServer(t, 1)

	idle := p.Idle()
	if len(idle) != 1 {
		t.Fatalf("expected 1 idle worker, got %d", len(idle))
	}
	if _, err := p.Dispatch(idle[0], model.Task{ID: "occupy", Method: "POST", Path: "/slow", Body: []byte(`{}`)}); err != nil {
		t.Fatalf("occupying dispatch: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for idle[0].State() != model.WorkerBusy && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	req := httptest.NewRequest("POST", "/add", strings.NewReader(`{"x":2,"y":3}`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503; body = %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
}

func TestHealthReturns200WhenWorkersActive(t *testing.T) {
	srv, _ := newTestServer(t, 1)

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestCapacityReflectsPoolState(t *testing.T) {
	srv, _ := newTestServer(t, 2)

	req := httptest.NewRequest("GET", "/capacity", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var snap capacitySnapshotResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Workers.Total != 2 {
		t.Errorf("Workers.Total = %d, want 2", snap.Workers.Total)
	}
}
