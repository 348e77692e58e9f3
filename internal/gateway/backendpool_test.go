package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/neutrino-sh/neutrino/internal/config"
	"github.com/neutrino-sh/neutrino/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func capacityServer(t *testing.T, available, total model.ResourceVector) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := capacityResponse{
			Available: resourceVectorWire{available.CPUs, available.GPUs, available.MemoryGB},
			Total:     resourceVectorWire{total.CPUs, total.GPUs, total.MemoryGB},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func addrOf(srv *httptest.Server) string {
	return srv.Listener.Addr().String()
}

func TestBackendHasCapacityAfterSuccessfulPoll(t *testing.T) {
	b := newBackend("a", "unused")
	if b.hasCapacity(model.ResourceVector{CPUs: 1}) {
		t.Fatal("fresh backend should have no declared capacity")
	}

	b.recordSuccess(capacityResponse{
		Available: resourceVectorWire{CPUs: 2, GPUs: 1, MemoryGB: 4},
		Total:     resourceVectorWire{CPUs: 2, GPUs: 1, MemoryGB: 4},
	})

	if !b.hasCapacity(model.ResourceVector{CPUs: 1, GPUs: 1}) {
		t.Error("expected backend to have capacity for {cpus:1, gpus:1}")
	}
	if b.hasCapacity(model.ResourceVector{CPUs: 3}) {
		t.Error("backend should not dominate a requirement exceeding its available vector")
	}
}

func TestBackendUnhealthyAfterThreeConsecutiveFailures(t *testing.T) {
	b := newBackend("a", "unused")
	b.recordSuccess(capacityResponse{Available: resourceVectorWire{CPUs: 1}, Total: resourceVectorWire{CPUs: 1}})

	b.recordFailure()
	if !b.snapshot().healthy {
		t.Fatal("backend should remain healthy after 1 failure")
	}
	b.recordFailure()
	if !b.snapshot().healthy {
		t.Fatal("backend should remain healthy after 2 failures")
	}
	b.recordFailure()
	if b.snapshot().healthy {
		t.Fatal("backend should be unhealthy after 3 consecutive failures")
	}
}

func TestBackendSuccessResetsErrorCount(t *testing.T) {
	b := newBackend("a", "unused")
	b.recordFailure()
	b.recordFailure()
	b.recordSuccess(capacityResponse{Available: resourceVectorWire{CPUs: 1}, Total: resourceVectorWire{CPUs: 1}})
	b.recordFailure()
	b.recordFailure()
	if !b.snapshot().healthy {
		t.Fatal("error count should have reset after the intervening success")
	}
}

func TestUtilizationSkipsZeroDimensions(t *testing.T) {
	b := newBackend("a", "unused")
	b.recordSuccess(capacityResponse{
		Available: resourceVectorWire{CPUs: 1, GPUs: 0, MemoryGB: 8},
		Total:     resourceVectorWire{CPUs: 4, GPUs: 2, MemoryGB: 8},
	})

	got := b.utilization(model.ResourceVector{CPUs: 1})
	want := 0.75 // (4-1)/4, gpus and memory not required so excluded
	if got != want {
		t.Errorf("utilization() = %v, want %v", got, want)
	}
}

func TestPollOneRecordsSuccessFromHTTPServer(t *testing.T) {
	srv := capacityServer(t, model.ResourceVector{CPUs: 2}, model.ResourceVector{CPUs: 4})
	b := newBackend("a", addrOf(srv))

	p := &Pool{cfg: config.GatewayConfig{}, client: srv.Client(), logger: testLogger(), backends: []*Backend{b}}
	p.pollOne(context.Background(), b)

	if !b.snapshot().healthy {
		t.Fatal("expected backend to be healthy after a successful poll")
	}
	if b.snapshot().available.CPUs != 2 {
		t.Errorf("available.CPUs = %v, want 2", b.snapshot().available.CPUs)
	}
}

func TestSelectPrefersLeastUtilizedHealthyBackend(t *testing.T) {
	a := newBackend("a", "a.internal")
	a.recordSuccess(capacityResponse{Available: resourceVectorWire{GPUs: 1}, Total: resourceVectorWire{GPUs: 1}})
	b := newBackend("b", "b.internal")
	b.recordSuccess(capacityResponse{Available: resourceVectorWire{GPUs: 0}, Total: resourceVectorWire{GPUs: 1}})

	p := &Pool{backends: []*Backend{a, b}}

	got, err := p.Select(model.ResourceVector{GPUs: 1})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got.ID != "a" {
		t.Errorf("Select() = %q, want a", got.ID)
	}
}

func TestSelectFailsWhenNoBackendHasCapacity(t *testing.T) {
	a := newBackend("a", "a.internal")
	a.recordSuccess(capacityResponse{Available: resourceVectorWire{GPUs: 0}, Total: resourceVectorWire{GPUs: 1}})

	p := &Pool{backends: []*Backend{a}}

	if _, err := p.Select(model.ResourceVector{GPUs: 1}); err != ErrNoBackend {
		t.Fatalf("Select() error = %v, want ErrNoBackend", err)
	}
}

func TestSelectIsStableAcrossRepeatedCallsWithNoStateChange(t *testing.T) {
	a := newBackend("a", "a.internal")
	a.recordSuccess(capacityResponse{Available: resourceVectorWire{CPUs: 1}, Total: resourceVectorWire{CPUs: 2}})
	b := newBackend("b", "b.internal")
	b.recordSuccess(capacityResponse{Available: resourceVectorWire{CPUs: 1}, Total: resourceVectorWire{CPUs: 2}})

	p := &Pool{backends: []*Backend{a, b}}

	first, _ := p.Select(model.ResourceVector{CPUs: 1})
	second, _ := p.Select(model.ResourceVector{CPUs: 1})
	if first.ID != second.ID {
		t.Errorf("Select() not stable: first=%s second=%s", first.ID, second.ID)
	}
}

func TestMarkUnhealthyForcesBackendBelowThreshold(t *testing.T) {
	a := newBackend("a", "a.internal")
	a.recordSuccess(capacityResponse{Available: resourceVectorWire{CPUs: 1}, Total: resourceVectorWire{CPUs: 1}})

	p := &Pool{backends: []*Backend{a}}
	p.MarkUnhealthy("a")

	if a.snapshot().healthy {
		t.Fatal("expected backend to be unhealthy after MarkUnhealthy")
	}
}
