package gateway

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/neutrino-sh/neutrino/internal/model"
	"github.com/neutrino-sh/neutrino/internal/routetable"
)

// Proxy forwards incoming HTTP requests to the backend selected for their
// route's resource requirement, retrying against the next candidate on
// connection failure and giving up with 503 once candidates are exhausted.
type Proxy struct {
	pool    *Pool
	table   *routetable.Table
	client  *http.Client
	access  *logrus.Logger
	cfg     defaultRoute
	slogger *slog.Logger
}

type defaultRoute struct {
	backendID string
	behavior  string // "proxy" or "404"
}

// NewProxy builds a Proxy. access receives one structured entry per
// proxied request (selected endpoint, requirement vector, status,
// duration), standing in for the original's SQLite request log — this
// repo's durable store is scoped out of the core, so the access log is the
// carrier instead, per SPEC_FULL.md's supplemented-feature decision.
func NewProxy(pool *Pool, table *routetable.Table, defaultBackendID, defaultBehavior string, logger *slog.Logger) *Proxy {
	access := logrus.New()
	access.SetFormatter(&logrus.JSONFormatter{})

	return &Proxy{
		pool:    pool,
		table:   table,
		client:  &http.Client{Timeout: 30 * time.Second},
		access:  access,
		cfg:     defaultRoute{backendID: defaultBackendID, behavior: defaultBehavior},
		slogger: logger,
	}
}

// ServeHTTP implements spec.md §4.7's per-request selection and forwarding.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	route, _, err := p.table.Match(r.Method, r.URL.Path)
	if err != nil {
		p.serveUnmatched(w, r, start)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 16<<20))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	tried := make(map[string]bool)
	for {
		backend, err := p.pool.Select(route.Resources)
		if err != nil {
			p.logAccess("", route.Resources, http.StatusServiceUnavailable, time.Since(start), err)
			http.Error(w, "no backend has capacity", http.StatusServiceUnavailable)
			return
		}
		if tried[backend.ID] {
			p.logAccess(backend.ID, route.Resources, http.StatusServiceUnavailable, time.Since(start), ErrNoBackend)
			http.Error(w, "no backend has capacity", http.StatusServiceUnavailable)
			return
		}
		tried[backend.ID] = true

		status, ok := p.forward(w, r, backend, body)
		if ok {
			p.logAccess(backend.ID, route.Resources, status, time.Since(start), nil)
			return
		}
		p.pool.MarkUnhealthy(backend.ID)
	}
}

// serveUnmatched handles paths outside the route table: proxy verbatim to
// the configured default backend, or 404, per the default-route-behavior
// supplemented feature.
func (p *Proxy) serveUnmatched(w http.ResponseWriter, r *http.Request, start time.Time) {
	if p.cfg.behavior == "404" || p.cfg.backendID == "" {
		http.NotFound(w, r)
		return
	}

	for _, b := range p.pool.snapshotBackends() {
		if b.ID != p.cfg.backendID {
			continue
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, 16<<20))
		if err != nil {
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			return
		}
		status, ok := p.forward(w, r, b, body)
		if ok {
			p.logAccess(b.ID, model.ResourceVector{}, status, time.Since(start), nil)
			return
		}
	}
	http.Error(w, "default backend unavailable", http.StatusBadGateway)
}

// forward issues the proxied request against one backend and copies its
// response through. It returns ok=false on a connection-level failure so
// the caller can retry the next candidate.
func (p *Proxy) forward(w http.ResponseWriter, r *http.Request, b *Backend, body []byte) (int, bool) {
	target := "http://" + b.Addr + r.URL.Path
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	req, err := http.NewRequestWithContext(r.Context(), r.Method, target, bytes.NewReader(body))
	if err != nil {
		return 0, false
	}
	for key, values := range r.Header {
		if key == "Host" || key == "Content-Length" {
			continue
		}
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.slogger.Warn("proxy request failed", "backend", b.ID, "error", err)
		return 0, false
	}
	defer resp.Body.Close()

	for key, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
	return resp.StatusCode, true
}

func (p *Proxy) logAccess(backendID string, req model.ResourceVector, status int, duration time.Duration, err error) {
	entry := p.access.WithFields(logrus.Fields{
		"backend":     backendID,
		"cpus":        req.CPUs,
		"gpus":        req.GPUs,
		"memory_gb":   req.MemoryGB,
		"status":      status,
		"duration_ms": strconv.FormatInt(duration.Milliseconds(), 10),
	})
	if err != nil {
		entry.WithError(err).Warn("proxy request")
		return
	}
	entry.Info("proxy request")
}
