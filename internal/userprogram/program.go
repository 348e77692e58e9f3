// Package userprogram stands in for the spec's dynamically-loaded
// "module:attribute" user program. Go has no runtime load-by-string-name
// without cgo or the plugin package (which requires shared-object builds
// this repo has no use for), so the worker binary instead links against a
// small self-registering route table, resolved by entry identifier at
// startup the same way the teacher's cmd/testserver registers stub
// backends.
package userprogram

import (
	"context"
	"fmt"
)

// Args is the decoded argument map a handler receives: path parameters
// bound separately (per the Open Question decision to keep path_args out
// of the body map) plus the request body decoded as a map, or a single
// "$bytes" entry if the body was not a JSON object.
type Args struct {
	PathArgs map[string]string
	Body     map[string]any
}

// Handler is one user-defined function bound to a (method, path-template)
// pair. It returns a JSON-marshalable result, or an error if it failed.
type Handler func(ctx context.Context, args Args) (any, error)

type routeKey struct {
	method  string
	pattern string
}

// Program is the user program's own route table, as the worker loads it:
// a set of handlers bound to (method, path-template) pairs, mirroring the
// decorator-style registration a real user program would use. The task
// assignment's path is always the matched template, never the raw request
// target, so lookup here is an exact map hit rather than pattern matching.
type Program struct {
	name   string
	routes map[routeKey]Handler
}

// New creates an empty program under the given entry identifier.
func New(name string) *Program {
	return &Program{name: name, routes: make(map[routeKey]Handler)}
}

// Name returns the program's entry identifier.
func (p *Program) Name() string { return p.name }

// Register binds a handler to a (method, path-template) pair. Called
// during program construction, before the program is handed to the
// worker's serve loop.
func (p *Program) Register(method, pattern string, h Handler) {
	p.routes[routeKey{method: method, pattern: pattern}] = h
}

// ErrHandlerNotFound is returned by Invoke when no handler is bound to the
// given (method, path) pair.
var ErrHandlerNotFound = fmt.Errorf("handler not found")

// Invoke looks up the handler bound to (method, path) and calls it with args.
func (p *Program) Invoke(ctx context.Context, method, path string, args Args) (any, error) {
	h, ok := p.routes[routeKey{method: method, pattern: path}]
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", ErrHandlerNotFound, method, path)
	}
	return h(ctx, args)
}

// Route is one (method, path-template) pair this program has a handler for.
type Route struct {
	Method  string
	Pattern string
}

// Routes returns every (method, path-template) pair this program has a
// handler for, one element per pair, in no particular order. Grouping by
// path for the RouteRegistry frame is done by the worker's serve loop.
func (p *Program) Routes() []Route {
	routes := make([]Route, 0, len(p.routes))
	for key := range p.routes {
		routes = append(routes, Route{Method: key.method, Pattern: key.pattern})
	}
	return routes
}
