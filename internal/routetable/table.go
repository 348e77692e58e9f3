package routetable

import (
	"fmt"
	"strings"

	"github.com/neutrino-sh/neutrino/internal/model"
)

// Table is the immutable, read-only-after-construction route table shared
// by the HTTP front-end and the gateway. Matching is exact on method;
// longest-literal-prefix first, then declared order, on path.
type Table struct {
	routes   []model.Route
	byMethod map[string][]model.Route
}

// New builds a Table from an already-decoded, longest-prefix-sorted route
// slice (see Load/Parse).
func New(routes []model.Route) *Table {
	t := &Table{
		routes:   routes,
		byMethod: make(map[string][]model.Route),
	}
	for _, r := range routes {
		t.byMethod[r.Method] = append(t.byMethod[r.Method], r)
	}
	return t
}

// Routes returns every route in the table, in matching order.
func (t *Table) Routes() []model.Route {
	return t.routes
}

// ErrUnknownPath and ErrMethodNotAllowed distinguish the two routing
// failure modes the HTTP front-end maps to 404 and 405 respectively.
var (
	ErrUnknownPath      = fmt.Errorf("unknown path")
	ErrMethodNotAllowed = fmt.Errorf("method not allowed")
)

// Match finds the route whose pattern matches path for the given method,
// and returns the extracted named path parameters. If no pattern matches
// path under any method, ErrUnknownPath is returned; if a pattern matches
// under a different method, ErrMethodNotAllowed is returned.
func (t *Table) Match(method, path string) (model.Route, map[string]string, error) {
	var pathMatchedOtherMethod bool

	for _, r := range t.routes {
		args, ok := matchPattern(r.Pattern, path)
		if !ok {
			continue
		}
		if r.Method == method {
			return r, args, nil
		}
		pathMatchedOtherMethod = true
	}

	if pathMatchedOtherMethod {
		return model.Route{}, nil, ErrMethodNotAllowed
	}
	return model.Route{}, nil, ErrUnknownPath
}

// matchPattern tests a chi-style "{name}" pattern against a concrete path,
// returning the bound named segments.
func matchPattern(pattern, path string) (map[string]string, bool) {
	patSegs := strings.Split(strings.Trim(pattern, "/"), "/")
	pathSegs := strings.Split(strings.Trim(path, "/"), "/")
	if len(patSegs) != len(pathSegs) {
		return nil, false
	}

	args := make(map[string]string)
	for i, seg := range patSegs {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			name := strings.TrimSuffix(strings.TrimPrefix(seg, "{"), "}")
			args[name] = pathSegs[i]
			continue
		}
		if seg != pathSegs[i] {
			return nil, false
		}
	}
	return args, true
}
