package routetable

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/neutrino-sh/neutrino/internal/model"
)

// resourcesExtensionKey is the well-known extension holding per-operation
// resource requirements. The original interface description used a
// language-specific prefix; this repo accepts either spelling.
const (
	resourcesExtensionKey    = "x-neutrino-resources"
	legacyResourcesExtension = "x-resources"
)

// doc mirrors the subset of an OpenAPI-shaped document this loader cares
// about: paths, methods, operationId, and the resources extension.
type doc struct {
	OpenAPI string              `json:"openapi"`
	Paths   map[string]pathItem `json:"paths"`
}

type pathItem struct {
	Get    *operation `json:"get"`
	Post   *operation `json:"post"`
	Put    *operation `json:"put"`
	Patch  *operation `json:"patch"`
	Delete *operation `json:"delete"`
}

func (p pathItem) byMethod() map[string]*operation {
	return map[string]*operation{
		"GET":    p.Get,
		"POST":   p.Post,
		"PUT":    p.Put,
		"PATCH":  p.Patch,
		"DELETE": p.Delete,
	}
}

type operation struct {
	OperationID string          `json:"operationId"`
	Resources   json.RawMessage `json:"x-neutrino-resources"`
	LegacyRes   json.RawMessage `json:"x-resources"`
}

type resourcesExt struct {
	CPUs     *float64 `json:"cpus"`
	GPUs     *float64 `json:"gpus"`
	MemoryGB *float64 `json:"memory_gb"`
}

// handlerNamePrefixes are stripped from operationId when deriving the
// handler name, mirroring the original's extract_handler_name convention
// of a method-prefixed operation id (e.g. "get_user" -> "user").
var handlerNamePrefixes = []string{"get_", "post_", "put_", "patch_", "delete_"}

// Load reads an OpenAPI-shaped document from path and returns the ordered
// set of routes it declares. Declaration order within a path follows the
// fixed method order GET, POST, PUT, PATCH, DELETE; paths are otherwise
// emitted in the order they iterate from the decoded map, then stably
// sorted by longest-literal-prefix per spec.md's matching rule.
func Load(path string) ([]model.Route, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read route spec: %w", err)
	}
	return Parse(data)
}

// Parse decodes raw OpenAPI-shaped JSON bytes into the route table's entries.
func Parse(data []byte) ([]model.Route, error) {
	var d doc
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode route spec: %w", err)
	}

	var routes []model.Route
	for path, item := range d.Paths {
		for _, method := range []string{"GET", "POST", "PUT", "PATCH", "DELETE"} {
			op := item.byMethod()[method]
			if op == nil {
				continue
			}

			res, err := extractResources(op)
			if err != nil {
				return nil, fmt.Errorf("route %s %s: %w", method, path, err)
			}

			routes = append(routes, model.Route{
				Method:      method,
				Pattern:     path,
				HandlerName: extractHandlerName(op.OperationID),
				Resources:   res,
			})
		}
	}

	literalPrefixLen := func(pattern string) int {
		if i := strings.Index(pattern, "{"); i >= 0 {
			return i
		}
		return len(pattern)
	}
	sort.SliceStable(routes, func(i, j int) bool {
		return literalPrefixLen(routes[i].Pattern) > literalPrefixLen(routes[j].Pattern)
	})

	return routes, nil
}

// extractResources decodes the resources extension, defaulting any absent
// field to the spec's {cpus:1, gpus:0, memory_gb:1} vector.
func extractResources(op *operation) (model.ResourceVector, error) {
	raw := op.Resources
	if len(raw) == 0 {
		raw = op.LegacyRes
	}
	if len(raw) == 0 {
		return model.DefaultResourceVector, nil
	}

	var ext resourcesExt
	if err := json.Unmarshal(raw, &ext); err != nil {
		return model.ResourceVector{}, fmt.Errorf("decode resources extension: %w", err)
	}

	res := model.DefaultResourceVector
	if ext.CPUs != nil {
		res.CPUs = *ext.CPUs
	}
	if ext.GPUs != nil {
		res.GPUs = *ext.GPUs
	}
	if ext.MemoryGB != nil {
		res.MemoryGB = *ext.MemoryGB
	}
	return res, nil
}

// extractHandlerName strips a conventional method prefix from operationId.
// An empty operationId yields an empty handler name; the path is not used.
func extractHandlerName(operationID string) string {
	for _, prefix := range handlerNamePrefixes {
		if strings.HasPrefix(operationID, prefix) {
			return strings.TrimPrefix(operationID, prefix)
		}
	}
	return operationID
}
