package routetable

import (
	"testing"

	"github.com/neutrino-sh/neutrino/internal/model"
)

const sampleSpec = `{
  "openapi": "3.0.0",
  "paths": {
    "/add": {
      "post": {
        "operationId": "post_add",
        "x-neutrino-resources": {"cpus": 1, "memory_gb": 0.5}
      }
    },
    "/users/{id}": {
      "get": {
        "operationId": "get_user"
      }
    },
    "/train": {
      "post": {
        "operationId": "post_train",
        "x-neutrino-resources": {"gpus": 1}
      }
    }
  }
}`

func TestParseExtractsHandlerNameAndResources(t *testing.T) {
	routes, err := Parse([]byte(sampleSpec))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	byPattern := make(map[string]model.Route)
	for _, r := range routes {
		byPattern[r.Pattern] = r
	}

	add, ok := byPattern["/add"]
	if !ok {
		t.Fatal("missing /add route")
	}
	if add.HandlerName != "add" {
		t.Errorf("HandlerName = %q, want %q", add.HandlerName, "add")
	}
	if add.Resources.CPUs != 1 || add.Resources.MemoryGB != 0.5 {
		t.Errorf("Resources = %+v", add.Resources)
	}

	user, ok := byPattern["/users/{id}"]
	if !ok {
		t.Fatal("missing /users/{id} route")
	}
	if user.HandlerName != "user" {
		t.Errorf("HandlerName = %q, want %q", user.HandlerName, "user")
	}
	if user.Resources != model.DefaultResourceVector {
		t.Errorf("Resources = %+v, want default %+v", user.Resources, model.DefaultResourceVector)
	}

	train, ok := byPattern["/train"]
	if !ok {
		t.Fatal("missing /train route")
	}
	if train.Resources.GPUs != 1 {
		t.Errorf("Resources.GPUs = %v, want 1", train.Resources.GPUs)
	}
}

func TestParseOrdersLongestPatternFirst(t *testing.T) {
	routes, err := Parse([]byte(sampleSpec))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	for i := 1; i < len(routes); i++ {
		if len(routes[i-1].Pattern) < len(routes[i].Pattern) {
			t.Errorf("routes not ordered longest-first: %q before %q", routes[i-1].Pattern, routes[i].Pattern)
		}
	}
}

func TestExtractHandlerNameNoPrefix(t *testing.T) {
	if got := extractHandlerName("add"); got != "add" {
		t.Errorf("extractHandlerName(%q) = %q, want %q", "add", got, "add")
	}
}
