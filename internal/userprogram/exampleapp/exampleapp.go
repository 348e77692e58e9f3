// Package exampleapp is the reference user program used in this repo's
// end-to-end tests, implementing handlers for spec.md §8's concrete
// scenarios: a healthy "add", a deliberately failing "boom", a path-parameter
// "users/{id}", and a "train" route.
package exampleapp

import (
	"context"
	"fmt"

	"github.com/neutrino-sh/neutrino/internal/userprogram"
)

const EntryID = "exampleapp:app"

func init() {
	userprogram.Register(EntryID, New)
}

// New builds the example program.
func New() *userprogram.Program {
	p := userprogram.New(EntryID)
	p.Register("POST", "/add", handleAdd)
	p.Register("POST", "/boom", handleBoom)
	p.Register("GET", "/users/{id}", handleUser)
	p.Register("POST", "/train", handleTrain)
	return p
}

func handleAdd(ctx context.Context, args userprogram.Args) (any, error) {
	x, err := asNumber(args.Body["x"])
	if err != nil {
		return nil, fmt.Errorf("x: %w", err)
	}
	y, err := asNumber(args.Body["y"])
	if err != nil {
		return nil, fmt.Errorf("y: %w", err)
	}
	return map[string]any{"result": x + y}, nil
}

func handleBoom(ctx context.Context, args userprogram.Args) (any, error) {
	return nil, fmt.Errorf("boom")
}

func handleUser(ctx context.Context, args userprogram.Args) (any, error) {
	return map[string]any{"id": args.PathArgs["id"]}, nil
}

func handleTrain(ctx context.Context, args userprogram.Args) (any, error) {
	return map[string]any{"status": "accepted"}, nil
}

func asNumber(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("not a number: %v", v)
	}
}
