package exampleapp

import (
	"context"
	"testing"

	"github.com/neutrino-sh/neutrino/internal/userprogram"
)

func TestAddHandler(t *testing.T) {
	p := New()
	got, err := p.Invoke(context.Background(), "POST", "/add", userprogram.Args{
		Body: map[string]any{"x": float64(2), "y": float64(3)},
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	m := got.(map[string]any)
	if m["result"] != float64(5) {
		t.Errorf("result = %v, want 5", m["result"])
	}
}

func TestBoomHandlerFails(t *testing.T) {
	p := New()
	_, err := p.Invoke(context.Background(), "POST", "/boom", userprogram.Args{})
	if err == nil {
		t.Fatal("expected error from boom handler")
	}
}

func TestUserHandlerReadsPathArgs(t *testing.T) {
	p := New()
	got, err := p.Invoke(context.Background(), "GET", "/users/{id}", userprogram.Args{
		PathArgs: map[string]string{"id": "42"},
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got.(map[string]any)["id"] != "42" {
		t.Errorf("id = %v, want 42", got.(map[string]any)["id"])
	}
}

func TestRegisteredUnderEntryID(t *testing.T) {
	p, err := userprogram.Load(EntryID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Name() != EntryID {
		t.Errorf("Name() = %q, want %q", p.Name(), EntryID)
	}
}
