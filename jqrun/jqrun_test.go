package jqrun

import "testing"

func TestRunSimpleProjection(t *testing.T) {
	v, err := Run(".a.b", map[string]any{"a": map[string]any{"b": 5}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 5 {
		t.Fatalf("expected 5, got %v", v)
	}
}

func TestRunConstruction(t *testing.T) {
	v, err := Run(`{sum: (.x + .y)}`, map[string]any{"x": 2, "y": 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m, ok := v.(map[string]any)
	if !ok || m["sum"] != 5 {
		t.Fatalf("unexpected result: %v", v)
	}
}

func TestRunCompileError(t *testing.T) {
	if _, err := Run("not valid jq ((", nil); err == nil {
		t.Fatal("expected compile error")
	}
}

func TestRunNoOutput(t *testing.T) {
	v, err := Run("empty", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != nil {
		t.Fatalf("expected nil result for empty program, got %v", v)
	}
}
