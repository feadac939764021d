package router

import (
	"testing"

	"github.com/dshills/wf-engine/engine"
)

func stateWithInput(input any) engine.WorkflowState {
	return engine.NewState(input)
}

func TestEvalConditionElse(t *testing.T) {
	ok, err := EvalCondition("else", stateWithInput(nil))
	if err != nil || !ok {
		t.Fatalf("expected else to be always true, got %v, %v", ok, err)
	}
}

func TestEvalConditionEquality(t *testing.T) {
	s := stateWithInput(map[string]any{"op": "add"})
	ok, err := EvalCondition(`$input.op == 'add'`, s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected match")
	}
}

func TestEvalConditionArithmeticAndCompare(t *testing.T) {
	s := stateWithInput(map[string]any{"x": 7.0})
	ok, err := EvalCondition(`$input.x + 1 > 5`, s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected 7+1>5 to be true")
	}
}

func TestEvalConditionAndOrNot(t *testing.T) {
	s := stateWithInput(map[string]any{"x": 1.0, "y": 0.0})
	ok, err := EvalCondition(`not ($input.y == 1) and ($input.x == 1 or $input.y == 1)`, s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected compound expression to be true")
	}
}

func TestEvalConditionMissingRefIsFalsyNotFatal(t *testing.T) {
	s := stateWithInput(map[string]any{})
	ok, err := EvalCondition(`$input.missing == 'x'`, s)
	if err != nil {
		t.Fatalf("missing ref must not error: %v", err)
	}
	if ok {
		t.Fatal("expected false for missing ref comparison")
	}
}

func TestEvalConditionRejectsUnsupportedSyntax(t *testing.T) {
	s := stateWithInput(nil)
	if _, err := EvalCondition(`__import__('os')`, s); err == nil {
		t.Fatal("expected grammar to reject call-like syntax")
	}
}

func TestPickRoutePicksFirstMatch(t *testing.T) {
	s := stateWithInput(map[string]any{"op": "sub"})
	label, err := PickRoute(
		[]string{"add", "sub"},
		[]string{`$input.op == 'add'`, `$input.op == 'sub'`},
		"",
		s,
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if label != "sub" {
		t.Fatalf("expected sub, got %q", label)
	}
}

func TestPickRouteFallsBackToDefault(t *testing.T) {
	s := stateWithInput(map[string]any{"op": "mul"})
	label, err := PickRoute(
		[]string{"add", "sub"},
		[]string{`$input.op == 'add'`, `$input.op == 'sub'`},
		"fallback",
		s,
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if label != "fallback" {
		t.Fatalf("expected fallback, got %q", label)
	}
}
