package engine

import "testing"

func TestEdge_Plain(t *testing.T) {
	edge := Edge[WorkflowState]{From: "a", To: "b"}
	if edge.Label != "" {
		t.Error("a plain edge should have an empty Label")
	}
	if edge.From != "a" || edge.To != "b" {
		t.Errorf("unexpected From/To: %q/%q", edge.From, edge.To)
	}
}

func TestEdge_Labeled(t *testing.T) {
	edges := []Edge[WorkflowState]{
		{From: "router", To: "approve-path", Label: "approved"},
		{From: "router", To: "reject-path", Label: "rejected"},
		{From: "router", To: "default-path", Label: "else"},
	}

	var resolved string
	for _, e := range edges {
		if e.Label == "approved" {
			resolved = e.To
			break
		}
	}
	if resolved != "approve-path" {
		t.Errorf("expected approve-path, got %q", resolved)
	}
}

func TestEdge_UnconditionalFanOut(t *testing.T) {
	edges := []Edge[WorkflowState]{
		{From: "split", To: "branch-a"},
		{From: "split", To: "branch-b"},
		{From: "split", To: "branch-c"},
	}

	var targets []string
	for _, e := range edges {
		if e.From == "split" && e.Label == "" {
			targets = append(targets, e.To)
		}
	}
	if len(targets) != 3 {
		t.Fatalf("expected 3 fan-out targets, got %d", len(targets))
	}
}

func TestPredicate_Type(t *testing.T) {
	var pred Predicate[WorkflowState]
	if pred != nil {
		t.Error("uninitialized predicate should be nil")
	}

	pred = func(s WorkflowState) bool {
		return s.LastNode == "gate"
	}
	if !pred(WorkflowState{LastNode: "gate"}) {
		t.Error("expected predicate to match LastNode = gate")
	}
	if pred(WorkflowState{LastNode: "other"}) {
		t.Error("expected predicate to reject LastNode = other")
	}
}
