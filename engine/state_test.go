package engine

import "testing"

func TestNewState(t *testing.T) {
	s := NewState(map[string]any{"a": 1})
	if s.Data == nil {
		t.Fatal("expected Data to be initialized, got nil map")
	}
	if len(s.Data) != 0 {
		t.Errorf("expected empty Data map, got %d entries", len(s.Data))
	}
}

func TestMergeState_DataUnion(t *testing.T) {
	prev := NewState(nil)
	prev.Data["n1"] = "out1"

	delta := WorkflowState{Data: map[string]any{"n2": "out2"}}
	merged := MergeState(prev, delta)

	if merged.Data["n1"] != "out1" || merged.Data["n2"] != "out2" {
		t.Errorf("expected union of both keys, got %v", merged.Data)
	}
	if len(prev.Data) != 1 {
		t.Error("MergeState must not mutate prev.Data in place")
	}
}

func TestMergeState_LastWriterWins(t *testing.T) {
	prev := WorkflowState{LastNode: "n1"}
	merged := MergeState(prev, WorkflowState{LastNode: "n2"})
	if merged.LastNode != "n2" {
		t.Errorf("expected LastNode = n2, got %q", merged.LastNode)
	}

	unchanged := MergeState(prev, WorkflowState{})
	if unchanged.LastNode != "n1" {
		t.Errorf("expected LastNode to stay n1 when delta omits it, got %q", unchanged.LastNode)
	}
}

func TestMergeState_OutputSetDistinguishesNilFromUnset(t *testing.T) {
	prev := NewState(nil)
	merged := MergeState(prev, WorkflowState{})
	if merged.OutputSet {
		t.Error("expected OutputSet to remain false when delta doesn't set output")
	}

	withNilOutput := MergeState(prev, WorkflowState{Output: nil, OutputSet: true})
	if !withNilOutput.OutputSet {
		t.Error("expected OutputSet = true when delta explicitly sets a nil output")
	}
}

func TestMergeState_ErrorsConcatenate(t *testing.T) {
	prev := WorkflowState{Errors: []ErrorRecord{{NodeID: "n1", Type: FaultLLMError}}}
	delta := WorkflowState{Errors: []ErrorRecord{{NodeID: "n2", Type: FaultHTTPRequestError}}}
	merged := MergeState(prev, delta)

	if len(merged.Errors) != 2 {
		t.Fatalf("expected 2 error records, got %d", len(merged.Errors))
	}
	if merged.Errors[0].NodeID != "n1" || merged.Errors[1].NodeID != "n2" {
		t.Error("expected errors concatenated in completion order")
	}
}

func TestWriteNodeOutputs(t *testing.T) {
	delta := WriteNodeOutputs("summarize", map[string]any{"summary": "ok"})
	if delta.LastNode != "summarize" {
		t.Errorf("expected LastNode = summarize, got %q", delta.LastNode)
	}
	if delta.Data["summarize"] == nil {
		t.Error("expected Data[summarize] to be set")
	}
}

func TestWriteError(t *testing.T) {
	delta := WriteError("fetch", FaultHTTPRequestError, "connection refused", map[string]any{"status": 0})
	if len(delta.Errors) != 1 {
		t.Fatalf("expected 1 error record, got %d", len(delta.Errors))
	}
	rec := delta.Errors[0]
	if rec.NodeID != "fetch" || rec.Type != FaultHTTPRequestError || rec.Message != "connection refused" {
		t.Errorf("unexpected error record: %+v", rec)
	}
	if delta.LastNode != "fetch" {
		t.Errorf("expected LastNode = fetch, got %q", delta.LastNode)
	}
}
