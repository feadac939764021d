package engine

import (
	"context"
	"errors"
	"testing"
)

func TestNodeFunc_ImplementsNode(t *testing.T) {
	var _ Node[WorkflowState] = NodeFunc[WorkflowState](func(ctx context.Context, s WorkflowState) NodeResult[WorkflowState] {
		return NodeResult[WorkflowState]{Route: Stop()}
	})
}

func TestNodeFunc_Run(t *testing.T) {
	executed := false
	node := NodeFunc[WorkflowState](func(ctx context.Context, s WorkflowState) NodeResult[WorkflowState] {
		executed = true
		return NodeResult[WorkflowState]{
			Delta: WriteNodeOutputs("n1", "ok"),
			Route: Stop(),
		}
	})

	result := node.Run(context.Background(), NewState(nil))
	if !executed {
		t.Fatal("expected node function to execute")
	}
	if result.Delta.Data["n1"] != "ok" {
		t.Errorf("expected Delta.Data[n1] = ok, got %v", result.Delta.Data["n1"])
	}
	if !result.Route.Terminal {
		t.Error("expected Route.Terminal = true")
	}
}

func TestNodeFunc_Error(t *testing.T) {
	node := NodeFunc[WorkflowState](func(ctx context.Context, s WorkflowState) NodeResult[WorkflowState] {
		return NodeResult[WorkflowState]{Err: &NodeError{Message: "boom", Code: "TEST"}}
	})

	result := node.Run(context.Background(), NewState(nil))
	if result.Err == nil {
		t.Fatal("expected error")
	}
	var nodeErr *NodeError
	if !errors.As(result.Err, &nodeErr) {
		t.Fatalf("expected *NodeError, got %T", result.Err)
	}
	if nodeErr.Code != "TEST" {
		t.Errorf("expected Code = TEST, got %q", nodeErr.Code)
	}
}

func TestNext_Helpers(t *testing.T) {
	t.Run("Stop sets Terminal", func(t *testing.T) {
		n := Stop()
		if !n.Terminal {
			t.Error("Stop() should set Terminal = true")
		}
		if n.To != "" || n.Label != "" {
			t.Error("Stop() should not set To or Label")
		}
	})

	t.Run("Goto sets To", func(t *testing.T) {
		n := Goto("next-node")
		if n.Terminal {
			t.Error("Goto() should not set Terminal")
		}
		if n.To != "next-node" {
			t.Errorf("expected To = next-node, got %q", n.To)
		}
	})

	t.Run("zero value is ambiguous by design", func(t *testing.T) {
		n := Next{}
		if n.Terminal || n.To != "" || n.Label != "" {
			t.Error("zero value Next should have all fields empty")
		}
	})

	t.Run("Label selects a branch without To", func(t *testing.T) {
		n := Next{Label: "approved"}
		if n.To != "" || n.Terminal {
			t.Error("a label-only Next should leave To and Terminal unset")
		}
	})
}

func TestNodeError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &NodeError{Message: "wrapped", NodeID: "n1", Cause: cause}

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the wrapped cause")
	}
	if err.Error() != "node n1: wrapped" {
		t.Errorf("unexpected Error() string: %q", err.Error())
	}
}
