package compiler

import (
	"context"
	"fmt"

	"github.com/dshills/wf-engine/dsl"
	"github.com/dshills/wf-engine/engine"
	"github.com/dshills/wf-engine/engine/emit"
	"github.com/dshills/wf-engine/schema"
)

// Compile binds a parsed workflow to a runnable engine, installing the
// system start/end nodes and translating every declared node and edge into
// engine.Add/Connect/ConnectLabel calls. The engine's own label/else
// dispatch (Engine.resolveTargets) is reused as-is; Compile never builds its
// own router-to-target map.
func Compile(wf *dsl.Workflow, cc *CompileContext, emitter emit.Emitter, opts ...engine.Option) (*engine.Engine[engine.WorkflowState], error) {
	if cc == nil {
		cc = DefaultCompileContext()
	}
	if emitter == nil {
		emitter = emit.NewNullEmitter()
	}

	eng := engine.New[engine.WorkflowState](engine.MergeState, emitter, opts...)

	if err := eng.Add(dsl.StartNodeID, startExecutor()); err != nil {
		return nil, err
	}
	if err := eng.Add(dsl.EndNodeID, endExecutor(wf.Output.InputMapping)); err != nil {
		return nil, err
	}
	if err := eng.StartAt(dsl.StartNodeID); err != nil {
		return nil, err
	}

	for _, node := range wf.Nodes {
		exec, err := buildExecutor(cc, node)
		if err != nil {
			return nil, err
		}
		wrapped := withFailFast(wf.FailFast, node.ID, exec)
		if err := eng.Add(node.ID, wrapped); err != nil {
			return nil, err
		}
	}

	for _, edge := range wf.Edges {
		if edge.IsBranch() {
			for _, route := range edge.Routes {
				if err := connectOne(eng, edge.From, route.To, route.WhenLabel); err != nil {
					return nil, err
				}
			}
			continue
		}
		if err := connectOne(eng, edge.From, edge.To, edge.WhenLabel); err != nil {
			return nil, err
		}
	}

	return eng, nil
}

func connectOne(eng *engine.Engine[engine.WorkflowState], from, to, label string) error {
	if label != "" {
		return eng.ConnectLabel(from, to, label)
	}
	return eng.Connect(from, to)
}

// buildExecutor returns the NodeFunc for a single declared node, selected by
// kind. Every kind but noop and router draws its runtime collaborator (jq,
// sandbox, HTTP client, or model registry) from CompileContext, so each can
// report missing_dependency instead of panicking when that collaborator is
// absent.
func buildExecutor(cc *CompileContext, node dsl.Node) (engine.NodeFunc[engine.WorkflowState], error) {
	switch node.Kind {
	case dsl.KindNoop:
		return noopExecutor(node), nil
	case dsl.KindJQTransform:
		return jqExecutor(cc, node), nil
	case dsl.KindPythonCode:
		return pythonExecutor(cc, node), nil
	case dsl.KindRouter:
		return routerExecutor(node), nil
	case dsl.KindHTTPRequest:
		return httpExecutor(cc, node), nil
	case dsl.KindLLM:
		return llmExecutor(cc, node), nil
	default:
		return nil, &engine.EngineError{Message: fmt.Sprintf("node %q: unsupported kind %q", node.ID, node.Kind), Code: engine.FaultUnsupportedKind}
	}
}

// withFailFast enforces the workflow's fail_fast setting: node executors
// always report their own failures by writing an ErrorRecord into
// Delta.Errors and returning normally (never via NodeResult.Err, which
// unconditionally aborts the run regardless of fail_fast). When failFast is
// true, this wrapper promotes the first error record the wrapped executor
// newly produced into NodeResult.Err, turning it into a run-aborting fault;
// when false, the record is left in Errors and the run continues.
func withFailFast(failFast bool, nodeID string, inner engine.NodeFunc[engine.WorkflowState]) engine.NodeFunc[engine.WorkflowState] {
	if !failFast {
		return inner
	}
	return func(ctx context.Context, state engine.WorkflowState) engine.NodeResult[engine.WorkflowState] {
		result := inner(ctx, state)
		if len(result.Delta.Errors) == 0 {
			return result
		}
		rec := result.Delta.Errors[0]
		result.Err = engine.NewFault(rec.Type, rec.NodeID, rec.Message, nil)
		return result
	}
}

// ValidateInput checks raw input against the workflow's declared input
// schema, classified as schema.FaultSchemaValidation on mismatch.
func ValidateInput(wf *dsl.Workflow, input any) error {
	return schema.Validate(input, wf.Input.Schema, false)
}

// ValidateOutput checks a produced output against the workflow's declared
// output schema.
func ValidateOutput(wf *dsl.Workflow, output any) error {
	return schema.Validate(output, wf.Output.Schema, false)
}

// Invoke runs wf end-to-end: validates input, compiles, executes, and
// validates the result, so a caller either gets back a value conforming to
// the output schema or a classified error — never a bare WorkflowState.
func Invoke(ctx context.Context, wf *dsl.Workflow, input any, cc *CompileContext, emitter emit.Emitter, runID string, opts ...engine.Option) (any, error) {
	if err := ValidateInput(wf, input); err != nil {
		return nil, err
	}

	eng, err := Compile(wf, cc, emitter, opts...)
	if err != nil {
		return nil, err
	}

	final, err := eng.Run(ctx, runID, engine.NewState(input))
	if err != nil {
		return nil, err
	}

	if len(final.Errors) > 0 {
		last := final.Errors[len(final.Errors)-1]
		return nil, engine.NewFault(last.Type, last.NodeID, last.Message, nil)
	}

	if err := ValidateOutput(wf, final.Output); err != nil {
		return nil, err
	}
	return final.Output, nil
}
