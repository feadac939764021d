package compiler

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dshills/wf-engine/dsl"
	"github.com/dshills/wf-engine/engine"
	"github.com/dshills/wf-engine/engine/model"
	"github.com/dshills/wf-engine/engine/tool"
	"github.com/dshills/wf-engine/llmprovider"
	"github.com/dshills/wf-engine/mapping"
	"github.com/dshills/wf-engine/router"
)

func okResult(nodeID string, outputs any) engine.NodeResult[engine.WorkflowState] {
	return engine.NodeResult[engine.WorkflowState]{Delta: engine.WriteNodeOutputs(nodeID, outputs)}
}

func errResult(nodeID, errType, message string, details map[string]any) engine.NodeResult[engine.WorkflowState] {
	return engine.NodeResult[engine.WorkflowState]{Delta: engine.WriteError(nodeID, errType, message, details)}
}

// noopExecutor copies resolved inputs to outputs.
func noopExecutor(node dsl.Node) engine.NodeFunc[engine.WorkflowState] {
	nodeID, im, om := node.ID, node.InputMapping, node.OutputMapping
	return func(_ context.Context, state engine.WorkflowState) engine.NodeResult[engine.WorkflowState] {
		inputs, err := mapping.ResolveInputs(state, im, true)
		if err != nil {
			return errResult(nodeID, engine.FaultMappingError, err.Error(), nil)
		}
		return okResult(nodeID, mapping.ApplyOutputMapping(inputs, om))
	}
}

// jqExecutor runs node.JQ.Code against leniently-resolved inputs — missing
// optional branch outputs become null rather than a mapping_error, since jq
// is often used to pick from whichever of several siblings actually ran.
// Fails with missing_dependency if cc carries no JQ runner.
func jqExecutor(cc *CompileContext, node dsl.Node) engine.NodeFunc[engine.WorkflowState] {
	nodeID, code, im, om := node.ID, node.JQ.Code, node.InputMapping, node.OutputMapping
	run := cc.JQ
	return func(_ context.Context, state engine.WorkflowState) engine.NodeResult[engine.WorkflowState] {
		if run == nil {
			return errResult(nodeID, engine.FaultMissingDependency, "jq runtime is not configured", nil)
		}
		inputs, err := mapping.ResolveInputs(state, im, false)
		if err != nil {
			return errResult(nodeID, engine.FaultMappingError, err.Error(), nil)
		}
		result, err := run(code, inputs)
		if err != nil {
			return errResult(nodeID, engine.FaultJQError, err.Error(), nil)
		}
		return okResult(nodeID, mapping.ApplyOutputMapping(result, om))
	}
}

// pythonExecutor runs node.Python.Code in the sandbox under a hard
// wall-clock timeout. The node kind's wire name predates this engine's
// choice of sandbox language; see the sandbox package for why. Fails with
// missing_dependency if cc carries no Python runner.
func pythonExecutor(cc *CompileContext, node dsl.Node) engine.NodeFunc[engine.WorkflowState] {
	nodeID, code, om := node.ID, node.Python.Code, node.OutputMapping
	im := node.InputMapping
	timeout := time.Duration(node.Python.TimeoutS * float64(time.Second))
	run := cc.Python
	return func(_ context.Context, state engine.WorkflowState) engine.NodeResult[engine.WorkflowState] {
		if run == nil {
			return errResult(nodeID, engine.FaultMissingDependency, "python sandbox is not configured", nil)
		}
		inputs, err := mapping.ResolveInputs(state, im, true)
		if err != nil {
			return errResult(nodeID, engine.FaultMappingError, err.Error(), nil)
		}
		result, err := run(code, inputs, timeout)
		if err != nil {
			return errResult(nodeID, engine.FaultPythonCodeError, err.Error(), nil)
		}
		return okResult(nodeID, mapping.ApplyOutputMapping(result, om))
	}
}

// routerExecutor picks a label via router.PickRoute and hands it back as a
// Next.Label; the engine's own resolveTargets follows the matching labeled
// edge (or "else") from there.
func routerExecutor(node dsl.Node) engine.NodeFunc[engine.WorkflowState] {
	nodeID := node.ID
	labels, conds, def := node.Router.CaseLabels, node.Router.CaseConditions, node.Router.Default
	return func(_ context.Context, state engine.WorkflowState) engine.NodeResult[engine.WorkflowState] {
		label, err := router.PickRoute(labels, conds, def, state)
		if err != nil {
			return errResult(nodeID, engine.FaultRouterError, err.Error(), nil)
		}
		if label == "" {
			return errResult(nodeID, engine.FaultRouterError, "no route selected", nil)
		}
		return engine.NodeResult[engine.WorkflowState]{
			Delta: engine.WriteNodeOutputs(nodeID, map[string]any{"label": label}),
			Route: engine.Next{Label: label},
		}
	}
}

// httpExecutor resolves inputs strictly; "url", "method", and "headers" are
// reserved, the remaining keys form the request body (query params for
// GET/DELETE, a JSON body otherwise). The request itself is delegated to
// tool.HTTPTool, which owns request/response shaping; this executor only
// handles template substitution, reserved-key splitting, and translating a
// non-2xx response into a node error.
func httpExecutor(cc *CompileContext, node dsl.Node) engine.NodeFunc[engine.WorkflowState] {
	nodeID, im, om := node.ID, node.InputMapping, node.OutputMapping
	timeout := time.Duration(node.HTTP.TimeoutS * float64(time.Second))
	httpTool := tool.NewHTTPTool(cc.HTTPClient)

	return func(ctx context.Context, state engine.WorkflowState) engine.NodeResult[engine.WorkflowState] {
		inputs, err := mapping.ResolveInputs(state, im, true)
		if err != nil {
			return errResult(nodeID, engine.FaultMappingError, err.Error(), nil)
		}

		rawURL, ok := inputs["url"]
		if !ok {
			return errResult(nodeID, engine.FaultHTTPRequestError, "input_mapping must resolve a 'url'", nil)
		}
		formattedURL, err := deepFormat(rawURL, inputs)
		if err != nil {
			return errResult(nodeID, engine.FaultHTTPRequestError, err.Error(), nil)
		}
		urlStr, ok := formattedURL.(string)
		if !ok {
			return errResult(nodeID, engine.FaultHTTPRequestError, fmt.Sprintf("url must resolve to a string, got %T", formattedURL), nil)
		}

		method := "GET"
		if m, ok := inputs["method"].(string); ok && m != "" {
			method = strings.ToUpper(m)
		}

		headers := map[string]any{}
		if h, ok := inputs["headers"].(map[string]any); ok {
			headers = h
		}

		body := map[string]any{}
		for k, v := range inputs {
			if k == "url" || k == "method" || k == "headers" {
				continue
			}
			body[k] = v
		}

		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		result, err := httpTool.Call(reqCtx, map[string]any{
			"url":     urlStr,
			"method":  method,
			"headers": headers,
			"body":    body,
		})
		if err != nil {
			return errResult(nodeID, engine.FaultHTTPRequestError, err.Error(), nil)
		}

		if ok2, _ := result["ok"].(bool); !ok2 {
			return errResult(nodeID, engine.FaultHTTPRequestError, fmt.Sprintf("HTTP %v for %s", result["status"], urlStr), result)
		}

		return okResult(nodeID, mapping.ApplyOutputMapping(result, om))
	}
}

var templatePattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// formatTemplate fills "{name}" placeholders from vars, mirroring Python's
// str.format(**vars): a placeholder with no matching key is an error.
func formatTemplate(s string, vars map[string]any) (string, error) {
	var missing string
	out := templatePattern.ReplaceAllStringFunc(s, func(m string) string {
		key := m[1 : len(m)-1]
		v, ok := vars[key]
		if !ok {
			missing = key
			return m
		}
		return fmt.Sprint(v)
	})
	if missing != "" {
		return "", fmt.Errorf("missing key for template placeholder: %q", missing)
	}
	return out, nil
}

// deepFormat recursively applies formatTemplate to every string reachable
// through nested maps/slices.
func deepFormat(value any, vars map[string]any) (any, error) {
	switch v := value.(type) {
	case string:
		return formatTemplate(v, vars)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, vv := range v {
			r, err := deepFormat(vv, vars)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, vv := range v {
			r, err := deepFormat(vv, vars)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return value, nil
	}
}

// llmExecutor resolves the model binding, formats the prompt, calls the
// model (optionally requesting structured output), and projects the result.
func llmExecutor(cc *CompileContext, node dsl.Node) engine.NodeFunc[engine.WorkflowState] {
	nodeID := node.ID
	spec, prompt, outputSchema := node.LLM.Model, node.LLM.Prompt, node.LLM.OutputSchema
	im, om := node.InputMapping, node.OutputMapping

	return func(ctx context.Context, state engine.WorkflowState) engine.NodeResult[engine.WorkflowState] {
		chatModel, err := cc.Models.Resolve(spec)
		if err != nil {
			return errResult(nodeID, engine.FaultMissingDependency, err.Error(), nil)
		}

		inputs, err := mapping.ResolveInputs(state, im, true)
		if err != nil {
			return errResult(nodeID, engine.FaultMappingError, err.Error(), nil)
		}

		messages, err := formatPrompt(prompt, inputs)
		if err != nil {
			return errResult(nodeID, engine.FaultPromptFormatError, err.Error(), nil)
		}

		var result any
		if len(outputSchema) > 0 {
			structured, err := llmprovider.CallStructured(ctx, chatModel, messages, outputSchema)
			if err != nil {
				return errResult(nodeID, engine.FaultLLMError, err.Error(), nil)
			}
			result = structured
		} else {
			out, err := chatModel.Chat(ctx, messages, nil)
			if err != nil {
				return errResult(nodeID, engine.FaultLLMError, err.Error(), nil)
			}
			result = out.Text
		}

		return okResult(nodeID, mapping.ApplyOutputMapping(result, om))
	}
}

// formatPrompt renders a normalized prompt into the single user message
// model.ChatModel accepts. model.Message carries plain text only, so
// multimodal parts are folded into one text block rather than a
// provider-shaped content list; image_url parts are rendered as a bracketed
// reference rather than dropped silently.
func formatPrompt(parts []dsl.PromptPart, vars map[string]any) ([]model.Message, error) {
	if text, ok := dsl.PromptIsString(parts); ok {
		formatted, err := formatTemplate(text, vars)
		if err != nil {
			return nil, err
		}
		return []model.Message{{Role: model.RoleUser, Content: formatted}}, nil
	}

	var sb strings.Builder
	for i, part := range parts {
		if i > 0 {
			sb.WriteString("\n")
		}
		formatted, err := formatTemplate(part.Content, vars)
		if err != nil {
			return nil, err
		}
		switch part.Type {
		case "text":
			sb.WriteString(formatted)
		case "image_url":
			sb.WriteString(fmt.Sprintf("[image: %s]", formatted))
		default:
			return nil, fmt.Errorf("unsupported prompt part type %q", part.Type)
		}
	}
	return []model.Message{{Role: model.RoleUser, Content: sb.String()}}, nil
}

// startExecutor is a passthrough: the start node contributes no delta.
func startExecutor() engine.NodeFunc[engine.WorkflowState] {
	return func(_ context.Context, _ engine.WorkflowState) engine.NodeResult[engine.WorkflowState] {
		return engine.NodeResult[engine.WorkflowState]{}
	}
}

// endExecutor applies the workflow's output-input-mapping to the completed
// state and writes it as the run's output. It always terminates the run,
// even on a mapping failure.
func endExecutor(outputMapping map[string]any) engine.NodeFunc[engine.WorkflowState] {
	return func(_ context.Context, state engine.WorkflowState) engine.NodeResult[engine.WorkflowState] {
		outputs, err := mapping.ResolveInputs(state, outputMapping, true)
		if err != nil {
			return engine.NodeResult[engine.WorkflowState]{
				Delta: engine.WriteError(dsl.EndNodeID, engine.FaultMappingError, err.Error(), nil),
				Route: engine.Stop(),
			}
		}
		return engine.NodeResult[engine.WorkflowState]{
			Delta: engine.WorkflowState{Output: outputs, OutputSet: true, LastNode: dsl.EndNodeID},
			Route: engine.Stop(),
		}
	}
}
