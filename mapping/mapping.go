// Package mapping resolves expression references against live execution
// state and projects raw node results into named output slots. It is the
// engine's only means of reading or writing WorkflowState on a node's
// behalf — node executors never touch state directly.
package mapping

import (
	"fmt"
	"strings"

	"github.com/dshills/wf-engine/engine"
)

// Error reports a strict-mode resolution failure: a referenced path was
// missing. Lenient-mode callers never see this; they get a nil value
// instead.
type Error struct {
	Message string
}

func (e *Error) Error() string { return "mapping_error: " + e.Message }

// resultAliases are the output-projection tokens that mean "the raw node
// result", kept for backward compatibility with earlier node-kind-specific
// spellings.
var resultAliases = map[string]bool{
	"$result":      true,
	"$tool_result": true,
	"$jq_result":   true,
	"$code_result": true,
}

// ResolveExpr resolves a single expression against state.
//
//   - A value that is not a string, or a string that does not start with
//     "$", is a literal constant and is returned unchanged.
//   - "$input" / "$input.a.b" read the workflow input.
//   - "$nodes.<id>" / "$nodes.<id>.a.b" read a completed node's output.
//   - "$state.<key>" reads a top-level state key.
//
// In strict mode a missing path returns *Error; in lenient mode it returns
// nil, nil.
func ResolveExpr(state engine.WorkflowState, expr any, strict bool) (any, error) {
	s, ok := expr.(string)
	if !ok || !strings.HasPrefix(s, "$") {
		return expr, nil
	}

	switch {
	case s == "$input":
		return state.Input, nil
	case strings.HasPrefix(s, "$input."):
		return getPath(state.Input, strings.Split(s[len("$input."):], "."), strict)
	case strings.HasPrefix(s, "$nodes."):
		rest := s[len("$nodes."):]
		parts := strings.Split(rest, ".")
		nodeID := parts[0]
		nodeOut, present := state.Data[nodeID]
		if len(parts) == 1 {
			if !present {
				return missing(strict, "node %q has not produced output yet", nodeID)
			}
			return nodeOut, nil
		}
		if !present {
			return missing(strict, "node %q has not produced output yet", nodeID)
		}
		return getPath(nodeOut, parts[1:], strict)
	case strings.HasPrefix(s, "$state."):
		key := s[len("$state."):]
		switch key {
		case "input":
			return state.Input, nil
		case "data":
			return state.Data, nil
		case "last_node":
			return state.LastNode, nil
		case "output":
			if !state.OutputSet {
				return missing(strict, "state key %q not set", key)
			}
			return state.Output, nil
		case "errors":
			return state.Errors, nil
		default:
			return missing(strict, "unknown state key %q", key)
		}
	default:
		return nil, &Error{Message: fmt.Sprintf("unsupported expression: %s", s)}
	}
}

func missing(strict bool, format string, args ...any) (any, error) {
	if strict {
		return nil, &Error{Message: fmt.Sprintf(format, args...)}
	}
	return nil, nil
}

// getPath walks a dotted path through nested map[string]any values.
// Index segments are not part of the expression grammar (§3 only names
// dotted object paths), so any non-map value mid-path is a miss.
func getPath(root any, segs []string, strict bool) (any, error) {
	cur := root
	for _, seg := range segs {
		m, ok := cur.(map[string]any)
		if !ok {
			return missing(strict, "cannot descend into non-object while resolving %q", seg)
		}
		v, present := m[seg]
		if !present {
			return missing(strict, "missing key %q", seg)
		}
		cur = v
	}
	return cur, nil
}

// ResolveInputs resolves every value in inputMapping against state,
// returning the concrete parameter map passed to a node executor's body.
func ResolveInputs(state engine.WorkflowState, inputMapping map[string]any, strict bool) (map[string]any, error) {
	out := make(map[string]any, len(inputMapping))
	for k, v := range inputMapping {
		resolved, err := ResolveExpr(state, v, strict)
		if err != nil {
			return nil, err
		}
		out[k] = resolved
	}
	return out, nil
}

// ApplyOutputMapping projects a node's raw result into its output object.
//
// An empty outputMapping returns result unchanged (P7) — result need not be
// an object. Otherwise each entry is resolved per the output-projection
// grammar: "$result" (and its legacy aliases) is the raw result; "$.a.b" is
// a dotted path into it; anything else is a literal constant.
func ApplyOutputMapping(result any, outputMapping map[string]any) any {
	if len(outputMapping) == 0 {
		return result
	}

	out := make(map[string]any, len(outputMapping))
	for outKey, spec := range outputMapping {
		specStr, isStr := spec.(string)
		switch {
		case isStr && resultAliases[specStr]:
			out[outKey] = result
		case isStr && strings.HasPrefix(specStr, "$."):
			v, _ := getFromResult(result, strings.Split(specStr[2:], "."))
			out[outKey] = v
		default:
			out[outKey] = spec
		}
	}
	return out
}

// getFromResult mirrors getPath but against a raw (non-state) value and
// never fails: a missing or non-object path simply yields nil (§9 Open
// Question (b)).
func getFromResult(obj any, segs []string) (any, bool) {
	cur := obj
	for _, seg := range segs {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, present := m[seg]
		if !present {
			return nil, false
		}
		cur = v
	}
	return cur, true
}
