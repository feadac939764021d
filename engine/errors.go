package engine

import (
	"errors"
	"fmt"
)

// ErrMaxStepsExceeded indicates that execution reached the maximum allowed
// step count without completing. This prevents infinite loops and runaway
// executions from a malformed graph.
var ErrMaxStepsExceeded = errors.New("execution exceeded maximum steps limit")

// ErrNoProgress indicates the scheduler found no runnable node while some
// nodes had still not reached their required number of arrivals. This is
// the deadlock signal for a graph whose join requirements can never be
// satisfied.
var ErrNoProgress = errors.New("no runnable node: remaining nodes are blocked on unmet dependencies")

// ErrBackpressureTimeout describes a frontier queue that could not accept a
// new work item in time. Run does not return it: Enqueue waits until space
// frees up or the run's context is done.
var ErrBackpressureTimeout = errors.New("frontier queue backpressure timeout exceeded")

// Fault codes, one per entry in the workflow error taxonomy. These are
// carried on Fault.Code and also used as ErrorRecord.Type values so that a
// caller inspecting WorkflowState.Errors and a caller inspecting a returned
// error see the same vocabulary.
const (
	FaultInvalidWorkflow   = "invalid_workflow"
	FaultInvalidSchema     = "invalid_schema"
	FaultSchemaValidation  = "schema_validation"
	FaultMissingDependency = "missing_dependency"
	FaultMappingError      = "mapping_error"
	FaultJQError           = "jq_error"
	FaultPythonCodeError   = "python_code_error"
	FaultLLMError          = "llm_error"
	FaultPromptFormatError = "prompt_format_error"
	FaultHTTPRequestError  = "http_request_error"
	FaultRouterError       = "router_error"
	FaultUnsupportedKind   = "unsupported_node_kind"
)

// Fault is a structured error carrying one of the taxonomy codes above. Node
// executors and the compiler wrap underlying errors in a Fault so callers
// can branch on Code without parsing message text.
type Fault struct {
	Code    string
	NodeID  string
	Message string
	Cause   error
}

func (f *Fault) Error() string {
	if f.NodeID != "" {
		return fmt.Sprintf("%s: node %s: %s", f.Code, f.NodeID, f.Message)
	}
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

func (f *Fault) Unwrap() error { return f.Cause }

// NewFault builds a Fault, wrapping cause if non-nil.
func NewFault(code, nodeID, message string, cause error) *Fault {
	return &Fault{Code: code, NodeID: nodeID, Message: message, Cause: cause}
}

// EngineError reports a structural problem with graph construction or
// engine invocation itself (a nil engine, a dangling edge, an empty node
// id) as opposed to a runtime fault raised by a node. Callers that build
// graphs programmatically check for this at construction time; it never
// appears in WorkflowState.Errors.
type EngineError struct {
	Message string
	Code    string
}

func (e *EngineError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}
