// Package engine provides the core graph execution engine: state reducers,
// the node contract, and a dependency-driven concurrent scheduler.
package engine

// Reducer merges a partial update (delta) into the accumulated state.
//
// Reducers must be:
//   - Deterministic: same (prev, delta) always yields the same result.
//   - Associative over the merge order the scheduler actually uses: the
//     per-key reducer in MergeState satisfies this by construction (union,
//     last-writer-wins, concatenation-in-completion-order).
//
// Type parameter S is the state type shared across the workflow.
type Reducer[S any] func(prev S, delta S) S

// ErrorRecord is one entry in WorkflowState.Errors.
type ErrorRecord struct {
	NodeID  string         `json:"node_id"`
	Type    string         `json:"type"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// WorkflowState is the execution state threaded through a single workflow
// invocation. Node executors never see or produce anything else; they
// receive a WorkflowState and return a partial WorkflowState (a delta)
// that only sets the keys they intend to change.
type WorkflowState struct {
	// Input is the workflow input object. Constant for the run; no node
	// delta should set this after the run starts.
	Input any

	// Data maps node id to that node's output object. Deltas set exactly
	// one entry (their own node id) or none.
	Data map[string]any

	// LastNode is the id of the most recently completed node.
	LastNode string

	// Output is the final output object, written only by the end node.
	Output any
	// OutputSet distinguishes "end wrote a nil output" from "nothing wrote
	// output yet", since Output's zero value is also nil.
	OutputSet bool

	// Errors accumulates error records in completion order.
	Errors []ErrorRecord
}

// NewState seeds a fresh WorkflowState for one invocation.
func NewState(input any) WorkflowState {
	return WorkflowState{Input: input, Data: map[string]any{}}
}

// MergeState is the Reducer[WorkflowState] for this engine. It implements
// the per-key merge rules: Data by union (delta wins per key, though under
// the compiler's validity rules no node id is ever written twice), LastNode
// last-writer-wins, Output single-writer, Errors by concatenation in
// completion order.
func MergeState(prev, delta WorkflowState) WorkflowState {
	out := prev

	if len(delta.Data) > 0 {
		merged := make(map[string]any, len(prev.Data)+len(delta.Data))
		for k, v := range prev.Data {
			merged[k] = v
		}
		for k, v := range delta.Data {
			merged[k] = v
		}
		out.Data = merged
	}

	if delta.LastNode != "" {
		out.LastNode = delta.LastNode
	}

	if delta.OutputSet {
		out.Output = delta.Output
		out.OutputSet = true
	}

	if len(delta.Errors) > 0 {
		errs := make([]ErrorRecord, 0, len(prev.Errors)+len(delta.Errors))
		errs = append(errs, prev.Errors...)
		errs = append(errs, delta.Errors...)
		out.Errors = errs
	}

	return out
}

// WriteNodeOutputs builds the partial update a node executor returns on
// success: its own output object recorded under its id, and last_node
// advanced to that id.
func WriteNodeOutputs(nodeID string, outputs any) WorkflowState {
	return WorkflowState{
		Data:     map[string]any{nodeID: outputs},
		LastNode: nodeID,
	}
}

// WriteError builds the partial update a node executor returns on failure:
// an error record appended to errors, and last_node advanced to the failing
// node so downstream bookkeeping (fail_fast abort messaging) can see who
// failed.
func WriteError(nodeID, errType, message string, details map[string]any) WorkflowState {
	return WorkflowState{
		Errors:   []ErrorRecord{{NodeID: nodeID, Type: errType, Message: message, Details: details}},
		LastNode: nodeID,
	}
}
