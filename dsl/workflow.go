// Package dsl parses and structurally validates a workflow description: the
// declarative, data-authored graph of typed nodes and edges the compiler
// turns into a runnable plan.
package dsl

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
)

var nodeIDPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Reserved node ids. Never declared as authored nodes; installed by the
// compiler as the system start/end nodes.
const (
	StartNodeID = "start"
	EndNodeID   = "end"
)

// Node kinds.
const (
	KindNoop        = "noop"
	KindJQTransform = "jq_transform"
	KindPythonCode  = "python_code"
	KindLLM         = "llm"
	KindRouter      = "router"
	KindHTTPRequest = "http_request"
	KindStart       = "start"
	KindEnd         = "end"
)

// ValidationError reports a structural problem found while parsing a
// workflow description, before compilation is attempted.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return "invalid_workflow: " + e.Message }

func invalid(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// SchemaContainer carries a JSON-Schema document attached to a workflow's
// input or output boundary. The on-wire field name is "schema"; Go code
// refers to it as Schema.
type SchemaContainer struct {
	Schema map[string]any
}

// Node is the tagged-variant model for one declared node. Kind-specific
// attributes live in the matching pointer field; at most one is non-nil for
// a given Kind, and none for noop (enforced by Parse).
type Node struct {
	ID            string
	Kind          string
	Name          string
	InputMapping  map[string]any
	OutputMapping map[string]any

	JQ      *JQAttrs
	Python  *PythonAttrs
	LLM     *LLMAttrs
	Router  *RouterAttrs
	HTTP    *HTTPAttrs
}

// JQAttrs holds jq_transform-specific attributes.
type JQAttrs struct {
	Code string
}

// PythonAttrs holds python_code-specific attributes.
type PythonAttrs struct {
	Code     string
	TimeoutS float64
}

// LLMAttrs holds llm-specific attributes.
type LLMAttrs struct {
	Model        string
	ModelParams  map[string]any
	Prompt       []PromptPart
	OutputSchema map[string]any
}

// PromptPart is one canonical part of a normalized LLM prompt.
type PromptPart struct {
	Type    string // "text" | "image_url"
	Content string
}

// RouterAttrs holds router-specific attributes.
type RouterAttrs struct {
	// Cases is ordered: the router evaluates conditions in this order and
	// picks the first truthy one. A plain map cannot preserve author order,
	// so we keep parallel slices instead of map[string]string.
	CaseLabels     []string
	CaseConditions []string
	Default        string
}

// Edge connects two nodes. A zero Routes slice means this is a simple edge
// (From/To/WhenLabel); a non-empty Routes slice means this is a branch edge
// and From/To/WhenLabel are ignored.
type Edge struct {
	From      string
	To        string
	WhenLabel string
	Routes    []EdgeRoute
}

// IsBranch reports whether this edge is a branch edge (multiple routes from
// one source).
func (e Edge) IsBranch() bool { return len(e.Routes) > 0 }

// EdgeRoute is one destination of a branch edge.
type EdgeRoute struct {
	To        string
	WhenLabel string
}

// Workflow is the parsed, structurally-validated top-level description.
type Workflow struct {
	ID       string
	Version  int
	Name     string
	Input    SchemaContainer
	Output   OutputSpec
	Nodes    []Node
	Edges    []Edge
	FailFast bool
}

// OutputSpec is the workflow's output boundary: a schema plus the final
// input-mapping the end node applies to produce the workflow's result.
type OutputSpec struct {
	Schema       map[string]any
	InputMapping map[string]any
}

// NodeByID returns the declared node with the given id, or false.
func (w *Workflow) NodeByID(id string) (Node, bool) {
	for _, n := range w.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// --- Wire format (on-the-wire JSON shape) ---

type wireWorkflow struct {
	ID       string          `json:"id"`
	Version  *int            `json:"version"`
	Name     string          `json:"name,omitempty"`
	Input    *wireInput      `json:"input"`
	Output   *wireOutput     `json:"output"`
	Nodes    []json.RawMessage `json:"nodes"`
	Edges    []json.RawMessage `json:"edges"`
	FailFast *bool           `json:"fail_fast,omitempty"`
}

type wireInput struct {
	Schema map[string]any `json:"schema"`
}

type wireOutput struct {
	InputMapping map[string]any `json:"input_mapping"`
	Schema       map[string]any `json:"schema"`
}

type wireNodeCommon struct {
	ID            string         `json:"id"`
	Kind          string         `json:"kind"`
	Name          string         `json:"name,omitempty"`
	InputMapping  map[string]any `json:"input_mapping,omitempty"`
	OutputMapping map[string]any `json:"output_mapping,omitempty"`

	// kind-specific, parsed selectively below
	Code         string          `json:"code,omitempty"`
	TimeoutS     *float64        `json:"timeout_s,omitempty"`
	Model        string          `json:"model,omitempty"`
	ModelParams  map[string]any  `json:"model_params,omitempty"`
	Prompt       json.RawMessage `json:"prompt,omitempty"`
	OutputSchema map[string]any  `json:"output_schema,omitempty"`
	Cases        json.RawMessage `json:"cases,omitempty"`
	Default      string          `json:"default,omitempty"`
}

type wireEdge struct {
	From      string          `json:"from"`
	To        string          `json:"to,omitempty"`
	WhenLabel string          `json:"when_label,omitempty"`
	Routes    []wireEdgeRoute `json:"routes,omitempty"`
}

type wireEdgeRoute struct {
	To        string `json:"to"`
	WhenLabel string `json:"when_label,omitempty"`
}

// Parse decodes and structurally validates a workflow description given as
// JSON bytes; no other input format is accepted. It rejects unknown node kinds, malformed ids,
// duplicate ids, unknown edge endpoints, empty branch-edge route lists, and
// declared nodes using a reserved id.
func Parse(raw []byte) (*Workflow, error) {
	var w wireWorkflow
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, invalid("malformed workflow document: %s", err)
	}

	if w.ID == "" {
		return nil, invalid("workflow must have an 'id'")
	}
	if w.Version == nil {
		return nil, invalid("workflow must have a 'version'")
	}
	if w.Input == nil {
		return nil, invalid("workflow must have an 'input' section")
	}
	if w.Output == nil {
		return nil, invalid("workflow must have an 'output' section")
	}

	out := &Workflow{
		ID:      w.ID,
		Version: *w.Version,
		Name:    w.Name,
		Input:   SchemaContainer{Schema: defaultSchema(w.Input.Schema)},
		Output: OutputSpec{
			Schema:       defaultSchema(w.Output.Schema),
			InputMapping: w.Output.InputMapping,
		},
		FailFast: true,
	}
	if w.FailFast != nil {
		out.FailFast = *w.FailFast
	}

	nodes := make([]Node, 0, len(w.Nodes))
	seen := make(map[string]bool, len(w.Nodes))
	for _, raw := range w.Nodes {
		var common wireNodeCommon
		if err := json.Unmarshal(raw, &common); err != nil {
			return nil, invalid("malformed node: %s", err)
		}

		if common.ID == "" {
			return nil, invalid("node is missing an 'id'")
		}
		if !nodeIDPattern.MatchString(common.ID) {
			return nil, invalid("node id %q must match ^[a-z][a-z0-9_]*$", common.ID)
		}
		if common.ID == StartNodeID || common.ID == EndNodeID {
			return nil, invalid("node id %q is reserved and cannot be declared", common.ID)
		}
		if seen[common.ID] {
			return nil, invalid("duplicate node id %q", common.ID)
		}
		seen[common.ID] = true

		node, err := convertNode(common)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	out.Nodes = nodes

	edges := make([]Edge, 0, len(w.Edges))
	for _, raw := range w.Edges {
		var we wireEdge
		if err := json.Unmarshal(raw, &we); err != nil {
			return nil, invalid("malformed edge: %s", err)
		}
		if we.From == "" {
			return nil, invalid("edge is missing 'from'")
		}
		if len(we.Routes) > 0 {
			routes := make([]EdgeRoute, 0, len(we.Routes))
			for _, r := range we.Routes {
				if r.To == "" {
					return nil, invalid("branch edge route from %q is missing 'to'", we.From)
				}
				routes = append(routes, EdgeRoute{To: r.To, WhenLabel: r.WhenLabel})
			}
			edges = append(edges, Edge{From: we.From, Routes: routes})
			continue
		}
		if we.To == "" {
			return nil, invalid("edge from %q is missing 'to'", we.From)
		}
		edges = append(edges, Edge{From: we.From, To: we.To, WhenLabel: we.WhenLabel})
	}
	out.Edges = edges

	if err := validateEndpoints(out); err != nil {
		return nil, err
	}

	return out, nil
}

func defaultSchema(s map[string]any) map[string]any {
	if s == nil {
		return map[string]any{"type": "object"}
	}
	return s
}

func convertNode(c wireNodeCommon) (Node, error) {
	n := Node{
		ID:            c.ID,
		Kind:          c.Kind,
		Name:          c.Name,
		InputMapping:  c.InputMapping,
		OutputMapping: c.OutputMapping,
	}

	switch c.Kind {
	case KindNoop:
		// no kind-specific attributes
	case KindJQTransform:
		if c.Code == "" {
			return Node{}, invalid("node %q: jq_transform requires 'code'", c.ID)
		}
		n.JQ = &JQAttrs{Code: c.Code}
	case KindPythonCode:
		if c.Code == "" {
			return Node{}, invalid("node %q: python_code requires 'code'", c.ID)
		}
		timeout := 1.0
		if c.TimeoutS != nil {
			timeout = *c.TimeoutS
		}
		n.Python = &PythonAttrs{Code: c.Code, TimeoutS: timeout}
	case KindLLM:
		if c.Model == "" {
			return Node{}, invalid("node %q: llm requires 'model'", c.ID)
		}
		prompt, err := normalizePrompt(c.Prompt)
		if err != nil {
			return Node{}, invalid("node %q: %s", c.ID, err)
		}
		n.LLM = &LLMAttrs{
			Model:        c.Model,
			ModelParams:  c.ModelParams,
			Prompt:       prompt,
			OutputSchema: c.OutputSchema,
		}
	case KindRouter:
		labels, conds, err := parseCases(c.Cases)
		if err != nil {
			return Node{}, invalid("node %q: %s", c.ID, err)
		}
		n.Router = &RouterAttrs{CaseLabels: labels, CaseConditions: conds, Default: c.Default}
	case KindHTTPRequest:
		timeout := 30.0
		if c.TimeoutS != nil {
			timeout = *c.TimeoutS
		}
		n.HTTP = &HTTPAttrs{TimeoutS: timeout}
	default:
		return Node{}, invalid("unknown node kind %q (node %q)", c.Kind, c.ID)
	}

	return n, nil
}

// HTTPAttrs holds http_request-specific attributes. url/method/headers/body
// are resolved at runtime from resolved inputs (§4.4); TimeoutS is the only
// static configuration, bounding the request's total round-trip time.
type HTTPAttrs struct {
	TimeoutS float64
}

// parseCases decodes the router's `cases` object while preserving authored
// insertion order, since case-order is load-bearing when conditions overlap
// (§9 Open Question (a)). json.RawMessage + a manual token scan is used
// because encoding/json's map decoding does not preserve key order.
func parseCases(raw json.RawMessage) (labels, conditions []string, err error) {
	if len(raw) == 0 {
		return nil, nil, invalid("router requires 'cases'")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, fmt.Errorf("malformed cases: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, fmt.Errorf("cases must be an object")
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, nil, fmt.Errorf("malformed cases: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("malformed cases: non-string key")
		}
		var val string
		if err := dec.Decode(&val); err != nil {
			return nil, nil, fmt.Errorf("malformed cases: %w", err)
		}
		labels = append(labels, key)
		conditions = append(conditions, val)
	}
	if len(labels) == 0 {
		return nil, nil, fmt.Errorf("cases must be non-empty")
	}
	return labels, conditions, nil
}

func validateEndpoints(w *Workflow) error {
	nodeIDs := map[string]bool{StartNodeID: true, EndNodeID: true}
	for _, n := range w.Nodes {
		nodeIDs[n.ID] = true
	}

	hasStartEdge := false
	reachesEnd := false

	for _, e := range w.Edges {
		if !nodeIDs[e.From] {
			return invalid("edge from unknown node %q", e.From)
		}
		if e.From == StartNodeID {
			hasStartEdge = true
		}
		if e.IsBranch() {
			if len(e.Routes) == 0 {
				return invalid("branch edge from %q has an empty route list", e.From)
			}
			for _, r := range e.Routes {
				if r.To != EndNodeID && !nodeIDs[r.To] {
					return invalid("edge route from %q to unknown node %q", e.From, r.To)
				}
				if r.To == EndNodeID {
					reachesEnd = true
				}
			}
			continue
		}
		if e.To != EndNodeID && !nodeIDs[e.To] {
			return invalid("edge from %q to unknown node %q", e.From, e.To)
		}
		if e.To == EndNodeID {
			reachesEnd = true
		}
	}

	if !hasStartEdge {
		return invalid("workflow must have at least one edge from 'start'")
	}
	if !reachesEnd {
		return invalid("workflow must have at least one edge to 'end'")
	}
	return nil
}
