package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/wf-engine/engine/emit"
)

// contextKey is a private type used for context value keys to avoid
// collisions with keys from other packages.
type contextKey string

const (
	// RunIDKey is the context key for the current run's identifier.
	RunIDKey contextKey = "wfengine.run_id"

	// StepIDKey is the context key for the current execution step number.
	StepIDKey contextKey = "wfengine.step_id"

	// NodeIDKey is the context key for the currently executing node id.
	NodeIDKey contextKey = "wfengine.node_id"
)

// Engine orchestrates concurrent execution of a workflow graph: it tracks
// nodes and edges, dispatches work through a Frontier, and merges node
// results with Reducer as they complete.
//
// Type parameter S is the state type shared across the workflow.
type Engine[S any] struct {
	mu sync.RWMutex

	reducer   Reducer[S]
	nodes     map[string]Node[S]
	policies  map[string]NodePolicy
	edges     []Edge[S]
	startNode string

	emitter emit.Emitter
	metrics *PrometheusMetrics

	opts Options
}

// Options configures Engine execution behavior. Zero values are valid; the
// engine applies sensible defaults.
type Options struct {
	// MaxSteps limits the number of node executions before Run aborts with
	// ErrMaxStepsExceeded. 0 means unlimited.
	MaxSteps int

	// MaxConcurrentNodes bounds how many nodes run at once. Default 8.
	MaxConcurrentNodes int

	// QueueDepth sets the frontier's buffered capacity. Default 1024.
	QueueDepth int

	// BackpressureTimeout is stored by WithBackpressureTimeout but not read
	// by Run: when the frontier is full, Enqueue blocks until space frees up
	// or the run's context is done, however long that takes.
	BackpressureTimeout time.Duration

	// DefaultNodeTimeout applies to nodes without an explicit NodePolicy.
	// Default 0, which disables the default (nodes without a policy run
	// unbounded).
	DefaultNodeTimeout time.Duration

	// RunWallClockBudget bounds total Run duration. 0 disables the budget.
	RunWallClockBudget time.Duration

	// Metrics, if set, receives Prometheus-compatible execution metrics.
	Metrics *PrometheusMetrics
}

// New creates an Engine with the given reducer, emitter, and options.
//
//	eng := engine.New(engine.MergeState, emitter, engine.WithMaxConcurrent(8))
func New[S any](reducer Reducer[S], emitter emit.Emitter, options ...Option) *Engine[S] {
	cfg := &engineConfig{}
	for _, opt := range options {
		_ = opt(cfg)
	}

	return &Engine[S]{
		reducer:  reducer,
		nodes:    make(map[string]Node[S]),
		policies: make(map[string]NodePolicy),
		edges:    make([]Edge[S], 0),
		emitter:  emitter,
		metrics:  cfg.opts.Metrics,
		opts:     cfg.opts,
	}
}

// Add registers a node under nodeID. Node IDs must be unique.
func (e *Engine[S]) Add(nodeID string, node Node[S]) error {
	if e == nil {
		return &EngineError{Message: "engine is nil", Code: "NIL_ENGINE"}
	}
	if nodeID == "" {
		return &EngineError{Message: "node ID cannot be empty"}
	}
	if node == nil {
		return &EngineError{Message: "node cannot be nil"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.nodes[nodeID]; exists {
		return &EngineError{Message: "duplicate node ID: " + nodeID, Code: "DUPLICATE_NODE"}
	}

	e.nodes[nodeID] = node
	return nil
}

// SetPolicy attaches a NodePolicy to an already-added node.
func (e *Engine[S]) SetPolicy(nodeID string, policy NodePolicy) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.nodes[nodeID]; !exists {
		return &EngineError{Message: "node does not exist: " + nodeID, Code: "NODE_NOT_FOUND"}
	}
	e.policies[nodeID] = policy
	return nil
}

// StartAt sets the node execution begins at. The node must already be
// registered via Add.
func (e *Engine[S]) StartAt(nodeID string) error {
	if e == nil {
		return &EngineError{Message: "engine is nil", Code: "NIL_ENGINE"}
	}
	if nodeID == "" {
		return &EngineError{Message: "start node ID cannot be empty"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.nodes[nodeID]; !exists {
		return &EngineError{Message: "start node does not exist: " + nodeID, Code: "NODE_NOT_FOUND"}
	}

	e.startNode = nodeID
	return nil
}

// Connect adds a plain edge from one node to another. When a source node
// has more than one plain (unlabeled) outgoing edge, all of them fire and
// their destinations may run concurrently once their own join requirements
// are satisfied.
func (e *Engine[S]) Connect(from, to string) error {
	return e.addEdge(Edge[S]{From: from, To: to})
}

// ConnectLabel adds a labeled edge, used for router dispatch: at runtime
// the engine follows the edge whose Label matches the node's
// NodeResult.Route.Label, or the edge labeled "else" if none matches.
func (e *Engine[S]) ConnectLabel(from, to, label string) error {
	if label == "" {
		return &EngineError{Message: "label cannot be empty for a labeled edge"}
	}
	return e.addEdge(Edge[S]{From: from, To: to, Label: label})
}

func (e *Engine[S]) addEdge(edge Edge[S]) error {
	if e == nil {
		return &EngineError{Message: "engine is nil", Code: "NIL_ENGINE"}
	}
	if edge.From == "" {
		return &EngineError{Message: "from node ID cannot be empty"}
	}
	if edge.To == "" {
		return &EngineError{Message: "to node ID cannot be empty"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.edges = append(e.edges, edge)
	return nil
}

// join tracks how many distinct predecessors must complete before a node
// becomes runnable, and which predecessors have already arrived. A node
// reached only via labeled (router) edges requires just one arrival, since
// exactly one labeled edge fires per router execution; a node reached via
// N plain edges from N distinct predecessors requires all N.
type join struct {
	mu       sync.Mutex
	required map[string]int
	arrived  map[string]map[string]bool
}

func newJoin[S any](edges []Edge[S]) *join {
	j := &join{
		required: make(map[string]int),
		arrived:  make(map[string]map[string]bool),
	}
	predecessors := make(map[string]map[string]bool)
	for _, edge := range edges {
		set, ok := predecessors[edge.To]
		if !ok {
			set = make(map[string]bool)
			predecessors[edge.To] = set
		}
		set[edge.From] = true
	}
	for to, set := range predecessors {
		j.required[to] = len(set)
	}
	return j
}

// arrive records that from has completed on a path leading to to. It
// returns true exactly once per to, the moment the required number of
// distinct predecessors have arrived.
func (j *join) arrive(to, from string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	set, ok := j.arrived[to]
	if !ok {
		set = make(map[string]bool)
		j.arrived[to] = set
	}
	if set[from] {
		return false
	}
	set[from] = true
	return len(set) >= j.required[to]
}

// Run executes the workflow from the start node to completion.
//
// Nodes run concurrently, bounded by Options.MaxConcurrentNodes, as soon as
// all of their distinct predecessors (per the compiled edge graph) have
// completed. Results are merged into a single shared state via the
// engine's Reducer as each node finishes, under a mutex, so the merge
// order is the order in which nodes complete.
func (e *Engine[S]) Run(ctx context.Context, runID string, initial S) (S, error) {
	var zero S

	if e == nil {
		return zero, &EngineError{Message: "engine is nil", Code: "NIL_ENGINE"}
	}
	if e.reducer == nil {
		return zero, &EngineError{Message: "reducer is required", Code: "MISSING_REDUCER"}
	}
	if e.startNode == "" {
		return zero, &EngineError{Message: "start node not set (call StartAt before Run)", Code: "NO_START_NODE"}
	}

	e.mu.RLock()
	_, exists := e.nodes[e.startNode]
	edges := append([]Edge[S](nil), e.edges...)
	e.mu.RUnlock()
	if !exists {
		return zero, &EngineError{Message: "start node does not exist: " + e.startNode, Code: "NODE_NOT_FOUND"}
	}

	if e.opts.RunWallClockBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.RunWallClockBudget)
		defer cancel()
	}

	queueDepth := e.opts.QueueDepth
	if queueDepth == 0 {
		queueDepth = 1024
	}
	frontier := NewFrontier[S](ctx, queueDepth)

	maxWorkers := e.opts.MaxConcurrentNodes
	if maxWorkers <= 0 {
		maxWorkers = 8
	}

	j := newJoin[S](edges)

	state := initial
	var stateMu sync.Mutex

	var stepCounter atomic.Int32
	var inflight atomic.Int32
	var completionDetected atomic.Bool
	var runErr atomic.Value

	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	checkCompletion := func() bool {
		if frontier.Len() == 0 && inflight.Load() == 0 {
			if completionDetected.CompareAndSwap(false, true) {
				cancel()
				return true
			}
		}
		return false
	}

	abort := func(err error) {
		runErr.CompareAndSwap(nil, err)
		cancel()
	}

	if err := frontier.Enqueue(ctx, WorkItem[S]{
		StepID:       0,
		OrderKey:     computeOrderKey("__start__", 0),
		NodeID:       e.startNode,
		State:        initial,
		ParentNodeID: "__start__",
	}); err != nil {
		return zero, err
	}

	if e.metrics != nil {
		go func() {
			ticker := time.NewTicker(100 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-workerCtx.Done():
					return
				case <-ticker.C:
					e.metrics.UpdateQueueDepth(frontier.Len())
					e.metrics.UpdateInflightNodes(int(inflight.Load()))
				}
			}
		}()
	}

	var wg sync.WaitGroup
	for i := 0; i < maxWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				item, err := frontier.Dequeue(workerCtx)
				if err != nil {
					checkCompletion()
					return
				}

				inflight.Add(1)
				e.runOne(workerCtx, runID, item, edges, j, frontier, &state, &stateMu, &stepCounter, abort)
				inflight.Add(-1)

				if checkCompletion() {
					return
				}
			}
		}()
	}
	wg.Wait()

	if v := runErr.Load(); v != nil {
		return zero, v.(error)
	}
	if ctx.Err() != nil && !completionDetected.Load() {
		return zero, ctx.Err()
	}

	stateMu.Lock()
	final := state
	stateMu.Unlock()
	return final, nil
}

// runOne executes a single work item: runs its node, merges the resulting
// delta into the shared state, and enqueues whatever children the routing
// decision and join tracker make runnable.
func (e *Engine[S]) runOne(
	ctx context.Context,
	runID string,
	item WorkItem[S],
	edges []Edge[S],
	j *join,
	frontier *Frontier[S],
	state *S,
	stateMu *sync.Mutex,
	stepCounter *atomic.Int32,
	abort func(error),
) {
	step := int(stepCounter.Add(1))
	if e.opts.MaxSteps > 0 && step > e.opts.MaxSteps {
		abort(ErrMaxStepsExceeded)
		return
	}

	e.mu.RLock()
	node, exists := e.nodes[item.NodeID]
	policy, hasPolicy := e.policies[item.NodeID]
	e.mu.RUnlock()
	if !exists {
		abort(&EngineError{Message: "node not found during execution: " + item.NodeID, Code: "NODE_NOT_FOUND"})
		return
	}

	var nodePolicy *NodePolicy
	if hasPolicy {
		nodePolicy = &policy
	}

	nodeCtx := context.WithValue(ctx, RunIDKey, runID)
	nodeCtx = context.WithValue(nodeCtx, StepIDKey, step)
	nodeCtx = context.WithValue(nodeCtx, NodeIDKey, item.NodeID)

	e.emitNodeStart(runID, item.NodeID, item.StepID)

	start := time.Now()
	result, err := executeNodeWithTimeout(nodeCtx, node, item.NodeID, item.State, nodePolicy, e.opts.DefaultNodeTimeout)

	status := "success"
	if err != nil || result.Err != nil {
		status = "error"
	}
	if e.metrics != nil {
		e.metrics.RecordStepLatency(runID, item.NodeID, time.Since(start), status)
	}

	if err != nil {
		e.emitError(runID, item.NodeID, item.StepID, err)
		abort(err)
		return
	}
	if result.Err != nil {
		e.emitError(runID, item.NodeID, item.StepID, result.Err)
		abort(result.Err)
		return
	}

	stateMu.Lock()
	*state = e.reducer(*state, result.Delta)
	snapshot := *state
	stateMu.Unlock()

	e.emitNodeEnd(runID, item.NodeID, item.StepID, result.Delta)

	if result.Route.Terminal {
		e.emitRoutingDecision(runID, item.NodeID, item.StepID, map[string]any{"terminal": true})
		return
	}

	if result.Route.To != "" {
		e.emitRoutingDecision(runID, item.NodeID, item.StepID, map[string]any{"next_node": result.Route.To})
		e.dispatch(ctx, frontier, item, result.Route.To, 0, snapshot, abort)
		return
	}

	targets, err := e.resolveTargets(item.NodeID, result.Route.Label, edges)
	if err != nil {
		abort(err)
		return
	}
	if len(targets) == 0 {
		e.emitRoutingDecision(runID, item.NodeID, item.StepID, map[string]any{"terminal": true})
		return
	}

	e.emitRoutingDecision(runID, item.NodeID, item.StepID, map[string]any{"next_nodes": targets})
	for idx, to := range targets {
		if !j.arrive(to, item.NodeID) {
			continue
		}
		e.dispatch(ctx, frontier, item, to, idx, snapshot, abort)
	}
}

// resolveTargets determines which outgoing edges of fromNode fire. Labeled
// edges resolve to exactly one target chosen by label (falling back to
// "else"); unlabeled edges all fire, enabling concurrent fan-out.
func (e *Engine[S]) resolveTargets(fromNode, label string, edges []Edge[S]) ([]string, error) {
	var labeled, plain []Edge[S]
	for _, edge := range edges {
		if edge.From != fromNode {
			continue
		}
		if edge.Label != "" {
			labeled = append(labeled, edge)
		} else {
			plain = append(plain, edge)
		}
	}

	if len(labeled) > 0 {
		for _, edge := range labeled {
			if edge.Label == label {
				return []string{edge.To}, nil
			}
		}
		for _, edge := range labeled {
			if edge.Label == "else" {
				return []string{edge.To}, nil
			}
		}
		return nil, NewFault(FaultRouterError, fromNode, fmt.Sprintf("no edge labeled %q and no else edge", label), nil)
	}

	targets := make([]string, 0, len(plain))
	for _, edge := range plain {
		targets = append(targets, edge.To)
	}
	return targets, nil
}

func (e *Engine[S]) dispatch(ctx context.Context, frontier *Frontier[S], parent WorkItem[S], to string, edgeIndex int, state S, abort func(error)) {
	item := WorkItem[S]{
		StepID:       parent.StepID + 1,
		OrderKey:     computeOrderKey(parent.NodeID, edgeIndex),
		NodeID:       to,
		State:        state,
		ParentNodeID: parent.NodeID,
		EdgeIndex:    edgeIndex,
	}
	if err := frontier.Enqueue(ctx, item); err != nil {
		abort(err)
	}
}

func (e *Engine[S]) emitNodeStart(runID, nodeID string, step int) {
	if e.emitter == nil {
		return
	}
	e.emitter.Emit(emit.Event{RunID: runID, Step: step, NodeID: nodeID, Msg: "node_start"})
}

func (e *Engine[S]) emitNodeEnd(runID, nodeID string, step int, delta S) {
	if e.emitter == nil {
		return
	}
	e.emitter.Emit(emit.Event{RunID: runID, Step: step, NodeID: nodeID, Msg: "node_end"})
}

func (e *Engine[S]) emitError(runID, nodeID string, step int, err error) {
	if e.emitter == nil {
		return
	}
	e.emitter.Emit(emit.Event{
		RunID: runID, Step: step, NodeID: nodeID, Msg: "error",
		Meta: map[string]any{"error": err.Error()},
	})
}

func (e *Engine[S]) emitRoutingDecision(runID, nodeID string, step int, meta map[string]any) {
	if e.emitter == nil {
		return
	}
	e.emitter.Emit(emit.Event{RunID: runID, Step: step, NodeID: nodeID, Msg: "routing_decision", Meta: meta})
}
