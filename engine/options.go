package engine

import "time"

// Option is a functional option for configuring an Engine.
//
// Example:
//
//	eng := engine.New(
//	    engine.MergeState, emitter,
//	    engine.WithMaxConcurrent(16),
//	    engine.WithQueueDepth(2048),
//	    engine.WithDefaultNodeTimeout(10*time.Second),
//	)
type Option func(*engineConfig) error

// engineConfig collects options before they are applied to an Engine.
type engineConfig struct {
	opts Options
}

// WithMaxSteps limits workflow execution to prevent infinite loops.
//
// Default: 0 (no limit). The join tracker counts each predecessor's arrival
// at a node only once per run, so each edge of a cycle (A -> B -> A) fires
// at most once and the cycle is not repeated. When exceeded, Run returns
// ErrMaxStepsExceeded.
func WithMaxSteps(n int) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.MaxSteps = n
		return nil
	}
}

// WithMaxConcurrent sets the maximum number of nodes executing concurrently.
//
// Default: 8. Each concurrently executing node holds its own state snapshot,
// so memory usage scales with this value on wide fan-outs.
func WithMaxConcurrent(n int) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.MaxConcurrentNodes = n
		return nil
	}
}

// WithQueueDepth sets the capacity of the execution frontier queue.
//
// Default: 1024. When the queue is full, new work items block until space
// becomes available, providing backpressure against unbounded fan-out.
func WithQueueDepth(n int) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.QueueDepth = n
		return nil
	}
}

// WithBackpressureTimeout stores Options.BackpressureTimeout. Run does not
// read it: when the frontier queue is full, Enqueue waits until space frees
// up or the run's context is done, and ErrBackpressureTimeout is not
// returned.
//
// Default: 0.
func WithBackpressureTimeout(d time.Duration) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.BackpressureTimeout = d
		return nil
	}
}

// WithDefaultNodeTimeout sets the execution timeout applied to nodes that
// don't carry an explicit NodePolicy.Timeout.
//
// Default: 0 (no timeout for such nodes).
func WithDefaultNodeTimeout(d time.Duration) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.DefaultNodeTimeout = d
		return nil
	}
}

// WithRunWallClockBudget sets the maximum total execution time for Run. If
// exceeded, Run returns context.DeadlineExceeded.
//
// Default: 0, which disables the budget.
func WithRunWallClockBudget(d time.Duration) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.RunWallClockBudget = d
		return nil
	}
}

// ConflictPolicy names how concurrent state updates are handled when two
// branches complete and both carry a delta. ConflictFail is the only value
// WithConflictPolicy accepts, and the engine does not consult it: the
// per-key reducer resolves every merge (union on Data, last-writer-wins on
// LastNode, concatenation on Errors) without returning an error.
type ConflictPolicy int

const (
	// ConflictFail is the only accepted policy value. Concurrent writes to
	// the same Data key are not reported; the later merge wins.
	ConflictFail ConflictPolicy = iota
)

// WithConflictPolicy sets the policy for concurrent state update conflicts.
// Only ConflictFail is currently supported.
func WithConflictPolicy(policy ConflictPolicy) Option {
	return func(cfg *engineConfig) error {
		if policy != ConflictFail {
			return &EngineError{
				Message: "only ConflictFail policy is currently supported",
				Code:    "UNSUPPORTED_CONFLICT_POLICY",
			}
		}
		return nil
	}
}

// WithMetrics enables Prometheus metrics collection for this engine.
func WithMetrics(metrics *PrometheusMetrics) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.Metrics = metrics
		return nil
	}
}
