package engine

import "time"

// NodePolicy configures the execution behavior for a specific node.
//
// Policies are attached to nodes and enforced by the scheduler. If not
// specified, the default from Options is used.
type NodePolicy struct {
	// Timeout is the maximum execution time allowed for this node. If zero,
	// Options.DefaultNodeTimeout is used.
	Timeout time.Duration
}
