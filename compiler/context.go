// Package compiler turns a parsed, structurally-validated dsl.Workflow into
// a runnable engine.Engine[engine.WorkflowState]: it installs the system
// start/end nodes, binds each declared node to an executor via a
// kind→factory registry, and wires edges (including router label dispatch)
// onto the engine's own scheduler.
package compiler

import (
	"net/http"
	"time"

	"github.com/dshills/wf-engine/jqrun"
	"github.com/dshills/wf-engine/llmprovider"
	"github.com/dshills/wf-engine/sandbox"
)

// JQRunner runs a jq program against resolved inputs, matching jqrun.Run's
// signature. Left nil, jq_transform nodes fail with missing_dependency
// instead of panicking on a nil compile-time collaborator.
type JQRunner func(program string, input any) (any, error)

// PythonRunner runs sandboxed user code under a wall-clock timeout, matching
// sandbox.Run's signature. Left nil, python_code nodes fail with
// missing_dependency.
type PythonRunner func(code string, input any, timeout time.Duration) (any, error)

// CompileContext holds the collaborators shared read-only across every node
// executor bound during Compile: the LLM model registry, the HTTP client
// used by http_request nodes, and the jq/sandbox runners used by
// jq_transform/python_code nodes. JQ and Python are declared as optional
// runner fields rather than always binding jqrun.Run/sandbox.Run directly so
// a deployment that omits one of these interpreters (or a test exercising
// the missing_dependency fault) can construct a CompileContext with a nil
// runner instead of those node kinds panicking or silently no-oping.
type CompileContext struct {
	Models     *llmprovider.Registry
	HTTPClient *http.Client
	JQ         JQRunner
	Python     PythonRunner
}

// DefaultCompileContext returns a CompileContext backed by a fresh model
// registry, a plain http.Client, and the built-in jq/sandbox runners.
func DefaultCompileContext() *CompileContext {
	return &CompileContext{
		Models:     llmprovider.NewRegistry(),
		HTTPClient: &http.Client{},
		JQ:         jqrun.Run,
		Python:     sandbox.Run,
	}
}
