// Package api exposes the workflow engine over HTTP: POST /workflow/validate
// and POST /workflow/invoke. It wires C1-C5 together behind two endpoints
// and owns no engine logic of its own — grounded on
// albert-saclot-workflow-go-challenge's api/services/workflow/service.go
// (subrouter-per-resource, request-ID middleware, JSON content-type
// middleware, writeErrorJSON convention), the one HTTP-layer idiom in the
// retrieval pack even though that repo was not picked as teacher.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/dshills/wf-engine/compiler"
	"github.com/dshills/wf-engine/dsl"
	"github.com/dshills/wf-engine/engine"
	"github.com/dshills/wf-engine/engine/emit"
	"github.com/dshills/wf-engine/schema"
)

// maxRequestBody limits request bodies to prevent a client from forcing the
// server to buffer an unbounded workflow document.
const maxRequestBody = 1 << 20 // 1MB

type contextKey string

const requestIDKey contextKey = "requestID"

// Service handles the workflow HTTP endpoints. It depends on a
// *compiler.CompileContext (the LLM registry and HTTP client every compiled
// node shares) rather than constructing one per request.
type Service struct {
	cc      *compiler.CompileContext
	emitter emit.Emitter
	metrics *engine.PrometheusMetrics
}

// NewService builds a Service. A nil cc or emitter falls back to
// compiler.DefaultCompileContext and emit.NewNullEmitter respectively. A nil
// metrics disables Prometheus instrumentation for every run this service
// compiles.
func NewService(cc *compiler.CompileContext, emitter emit.Emitter, metrics *engine.PrometheusMetrics) *Service {
	if cc == nil {
		cc = compiler.DefaultCompileContext()
	}
	if emitter == nil {
		emitter = emit.NewNullEmitter()
	}
	return &Service{cc: cc, emitter: emitter, metrics: metrics}
}

// requestIDMiddleware assigns a unique ID to each request for log
// correlation; a client-sent X-Request-ID is reused, otherwise one is
// generated.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// LoadRoutes mounts the workflow endpoints under parentRouter.
func (s *Service) LoadRoutes(parentRouter *mux.Router) {
	router := parentRouter.PathPrefix("/workflow").Subrouter()
	router.Use(requestIDMiddleware)
	router.Use(jsonMiddleware)

	router.HandleFunc("/validate", s.HandleValidate).Methods(http.MethodPost)
	router.HandleFunc("/invoke", s.HandleInvoke).Methods(http.MethodPost)
}

// requestBody is the shared wire shape for both endpoints: a workflow
// description plus the input object the workflow is validated or invoked
// against.
type requestBody struct {
	WFSpec    json.RawMessage `json:"wf_spec"`
	InputData json.RawMessage `json:"input_data,omitempty"`
}

func decodeRequest(w http.ResponseWriter, r *http.Request) (*requestBody, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	var body requestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErrorJSON(w, "invalid_body", "invalid request body: "+err.Error(), http.StatusBadRequest)
		return nil, false
	}
	if len(body.WFSpec) == 0 {
		writeErrorJSON(w, "invalid_body", "wf_spec is required", http.StatusBadRequest)
		return nil, false
	}
	return &body, true
}

// HandleValidate parses and structurally validates the workflow description,
// and — if input_data was supplied — also validates it against the
// workflow's declared input schema. Responds {"status":"ok"} on success, or
// HTTP 400 with the validator's message on failure.
func (s *Service) HandleValidate(w http.ResponseWriter, r *http.Request) {
	rid := reqID(r)
	body, ok := decodeRequest(w, r)
	if !ok {
		return
	}

	wf, err := dsl.Parse(body.WFSpec)
	if err != nil {
		slog.Warn("workflow validation failed", "requestId", rid, "error", err)
		writeErrorJSON(w, engine.FaultInvalidWorkflow, err.Error(), http.StatusBadRequest)
		return
	}

	if len(body.InputData) > 0 {
		var input any
		if err := json.Unmarshal(body.InputData, &input); err != nil {
			writeErrorJSON(w, "invalid_body", "invalid input_data: "+err.Error(), http.StatusBadRequest)
			return
		}
		if err := schema.Validate(input, wf.Input.Schema, false); err != nil {
			slog.Warn("input schema validation failed", "requestId", rid, "workflow", wf.ID, "error", err)
			writeErrorJSON(w, schema.FaultSchemaValidation, err.Error(), http.StatusBadRequest)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// HandleInvoke compiles and runs the workflow against input_data, responding
// with the workflow's output on success, HTTP 400 when the request body,
// input_data or the workflow description is malformed, and HTTP 500 with
// the failure message when compilation or the run fails.
func (s *Service) HandleInvoke(w http.ResponseWriter, r *http.Request) {
	rid := reqID(r)
	body, ok := decodeRequest(w, r)
	if !ok {
		return
	}
	if len(body.InputData) == 0 {
		writeErrorJSON(w, "invalid_body", "input_data is required", http.StatusBadRequest)
		return
	}

	wf, err := dsl.Parse(body.WFSpec)
	if err != nil {
		slog.Warn("workflow parse failed", "requestId", rid, "error", err)
		writeErrorJSON(w, engine.FaultInvalidWorkflow, err.Error(), http.StatusBadRequest)
		return
	}

	var input any
	if err := json.Unmarshal(body.InputData, &input); err != nil {
		writeErrorJSON(w, "invalid_body", "invalid input_data: "+err.Error(), http.StatusBadRequest)
		return
	}

	slog.Debug("invoking workflow", "requestId", rid, "workflow", wf.ID)
	var opts []engine.Option
	if s.metrics != nil {
		opts = append(opts, engine.WithMetrics(s.metrics))
	}
	output, err := compiler.Invoke(r.Context(), wf, input, s.cc, s.emitter, rid, opts...)
	if err != nil {
		slog.Error("workflow invocation failed", "requestId", rid, "workflow", wf.ID, "error", err)
		writeErrorJSON(w, faultCode(err), err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, output)
}

func faultCode(err error) string {
	if f, ok := err.(*engine.Fault); ok {
		return f.Code
	}
	if f, ok := err.(*schema.Error); ok {
		return f.Code
	}
	return "internal_error"
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

func writeErrorJSON(w http.ResponseWriter, code, message string, status int) {
	writeJSON(w, status, map[string]any{"code": code, "message": message})
}

// reqID extracts the request ID set by requestIDMiddleware.
func reqID(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey).(string)
	return id
}
