package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
)

func newTestRouter(t *testing.T) *mux.Router {
	t.Helper()
	svc := NewService(nil, nil, nil)
	root := mux.NewRouter()
	svc.LoadRoutes(root)
	return root
}

const identityWorkflow = `{
	"id": "identity", "version": 1,
	"input": {"schema": {"type": "object"}},
	"output": {"input_mapping": {"value": "$input.value"}},
	"nodes": [],
	"edges": [{"from": "start", "to": "end"}]
}`

func doPost(t *testing.T, router *mux.Router, path string, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleValidateAcceptsWellFormedWorkflow(t *testing.T) {
	router := newTestRouter(t)
	var wfSpec any
	_ = json.Unmarshal([]byte(identityWorkflow), &wfSpec)

	rec := doPost(t, router, "/workflow/validate", map[string]any{"wf_spec": wfSpec})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleValidateRejectsMalformedWorkflow(t *testing.T) {
	router := newTestRouter(t)
	rec := doPost(t, router, "/workflow/validate", map[string]any{"wf_spec": map[string]any{"nodes": []any{}}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleInvokeReturnsOutput(t *testing.T) {
	router := newTestRouter(t)
	var wfSpec any
	_ = json.Unmarshal([]byte(identityWorkflow), &wfSpec)

	rec := doPost(t, router, "/workflow/invoke", map[string]any{
		"wf_spec":    wfSpec,
		"input_data": map[string]any{"value": 7},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out["value"] != float64(7) {
		t.Fatalf("unexpected output: %v", out)
	}
}

func TestHandleInvokeRequiresInputData(t *testing.T) {
	router := newTestRouter(t)
	var wfSpec any
	_ = json.Unmarshal([]byte(identityWorkflow), &wfSpec)

	rec := doPost(t, router, "/workflow/invoke", map[string]any{"wf_spec": wfSpec})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}
