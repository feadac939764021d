package tool

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"
)

// HTTPTool executes an outbound HTTP request and reports a structured
// result rather than a Go error for anything the remote server itself
// returned — a caller distinguishes success from failure via the "ok" field,
// not via Call's error return. Call only errors when the request itself
// could not be built or sent (bad URL, connection failure, canceled
// context).
//
// Input parameters:
//   - method: HTTP method, defaults to GET.
//   - url: target URL (required).
//   - headers: optional map of request headers.
//   - body: optional parameters; for GET/DELETE these become query
//     parameters, for POST/PUT/PATCH a JSON request body.
//
// Output:
//   - ok: true for a 2xx response.
//   - status: numeric HTTP status code.
//   - headers: response headers, comma-joined when repeated.
//   - body_json / body_text / body_b64: exactly one is set, chosen by
//     sniffing the response content type and decodability.
type HTTPTool struct {
	client *http.Client
}

// NewHTTPTool creates an HTTPTool. A nil client uses a plain *http.Client;
// per-call timeouts are expected to come from the caller's context.
func NewHTTPTool(client *http.Client) *HTTPTool {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPTool{client: client}
}

// Name returns the tool identifier.
func (h *HTTPTool) Name() string { return "http_request" }

// Call executes the HTTP request described by input.
func (h *HTTPTool) Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	urlStr, ok := input["url"].(string)
	if !ok || urlStr == "" {
		return nil, fmt.Errorf("url parameter required (string)")
	}

	method := "GET"
	if m, ok := input["method"].(string); ok && m != "" {
		method = strings.ToUpper(m)
	}

	headers := map[string]string{}
	if h, ok := input["headers"].(map[string]string); ok {
		headers = h
	} else if h, ok := input["headers"].(map[string]interface{}); ok {
		for k, v := range h {
			headers[k] = fmt.Sprint(v)
		}
	}

	body, _ := input["body"].(map[string]interface{})

	req, err := h.buildRequest(ctx, method, urlStr, body)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	result := map[string]interface{}{
		"ok":      resp.StatusCode >= 200 && resp.StatusCode < 300,
		"status":  resp.StatusCode,
		"headers": flattenHeaders(resp.Header),
	}
	for k, v := range decodeBody(respBody, resp.Header.Get("Content-Type")) {
		result[k] = v
	}
	return result, nil
}

func (h *HTTPTool) buildRequest(ctx context.Context, method, urlStr string, body map[string]interface{}) (*http.Request, error) {
	switch method {
	case http.MethodGet, http.MethodDelete:
		if len(body) > 0 {
			q := url.Values{}
			for k, v := range body {
				q.Set(k, fmt.Sprint(v))
			}
			sep := "?"
			if strings.Contains(urlStr, "?") {
				sep = "&"
			}
			urlStr += sep + q.Encode()
		}
		return http.NewRequestWithContext(ctx, method, urlStr, nil)
	default:
		var buf bytes.Buffer
		if len(body) > 0 {
			if err := json.NewEncoder(&buf).Encode(body); err != nil {
				return nil, fmt.Errorf("encode request body: %w", err)
			}
		}
		req, err := http.NewRequestWithContext(ctx, method, urlStr, &buf)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}
}

func flattenHeaders(h http.Header) map[string]interface{} {
	out := make(map[string]interface{}, len(h))
	for k, v := range h {
		out[k] = strings.Join(v, ", ")
	}
	return out
}

// decodeBody picks the response's body representation: a parsed JSON value
// when the content type looks like JSON and it decodes, UTF-8 text when the
// bytes are valid UTF-8, and base64 otherwise.
func decodeBody(body []byte, contentType string) map[string]interface{} {
	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "application/json") || strings.HasSuffix(ct, "+json") {
		var parsed interface{}
		if err := json.Unmarshal(body, &parsed); err == nil {
			return map[string]interface{}{"body_json": parsed}
		}
	}
	if utf8.Valid(body) {
		return map[string]interface{}{"body_text": string(body)}
	}
	return map[string]interface{}{"body_b64": base64.StdEncoding.EncodeToString(body)}
}
