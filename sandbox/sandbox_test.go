package sandbox

import (
	"strings"
	"testing"
	"time"
)

func TestRunReturnsObject(t *testing.T) {
	v, err := Run(`return {num: input.num * 2, text: input.text.toUpperCase()};`,
		map[string]any{"num": 7.0, "text": "hello"}, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		t.Fatalf("expected object result, got %T", v)
	}
	if m["num"] != int64(14) && m["num"] != float64(14) {
		t.Fatalf("unexpected num: %v", m["num"])
	}
	if m["text"] != "HELLO" {
		t.Fatalf("unexpected text: %v", m["text"])
	}
}

func TestRunReturnsRawScalar(t *testing.T) {
	v, err := Run(`return input + 1;`, 41.0, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != int64(42) && v != float64(42) {
		t.Fatalf("unexpected scalar result: %v", v)
	}
}

func TestRunCapturesStdout(t *testing.T) {
	v, err := Run(`console.log("hi"); return {ok: true};`, nil, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m := v.(map[string]any)
	out, ok := m[StdoutKey].(string)
	if !ok || !strings.Contains(out, "hi") {
		t.Fatalf("expected captured stdout, got %v", m[StdoutKey])
	}
}

func TestRunTimesOut(t *testing.T) {
	_, err := Run(`while(true){}`, nil, 50*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestRunSyntaxError(t *testing.T) {
	_, err := Run(`this is not valid js (((`, nil, time.Second)
	if err == nil {
		t.Fatal("expected syntax error")
	}
}
