package dsl

import "testing"

const identityWF = `{
  "id": "wf1", "version": 1,
  "input": {"schema": {"type": "object"}},
  "output": {"input_mapping": {"x": "$input.x"}},
  "nodes": [],
  "edges": [{"from": "start", "to": "end"}]
}`

func TestParseIdentity(t *testing.T) {
	wf, err := Parse([]byte(identityWF))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if wf.ID != "wf1" || wf.Version != 1 {
		t.Fatalf("unexpected workflow: %+v", wf)
	}
	if !wf.FailFast {
		t.Fatalf("expected fail_fast to default true")
	}
	if len(wf.Edges) != 1 || wf.Edges[0].From != "start" || wf.Edges[0].To != "end" {
		t.Fatalf("unexpected edges: %+v", wf.Edges)
	}
}

func TestParseRejectsDuplicateID(t *testing.T) {
	doc := `{
	  "id":"wf","version":1,"input":{},"output":{"input_mapping":{}},
	  "nodes":[{"id":"a","kind":"noop"},{"id":"a","kind":"noop"}],
	  "edges":[{"from":"start","to":"a"},{"from":"a","to":"end"}]
	}`
	if _, err := Parse([]byte(doc)); err == nil {
		t.Fatal("expected duplicate id error")
	}
}

func TestParseRejectsReservedID(t *testing.T) {
	doc := `{
	  "id":"wf","version":1,"input":{},"output":{"input_mapping":{}},
	  "nodes":[{"id":"end","kind":"noop"}],
	  "edges":[{"from":"start","to":"end"}]
	}`
	if _, err := Parse([]byte(doc)); err == nil {
		t.Fatal("expected reserved id error")
	}
}

func TestParseRejectsUnknownKind(t *testing.T) {
	doc := `{
	  "id":"wf","version":1,"input":{},"output":{"input_mapping":{}},
	  "nodes":[{"id":"a","kind":"bogus"}],
	  "edges":[{"from":"start","to":"a"},{"from":"a","to":"end"}]
	}`
	if _, err := Parse([]byte(doc)); err == nil {
		t.Fatal("expected unknown kind error")
	}
}

func TestParseRejectsMalformedID(t *testing.T) {
	doc := `{
	  "id":"wf","version":1,"input":{},"output":{"input_mapping":{}},
	  "nodes":[{"id":"Bad-Id","kind":"noop"}],
	  "edges":[{"from":"start","to":"Bad-Id"},{"from":"Bad-Id","to":"end"}]
	}`
	if _, err := Parse([]byte(doc)); err == nil {
		t.Fatal("expected malformed id error")
	}
}

func TestParseRejectsUnknownEdgeEndpoint(t *testing.T) {
	doc := `{
	  "id":"wf","version":1,"input":{},"output":{"input_mapping":{}},
	  "nodes":[],
	  "edges":[{"from":"start","to":"ghost"}]
	}`
	if _, err := Parse([]byte(doc)); err == nil {
		t.Fatal("expected unknown edge endpoint error")
	}
}

func TestParseRejectsEmptyBranchRoutes(t *testing.T) {
	doc := `{
	  "id":"wf","version":1,"input":{},"output":{"input_mapping":{}},
	  "nodes":[],
	  "edges":[{"from":"start","to":"end"},{"from":"start","routes":[]}]
	}`
	if _, err := Parse([]byte(doc)); err == nil {
		t.Fatal("expected empty branch route error")
	}
}

func TestParseRequiresStartAndEndEdges(t *testing.T) {
	noStart := `{"id":"wf","version":1,"input":{},"output":{"input_mapping":{}},"nodes":[{"id":"a","kind":"noop"}],"edges":[{"from":"a","to":"end"}]}`
	if _, err := Parse([]byte(noStart)); err == nil {
		t.Fatal("expected missing start-edge error")
	}

	noEnd := `{"id":"wf","version":1,"input":{},"output":{"input_mapping":{}},"nodes":[{"id":"a","kind":"noop"}],"edges":[{"from":"start","to":"a"}]}`
	if _, err := Parse([]byte(noEnd)); err == nil {
		t.Fatal("expected missing end-edge error")
	}
}

func TestParseRouterPreservesCaseOrder(t *testing.T) {
	doc := `{
	  "id":"wf","version":1,"input":{},"output":{"input_mapping":{}},
	  "nodes":[{"id":"r","kind":"router","cases":{"z_first":"else","a_second":"else"}}],
	  "edges":[{"from":"start","to":"r"},{"from":"r","routes":[{"to":"end","when_label":"z_first"},{"to":"end","when_label":"a_second"}]}]
	}`
	wf, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	r := wf.Nodes[0].Router
	if len(r.CaseLabels) != 2 || r.CaseLabels[0] != "z_first" || r.CaseLabels[1] != "a_second" {
		t.Fatalf("case order not preserved: %+v", r.CaseLabels)
	}
}

func TestParseBranchEdgeFlattensToRoutes(t *testing.T) {
	doc := `{
	  "id":"wf","version":1,"input":{},"output":{"input_mapping":{}},
	  "nodes":[{"id":"r","kind":"router","cases":{"a":"else"}}],
	  "edges":[{"from":"start","to":"r"},{"from":"r","routes":[{"to":"end","when_label":"a"}]}]
	}`
	wf, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	found := false
	for _, e := range wf.Edges {
		if e.From == "r" && e.IsBranch() {
			found = true
			if e.Routes[0].To != "end" || e.Routes[0].WhenLabel != "a" {
				t.Fatalf("unexpected route: %+v", e.Routes[0])
			}
		}
	}
	if !found {
		t.Fatal("expected branch edge from r")
	}
}

func TestNormalizePromptLegacyForms(t *testing.T) {
	wf, err := Parse([]byte(`{
	  "id":"wf","version":1,"input":{},"output":{"input_mapping":{}},
	  "nodes":[{"id":"l","kind":"llm","model":"openai:gpt-4o","prompt":[
	    ["text","hi {name}"],
	    {"type":"text","text":"second"},
	    {"type":"image_url","image_url":{"url":"https://x/y.png"}}
	  ]}],
	  "edges":[{"from":"start","to":"l"},{"from":"l","to":"end"}]
	}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	parts := wf.Nodes[0].LLM.Prompt
	if len(parts) != 3 {
		t.Fatalf("expected 3 parts, got %d: %+v", len(parts), parts)
	}
	if parts[0].Type != "text" || parts[0].Content != "hi {name}" {
		t.Fatalf("pair form not normalized: %+v", parts[0])
	}
	if parts[1].Type != "text" || parts[1].Content != "second" {
		t.Fatalf("openai-text form not normalized: %+v", parts[1])
	}
	if parts[2].Type != "image_url" || parts[2].Content != "https://x/y.png" {
		t.Fatalf("openai-image form not normalized: %+v", parts[2])
	}
}

func TestNormalizePromptStringKept(t *testing.T) {
	wf, err := Parse([]byte(`{
	  "id":"wf","version":1,"input":{},"output":{"input_mapping":{}},
	  "nodes":[{"id":"l","kind":"llm","model":"openai:gpt-4o","prompt":"hello {name}"}],
	  "edges":[{"from":"start","to":"l"},{"from":"l","to":"end"}]
	}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	text, ok := PromptIsString(wf.Nodes[0].LLM.Prompt)
	if !ok || text != "hello {name}" {
		t.Fatalf("expected string prompt kept as-is, got %+v", wf.Nodes[0].LLM.Prompt)
	}
}
