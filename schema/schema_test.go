package schema

import "testing"

func TestCheckSchemaRejectsInvalid(t *testing.T) {
	err := CheckSchema(map[string]any{"type": "bogus-type"})
	if err == nil {
		t.Fatal("expected invalid_schema error")
	}
}

func TestValidateAcceptsMatchingInstance(t *testing.T) {
	s := map[string]any{
		"type":                 "object",
		"properties":           map[string]any{"y": map[string]any{"type": "integer"}},
		"required":             []any{"y"},
		"additionalProperties": true,
	}
	if err := Validate(map[string]any{"y": 3}, s, true); err != nil {
		t.Fatalf("expected valid instance, got %v", err)
	}
}

func TestValidateRejectsMissingRequired(t *testing.T) {
	s := map[string]any{
		"type":       "object",
		"properties": map[string]any{"y": map[string]any{"type": "integer"}},
		"required":   []any{"y"},
	}
	err := Validate(map[string]any{"x": 123}, s, true)
	if err == nil {
		t.Fatal("expected schema_validation error")
	}
	se, ok := err.(*Error)
	if !ok || se.Code != FaultSchemaValidation {
		t.Fatalf("expected FaultSchemaValidation, got %#v", err)
	}
}

func TestSafeValidateReturnsResult(t *testing.T) {
	s := map[string]any{"type": "integer"}
	r := SafeValidate("not an int", s, true)
	if r.OK {
		t.Fatal("expected invalid result")
	}
	if r.Error == nil {
		t.Fatal("expected error populated")
	}
}
