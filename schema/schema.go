// Package schema validates JSON values against JSON Schema Draft 7,
// gating a workflow's declared input and output boundaries.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Fault codes reused by callers that want to classify a returned error
// without string matching.
const (
	FaultInvalidSchema    = "invalid_schema"
	FaultSchemaValidation = "schema_validation"
)

// Error reports a schema problem, carrying the taxonomy code and, for
// instance-validation failures, the dotted path to the offending value and
// the schema path that rejected it.
type Error struct {
	Code       string
	Message    string
	Path       string
	SchemaPath string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Path != "" {
		msg += fmt.Sprintf(" (path: %s)", e.Path)
	}
	if e.SchemaPath != "" {
		msg += fmt.Sprintf(" (schema_path: %s)", e.SchemaPath)
	}
	return msg
}

// CheckSchema verifies that schema is itself a well-formed JSON Schema
// document, returning FaultInvalidSchema on failure.
func CheckSchema(schemaDoc map[string]any) error {
	raw, err := json.Marshal(schemaDoc)
	if err != nil {
		return &Error{Code: FaultInvalidSchema, Message: err.Error()}
	}
	loader := gojsonschema.NewBytesLoader(raw)
	if _, err := gojsonschema.NewSchema(loader); err != nil {
		return &Error{Code: FaultInvalidSchema, Message: err.Error()}
	}
	return nil
}

// Validate checks instance against schemaDoc. formatCheck enables
// JSON-Schema "format" keyword checking (date-time, email, uri, ...). On
// failure it returns a *Error carrying FaultSchemaValidation, the dotted
// instance path, and the schema path of the first violated constraint.
func Validate(instance any, schemaDoc map[string]any, formatCheck bool) error {
	if err := CheckSchema(schemaDoc); err != nil {
		return err
	}

	effectiveSchema := schemaDoc
	if !formatCheck {
		effectiveSchema = stripFormatKeywords(schemaDoc)
	}

	schemaRaw, err := json.Marshal(effectiveSchema)
	if err != nil {
		return &Error{Code: FaultInvalidSchema, Message: err.Error()}
	}
	instanceRaw, err := json.Marshal(instance)
	if err != nil {
		return &Error{Code: FaultSchemaValidation, Message: err.Error()}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaRaw),
		gojsonschema.NewBytesLoader(instanceRaw),
	)
	if err != nil {
		return &Error{Code: FaultSchemaValidation, Message: err.Error()}
	}
	if result.Valid() {
		return nil
	}

	first := result.Errors()[0]
	return &Error{
		Code:       FaultSchemaValidation,
		Message:    first.Description(),
		Path:       strings.ReplaceAll(first.Field(), "(root).", ""),
		SchemaPath: strings.Join(first.Context().String(), "."),
	}
}

// stripFormatKeywords returns a deep copy of doc with every "format" key
// removed, so gojsonschema's always-on format checkers have nothing to
// match against. Used when the caller asks for formatCheck=false.
func stripFormatKeywords(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		if k == "format" {
			continue
		}
		out[k] = stripFormatValue(v)
	}
	return out
}

func stripFormatValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return stripFormatKeywords(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = stripFormatValue(item)
		}
		return out
	default:
		return v
	}
}

// Result is the outcome of SafeValidate: a non-throwing check.
type Result struct {
	OK    bool
	Error error
}

// SafeValidate is the non-throwing variant of Validate, returning a Result
// record instead of an error value.
func SafeValidate(instance any, schemaDoc map[string]any, formatCheck bool) Result {
	if err := Validate(instance, schemaDoc, formatCheck); err != nil {
		return Result{OK: false, Error: err}
	}
	return Result{OK: true}
}
