package api

import (
	"encoding/json"
	"fmt"

	"github.com/kaptinlin/jsonschema"
)

// Schema validates JSON-shaped values against a JSON Schema definition.
// Schemas are attached to actions and flows at definition time and checked
// at every invocation boundary.
type Schema struct {
	raw      json.RawMessage
	compiled *jsonschema.Schema
}

// NewSchema compiles a JSON Schema document. The raw definition is retained
// so it can be persisted alongside a blocked step and re-compiled on load.
func NewSchema(def []byte) (*Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiled, err := compiler.Compile(def)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Schema{raw: append(json.RawMessage(nil), def...), compiled: compiled}, nil
}

// MustSchema is like NewSchema but panics on a malformed definition.
// Useful for schemas declared at package init time.
func MustSchema(def string) *Schema {
	s, err := NewSchema([]byte(def))
	if err != nil {
		panic("genflow: " + err.Error())
	}
	return s
}

// Raw returns the schema's JSON definition.
func (s *Schema) Raw() json.RawMessage { return s.raw }

// Validate checks v against the schema. A nil Schema accepts everything.
// On mismatch it returns a *ValidationError describing every violation.
func (s *Schema) Validate(subject string, v any) error {
	if s == nil || s.compiled == nil {
		return nil
	}
	result := s.compiled.Validate(v)
	if result.IsValid() {
		return nil
	}
	var details []string
	for _, detail := range result.Errors {
		details = append(details, detail.Message)
	}
	return &ValidationError{Subject: subject, Details: details}
}

// MarshalJSON emits the original schema definition.
func (s *Schema) MarshalJSON() ([]byte, error) {
	if s == nil || len(s.raw) == 0 {
		return []byte("null"), nil
	}
	return s.raw, nil
}

// UnmarshalJSON recompiles the schema from its persisted definition.
func (s *Schema) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	parsed, err := NewSchema(data)
	if err != nil {
		return err
	}
	*s = *parsed
	return nil
}
