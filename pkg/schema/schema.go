package schema

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed payload.json
var payloadSchema []byte

// ValidationError describes one way a payload violates the schema
type ValidationError struct {
	Field       string `json:"field"`
	Kind        string `json:"kind"`
	Description string `json:"description"`
}

// Validator checks raw task payloads against the embedded payload
// schema. Compile once, validate per run.
type Validator struct {
	schema *gojsonschema.Schema
}

// NewValidator compiles the embedded payload schema
func NewValidator() (*Validator, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(payloadSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile payload schema: %w", err)
	}
	return &Validator{schema: compiled}, nil
}

// Validate returns the violations found in raw; nil means the payload
// is valid. A payload that is not JSON at all is a violation too, not
// an error: whatever the submitter sent, the answer is a structured
// rejection, never an infra failure.
func (v *Validator) Validate(raw []byte) []ValidationError {
	if len(raw) == 0 {
		return []ValidationError{{
			Field:       "(root)",
			Kind:        "required",
			Description: "payload is empty",
		}}
	}

	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return []ValidationError{{
			Field:       "(root)",
			Kind:        "invalid_json",
			Description: err.Error(),
		}}
	}
	if result.Valid() {
		return nil
	}

	violations := make([]ValidationError, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		violations = append(violations, ValidationError{
			Field:       e.Field(),
			Kind:        e.Type(),
			Description: e.Description(),
		})
	}
	return violations
}

// FormatErrors renders violations as the transcript block a submitter
// sees. The whole block is written as one log entry so nothing can
// interleave between the heading and the error array.
func FormatErrors(violations []ValidationError) string {
	pretty, err := json.MarshalIndent(violations, "", "  ")
	if err != nil {
		// ValidationError marshals from plain strings; this cannot
		// happen outside of memory corruption.
		pretty = []byte("[]")
	}
	return fmt.Sprintf("payload format is invalid json schema errors:\n%s", pretty)
}
