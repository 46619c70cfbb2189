package tool

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	invopop "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ValidationError represents parameter validation errors with detailed information.
type ValidationError struct {
	Field   string `json:"field"`   // JSON pointer of the offending value ("" for the root)
	Message string `json:"message"` // Human-readable error message
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation error: %s", e.Message)
	}
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// SchemaFromStruct derives a JSON schema object from a struct using reflection.
// Field names follow json tags; fields without omitempty are required and
// descriptions come from `jsonschema:"description=..."` tags.
func SchemaFromStruct(v any) map[string]any {
	r := &invopop.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}

	raw, err := json.Marshal(r.Reflect(v))
	if err != nil {
		return emptyObjectSchema()
	}

	var schema map[string]any
	if err := json.Unmarshal(raw, &schema); err != nil {
		return emptyObjectSchema()
	}

	delete(schema, "$schema")
	delete(schema, "$id")

	if _, ok := schema["properties"]; !ok {
		schema["properties"] = map[string]any{}
	}

	return schema
}

func emptyObjectSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}

// compileSchema compiles a JSON schema map for argument validation.
func compileSchema(name string, schema map[string]any) (*jsonschema.Schema, error) {
	if len(schema) == 0 {
		return nil, nil
	}

	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema for %q: %w", name, err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource for %q: %w", name, err)
	}

	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema for %q: %w", name, err)
	}

	return compiled, nil
}

// validateArgs checks args against a compiled schema. A nil schema accepts anything.
func validateArgs(schema *jsonschema.Schema, args map[string]any) error {
	if schema == nil {
		return nil
	}

	// Round-trip through JSON so numeric and nested values have decoded shapes.
	raw, err := json.Marshal(args)
	if err != nil {
		return &ValidationError{Message: err.Error()}
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return &ValidationError{Message: err.Error()}
	}

	if err := schema.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			leaf := deepestCause(ve)
			return &ValidationError{Field: leaf.InstanceLocation, Message: leaf.Message}
		}
		return &ValidationError{Message: err.Error()}
	}

	return nil
}

func deepestCause(ve *jsonschema.ValidationError) *jsonschema.ValidationError {
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	return ve
}
