// Package validation checks action parameters and pipeline items against
// JSON Schema (Draft 2020-12).
package validation

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/rendis/itemassert/pkg/schema"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// itemSchemaJSON is the JSON Schema for a pipeline item as read from files or
// tool calls. Embedded as a constant to avoid filesystem dependencies.
const itemSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://itemassert.dev/schemas/item.json",
  "type": "object",
  "required": ["json"],
  "properties": {
    "json": { "type": "object" },
    "binary": {
      "type": "object",
      "additionalProperties": { "$ref": "#/$defs/attachment" }
    }
  },
  "additionalProperties": false,
  "$defs": {
    "attachment": {
      "type": "object",
      "required": ["data"],
      "properties": {
        "data": { "type": "string" }
      },
      "additionalProperties": { "type": ["string", "number", "boolean", "null"] }
    }
  }
}`

const itemSchemaURL = "https://itemassert.dev/schemas/item.json"

// JSONSchemaValidator validates items and action inputs using JSON Schema.
// It is safe for concurrent use.
type JSONSchemaValidator struct {
	itemSchema *jsonschema.Schema

	// mu guards the cache for dynamic schema compilation.
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

// NewJSONSchemaValidator creates a new JSONSchemaValidator with the item schema pre-compiled.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := newInputCompiler()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(itemSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal item schema: %w", err)
	}
	if err := c.AddResource(itemSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add item schema resource: %w", err)
	}
	itemSchema, err := c.Compile(itemSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile item schema: %w", err)
	}

	return &JSONSchemaValidator{
		itemSchema: itemSchema,
		cache:      make(map[string]*jsonschema.Schema),
	}, nil
}

// ValidateItem validates the raw JSON encoding of one item.
func (v *JSONSchemaValidator) ValidateItem(raw []byte) error {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "item is not valid JSON").WithCause(err)
	}
	if err := v.itemSchema.Validate(doc); err != nil {
		return toNodeError(err)
	}
	return nil
}

// ValidateInput validates input data against a JSON Schema provided as raw bytes.
// The schema is compiled and cached for subsequent calls with the same schema.
func (v *JSONSchemaValidator) ValidateInput(input map[string]any, inputSchema []byte) error {
	if input == nil {
		return schema.NewError(schema.ErrCodeValidation, "input is nil")
	}
	if len(inputSchema) == 0 {
		return nil // no schema means no validation needed
	}

	compiled, err := v.getOrCompile(inputSchema)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "invalid input schema").WithCause(err)
	}

	// Convert input to JSON-compatible value (json.Number for numbers).
	doc, err := toJSONValue(input)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize input").WithCause(err)
	}

	if err := compiled.Validate(doc); err != nil {
		return toNodeError(err)
	}
	return nil
}

// getOrCompile returns a cached compiled schema or compiles and caches a new one.
func (v *JSONSchemaValidator) getOrCompile(schemaBytes []byte) (*jsonschema.Schema, error) {
	key := string(schemaBytes)

	v.mu.RLock()
	if cached, ok := v.cache[key]; ok {
		v.mu.RUnlock()
		return cached, nil
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()

	// Double-check after acquiring write lock.
	if cached, ok := v.cache[key]; ok {
		return cached, nil
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(key))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	// Each dynamic schema gets a unique URL and a fresh compiler to avoid resource collisions.
	url := fmt.Sprintf("itemassert://input-schema/%d", len(v.cache))
	c := newInputCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}

	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	v.cache[key] = compiled
	return compiled, nil
}

func newInputCompiler() *jsonschema.Compiler {
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	return c
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so that
// numeric values become json.Number (required by the jsonschema library).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toNodeError converts a jsonschema.ValidationError into a NodeError listing
// every leaf violation with its instance location.
func toNodeError(err error) *schema.NodeError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}

	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("validation failed with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
