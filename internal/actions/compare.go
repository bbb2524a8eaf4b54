package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"

	"github.com/rendis/itemassert/internal/compare"
	"github.com/rendis/itemassert/internal/expressions"
	"github.com/rendis/itemassert/internal/logging"
	"github.com/rendis/itemassert/internal/validation"
	"github.com/rendis/itemassert/pkg/schema"
)

const compareInputSchema = `{
  "type": "object",
  "properties": {
    "json": {"type": ["string", "object"]},
    "extraKeys": {"type": "boolean", "default": true},
    "missingKeys": {"type": "boolean", "default": false},
    "compareValues": {"type": "boolean", "default": true},
    "select": {"type": "string"}
  },
  "required": ["json"]
}`

const compareOutputSchema = `{
  "type": "object",
  "properties": {
    "missingKeys": {"type": "array", "items": {"type": "string"}},
    "extraKeys": {"type": "array", "items": {"type": "string"}},
    "mismatchedValuesKeys": {"type": "array", "items": {"type": "string"}}
  }
}`

// CompareAction implements "assert.compare": it compares the item's JSON
// against a reference document and fails when the configured tolerance does
// not allow the discrepancies found.
//
// Params:
//   - json: reference document, as JSON text or an object (required)
//   - extraKeys: tolerate keys absent from the reference (default true)
//   - missingKeys: tolerate reference keys absent from the item (default false)
//   - compareValues: tolerate differing values (default true)
//   - select: jq expression picking the object to compare (default: the whole item)
type CompareAction struct {
	validator *validation.JSONSchemaValidator
	jq        *expressions.Selector
	logger    *slog.Logger
}

// NewCompareAction creates the assert.compare action. A nil validator skips
// JSON Schema validation of params; a nil logger discards logs.
func NewCompareAction(validator *validation.JSONSchemaValidator, jq *expressions.Selector, logger *slog.Logger) *CompareAction {
	if jq == nil {
		jq = expressions.NewSelector()
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &CompareAction{validator: validator, jq: jq, logger: logger}
}

func (a *CompareAction) Name() string { return "assert.compare" }

func (a *CompareAction) Schema() ActionSchema {
	return ActionSchema{
		Description:  "Compare the item's JSON against a reference document and report missing, extra and mismatched keys",
		InputSchema:  json.RawMessage(compareInputSchema),
		OutputSchema: json.RawMessage(compareOutputSchema),
	}
}

func (a *CompareAction) Validate(params map[string]any) error {
	if params == nil {
		return schema.NewError(schema.ErrCodeValidation, "assert.compare requires 'json' parameter")
	}
	if a.validator != nil {
		if err := a.validator.ValidateInput(params, []byte(compareInputSchema)); err != nil {
			return err
		}
	}
	_, err := referenceParam(params["json"])
	return err
}

// PolicyFromParams reads the three tolerance flags, applying the defaults of
// compare.DefaultPolicy for absent ones.
func PolicyFromParams(params map[string]any) compare.Policy {
	def := compare.DefaultPolicy()
	return compare.Policy{
		IgnoreExtraKeys:       boolParam(params, "extraKeys", def.IgnoreExtraKeys),
		IgnoreMissingKeys:     boolParam(params, "missingKeys", def.IgnoreMissingKeys),
		IgnoreValueMismatches: boolParam(params, "compareValues", def.IgnoreValueMismatches),
	}
}

func (a *CompareAction) Execute(ctx context.Context, input ActionInput) (*ActionOutput, error) {
	if err := a.Validate(input.Params); err != nil {
		return nil, err
	}
	if input.Item == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "assert.compare: no input item")
	}

	reference, _ := referenceParam(input.Params["json"])
	policy := PolicyFromParams(input.Params)

	actual := input.Item.JSON
	if expr := stringParam(input.Params, "select", ""); expr != "" {
		selected, err := a.jq.SelectItem(ctx, expr, input.Item)
		if err != nil {
			return nil, err
		}
		actual = selected
	}

	res, err := compare.Compare(reference, actual, policy)
	logging.LogWith(ctx, a.logger).DebugContext(ctx, "compared item",
		slog.Int("missing", len(res.MissingKeys)),
		slog.Int("extra", len(res.ExtraKeys)),
		slog.Int("mismatched", len(res.MismatchedValuesKeys)),
		slog.Bool("failed", err != nil))
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(res)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "assert.compare: failed to marshal result").WithCause(err)
	}
	return &ActionOutput{Data: data}, nil
}

// referenceParam accepts the reference document as JSON text or as an
// already-decoded object. Numbers in JSON text are kept as json.Number.
func referenceParam(v any) (map[string]any, error) {
	switch ref := v.(type) {
	case map[string]any:
		return ref, nil
	case string:
		if len(bytes.TrimSpace([]byte(ref))) == 0 {
			return nil, schema.NewError(schema.ErrCodeValidation, "assert.compare: 'json' parameter is empty")
		}
		dec := json.NewDecoder(bytes.NewReader([]byte(ref)))
		dec.UseNumber()
		var doc any
		if err := dec.Decode(&doc); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "assert.compare: 'json' parameter is not valid JSON: %s", err).WithCause(err)
		}
		if dec.More() {
			return nil, schema.NewError(schema.ErrCodeValidation, "assert.compare: 'json' parameter has trailing data")
		}
		obj, ok := doc.(map[string]any)
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "assert.compare: 'json' parameter must be a JSON object, got %T", doc)
		}
		return obj, nil
	case nil:
		return nil, schema.NewError(schema.ErrCodeValidation, "assert.compare requires 'json' parameter")
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "assert.compare: 'json' must be a string or object, got %T", v)
	}
}
