package actions

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"

	"github.com/rendis/itemassert/internal/compare"
	"github.com/rendis/itemassert/internal/logging"
	"github.com/rendis/itemassert/internal/validation"
	"github.com/rendis/itemassert/pkg/schema"
)

const binaryInputSchema = `{
  "type": "object",
  "properties": {
    "binaryPropertyName": {"type": "string", "minLength": 1, "default": "data"},
    "data": {"type": "string"},
    "metadata": {
      "oneOf": [
        {"type": "object", "additionalProperties": {"type": ["string", "number", "boolean", "null"]}},
        {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["name"],
            "properties": {
              "name": {"type": "string", "minLength": 1},
              "value": {"type": ["string", "null"]}
            }
          }
        }
      ]
    }
  },
  "required": ["data"]
}`

// successResult is the output record of a passing binary assertion.
var successResult = func() json.RawMessage {
	b, _ := json.Marshal(map[string]any{"success": true})
	return b
}()

// BinaryAction implements "assert.binary": it checks that the item carries a
// named attachment with the expected payload and metadata.
//
// Params:
//   - binaryPropertyName: attachment name (default "data")
//   - data: expected payload as base64 text (required)
//   - metadata: expected metadata fields, either an object or an ordered list of
//     {"name", "value"} entries; null or absent values are not checked
type BinaryAction struct {
	validator *validation.JSONSchemaValidator
	logger    *slog.Logger
}

// NewBinaryAction creates the assert.binary action.
func NewBinaryAction(validator *validation.JSONSchemaValidator, logger *slog.Logger) *BinaryAction {
	if logger == nil {
		logger = logging.Discard()
	}
	return &BinaryAction{validator: validator, logger: logger}
}

func (a *BinaryAction) Name() string { return "assert.binary" }

func (a *BinaryAction) Schema() ActionSchema {
	return ActionSchema{
		Description: "Assert that the item carries a binary attachment with the expected data and metadata",
		InputSchema: json.RawMessage(binaryInputSchema),
	}
}

func (a *BinaryAction) Validate(params map[string]any) error {
	if params == nil {
		return schema.NewError(schema.ErrCodeValidation, "assert.binary requires 'data' parameter")
	}
	if a.validator != nil {
		if err := a.validator.ValidateInput(params, []byte(binaryInputSchema)); err != nil {
			return err
		}
	}
	_, err := ExpectationFromParams(params)
	return err
}

// ExpectationFromParams builds the binary expectation described by params.
func ExpectationFromParams(params map[string]any) (compare.BinaryExpectation, error) {
	var exp compare.BinaryExpectation
	exp.Attachment = stringParam(params, "binaryPropertyName", schema.DefaultBinaryProperty)

	raw, ok := params["data"].(string)
	if !ok {
		return exp, schema.NewError(schema.ErrCodeValidation, "assert.binary requires 'data' string parameter")
	}
	payload, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return exp, schema.NewError(schema.ErrCodeValidation, "assert.binary: 'data' is not valid base64").WithCause(err)
	}
	exp.Payload = payload

	exp.Metadata, err = metadataParam(params["metadata"])
	if err != nil {
		return exp, err
	}
	return exp, nil
}

func metadataParam(v any) ([]schema.MetadataExpectation, error) {
	switch m := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return schema.ParseMetadataExpectations(m)
	case map[string]any:
		return schema.MetadataExpectationsFromMap(m)
	case []any:
		out := make([]schema.MetadataExpectation, 0, len(m))
		for i, entry := range m {
			obj, ok := entry.(map[string]any)
			if !ok {
				return nil, schema.NewErrorf(schema.ErrCodeValidation, "assert.binary: metadata[%d] must be an object", i)
			}
			name := stringParam(obj, "name", "")
			if name == "" {
				return nil, schema.NewErrorf(schema.ErrCodeValidation, "assert.binary: metadata[%d] requires 'name'", i)
			}
			if value, ok := obj["value"].(string); ok {
				out = append(out, schema.Expect(name, value))
				continue
			}
			out = append(out, schema.MetadataExpectation{Field: name})
		}
		return out, nil
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "assert.binary: metadata must be an object or array, got %T", v)
	}
}

func (a *BinaryAction) Execute(ctx context.Context, input ActionInput) (*ActionOutput, error) {
	if err := a.Validate(input.Params); err != nil {
		return nil, err
	}
	exp, _ := ExpectationFromParams(input.Params)

	if err := compare.CompareBinary(input.Item, exp); err != nil {
		logging.LogWith(ctx, a.logger).DebugContext(ctx, "binary assertion failed",
			slog.String("attachment", exp.Attachment),
			slog.String("error", err.Error()))
		return nil, err
	}
	return &ActionOutput{Data: successResult}, nil
}
