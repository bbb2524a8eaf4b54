package validation

import (
	"bytes"
	"encoding/json"

	"github.com/rendis/itemassert/pkg/schema"
)

// ParseItems decodes a single item or an array of items, validating each
// against the item schema. Numbers are kept as json.Number. The error names
// the index of the first invalid item.
func (v *JSONSchemaValidator) ParseItems(raw []byte) ([]schema.Item, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "no items provided")
	}

	var elems []json.RawMessage
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &elems); err != nil {
			return nil, schema.NewError(schema.ErrCodeValidation, "items are not valid JSON").WithCause(err)
		}
	} else {
		elems = []json.RawMessage{trimmed}
	}

	items := make([]schema.Item, 0, len(elems))
	for i, elem := range elems {
		if err := v.ValidateItem(elem); err != nil {
			return nil, schema.AsNodeError(err).WithItem(i)
		}
		var item schema.Item
		dec := json.NewDecoder(bytes.NewReader(elem))
		dec.UseNumber()
		if err := dec.Decode(&item); err != nil {
			return nil, schema.NewError(schema.ErrCodeValidation, "invalid item").WithItem(i).WithCause(err)
		}
		if item.JSON == nil {
			item.JSON = map[string]any{}
		}
		items = append(items, item)
	}
	return items, nil
}
