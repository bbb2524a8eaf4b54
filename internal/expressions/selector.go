// Package expressions picks the part of an item an assertion looks at. Selection
// expressions are jq programs run against the item's JSON.
package expressions

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/itchyny/gojq"

	"github.com/rendis/itemassert/pkg/schema"
)

// binaryVar is bound to the metadata of the item's attachments, keyed by
// attachment name. Payloads are not exposed.
const binaryVar = "$binary"

// Selector evaluates jq expressions against items. Compiled programs are
// cached by source text; a Selector is safe for concurrent use.
type Selector struct {
	mu    sync.Mutex
	codes map[string]*gojq.Code
}

// NewSelector creates an empty Selector.
func NewSelector() *Selector {
	return &Selector{codes: make(map[string]*gojq.Code)}
}

// Query runs expression against the item's JSON and returns every output.
// The expression may read attachment metadata through $binary, e.g.
// `$binary.data.mimeType`.
func (s *Selector) Query(ctx context.Context, expression string, item *schema.Item) ([]any, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty select expression")
	}
	code, err := s.compile(expression)
	if err != nil {
		return nil, err
	}

	var input any = map[string]any{}
	if item != nil && item.JSON != nil {
		input = toJQ(item.JSON)
	}

	var out []any
	iter := code.RunWithContext(ctx, input, attachmentsVar(item))
	for {
		v, ok := iter.Next()
		if !ok {
			return out, nil
		}
		if err, isErr := v.(error); isErr {
			return nil, exprError(schema.ErrCodeExecution, expression, "evaluation failed", err)
		}
		out = append(out, v)
	}
}

// SelectItem runs expression and requires exactly one JSON object as output.
func (s *Selector) SelectItem(ctx context.Context, expression string, item *schema.Item) (map[string]any, error) {
	out, err := s.Query(ctx, expression, item)
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"select %q must produce exactly one value, got %d", expression, len(out)).
			WithDetails(map[string]any{"expression": expression})
	}
	obj, ok := out[0].(map[string]any)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"select %q must produce an object, got %T", expression, out[0]).
			WithDetails(map[string]any{"expression": expression})
	}
	return obj, nil
}

func (s *Selector) compile(expression string) (*gojq.Code, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if code, ok := s.codes[expression]; ok {
		return code, nil
	}

	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, exprError(schema.ErrCodeValidation, expression, "parse error", err)
	}
	code, err := gojq.Compile(query,
		gojq.WithVariables([]string{binaryVar}),
		// $ENV and env are always empty.
		gojq.WithEnvironLoader(func() []string { return nil }),
	)
	if err != nil {
		return nil, exprError(schema.ErrCodeValidation, expression, "compile error", err)
	}
	s.codes[expression] = code
	return code, nil
}

func exprError(code, expression, what string, err error) *schema.NodeError {
	return schema.NewErrorf(code, "select %q: %s: %s", expression, what, err.Error()).
		WithCause(err).
		WithDetails(map[string]any{"expression": expression})
}

func attachmentsVar(item *schema.Item) map[string]any {
	out := map[string]any{}
	if !item.HasBinary() {
		return out
	}
	for name, att := range item.Binary {
		if att == nil {
			continue
		}
		meta := make(map[string]any, len(att.Metadata))
		for k, v := range att.Metadata {
			meta[k] = v
		}
		out[name] = meta
	}
	return out
}

// toJQ copies v into the value space gojq accepts: int, float64, string, bool,
// nil, []any and map[string]any.
func toJQ(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = toJQ(e)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = toJQ(e)
		}
		return out
	case json.Number:
		if n, err := val.Int64(); err == nil && int64(int(n)) == n {
			return int(n)
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case int64:
		return float64(val)
	case int32:
		return int(val)
	case float32:
		return float64(val)
	default:
		return v
	}
}
