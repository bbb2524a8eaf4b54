package expressions

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/itemassert/pkg/schema"
)

func item(data map[string]any) *schema.Item {
	it := schema.NewItem(data)
	return &it
}

func TestQuery_Identity(t *testing.T) {
	s := NewSelector()
	out, err := s.Query(context.Background(), ".", item(map[string]any{"name": "itemassert"}))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, map[string]any{"name": "itemassert"}, out[0])
}

func TestQuery_MultipleAndNoOutputs(t *testing.T) {
	s := NewSelector()
	out, err := s.Query(context.Background(), ".items[]", item(map[string]any{"items": []any{1, 2}}))
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2}, out)

	out, err = s.Query(context.Background(), "empty", item(nil))
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestQuery_NilItem(t *testing.T) {
	out, err := NewSelector().Query(context.Background(), "keys", nil)
	require.NoError(t, err)
	assert.Equal(t, []any{[]any{}}, out)
}

func TestQuery_NumbersFromDecodedJSON(t *testing.T) {
	s := NewSelector()
	data := map[string]any{"a": int64(2), "b": json.Number("3"), "c": json.Number("0.5")}

	out, err := s.Query(context.Background(), ".a + .b + .c", item(data))
	require.NoError(t, err)
	assert.Equal(t, []any{5.5}, out)

	// Source data untouched.
	assert.Equal(t, int64(2), data["a"])
	assert.Equal(t, json.Number("3"), data["b"])
}

func TestQuery_BinaryMetadata(t *testing.T) {
	it := item(map[string]any{})
	it.Binary = map[string]*schema.BinaryAttachment{
		"data": {Data: "aGk=", Metadata: map[string]string{"mimeType": "text/plain"}},
	}

	out, err := NewSelector().Query(context.Background(), "$binary.data.mimeType", it)
	require.NoError(t, err)
	assert.Equal(t, []any{"text/plain"}, out)

	out, err = NewSelector().Query(context.Background(), "$binary.data.data", it)
	require.NoError(t, err)
	assert.Equal(t, []any{nil}, out, "payload is not exposed")
}

func TestSelectItem(t *testing.T) {
	s := NewSelector()
	obj, err := s.SelectItem(context.Background(), ".body", item(map[string]any{
		"body": map[string]any{"id": "x"},
	}))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": "x"}, obj)
}

func TestSelectItem_Errors(t *testing.T) {
	tests := []struct {
		name string
		expr string
		code string
	}{
		{"not an object", ".n", schema.ErrCodeValidation},
		{"several results", ".list[]", schema.ErrCodeValidation},
		{"no result", "empty", schema.ErrCodeValidation},
		{"parse error", ".[", schema.ErrCodeValidation},
		{"runtime error", ".n | keys", schema.ErrCodeExecution},
		{"empty expression", "", schema.ErrCodeValidation},
	}

	s := NewSelector()
	data := item(map[string]any{"n": 1, "list": []any{map[string]any{}, map[string]any{}}})
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.SelectItem(context.Background(), tc.expr, data)
			require.Error(t, err)
			assert.True(t, schema.HasCode(err, tc.code), err.Error())
		})
	}
}

func TestQuery_EnvBlocked(t *testing.T) {
	out, err := NewSelector().Query(context.Background(), "$ENV | length", item(nil))
	require.NoError(t, err)
	assert.Equal(t, []any{0}, out)
}

func TestQuery_ConcurrentCache(t *testing.T) {
	s := NewSelector()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := s.Query(context.Background(), ".n", item(map[string]any{"n": i}))
			assert.NoError(t, err)
			assert.Equal(t, []any{i}, out)
		}(i)
	}
	wg.Wait()
	assert.Len(t, s.codes, 1)
}
