package actions

import (
	"fmt"
	"net/url"
	"sort"
)

// Param helpers used by all action files. A value of the wrong type falls
// back to the default; JSON Schema validation rejects such inputs earlier.

func stringParam(m map[string]any, key, defaultVal string) string {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	s, ok := v.(string)
	if !ok {
		return defaultVal
	}
	return s
}

func boolParam(m map[string]any, key string, defaultVal bool) bool {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	b, ok := v.(bool)
	if !ok {
		return defaultVal
	}
	return b
}

func objectParam(m map[string]any, key string) map[string]any {
	obj, _ := m[key].(map[string]any)
	return obj
}

// queryParam converts an object of query parameters into url.Values. Array
// values repeat the key; scalars are formatted with %v.
func queryParam(m map[string]any, key string) url.Values {
	obj := objectParam(m, key)
	if len(obj) == 0 {
		return nil
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	vals := url.Values{}
	for _, k := range keys {
		switch v := obj[k].(type) {
		case []any:
			for _, item := range v {
				vals.Add(k, fmt.Sprintf("%v", item))
			}
		case nil:
		default:
			vals.Add(k, fmt.Sprintf("%v", v))
		}
	}
	return vals
}
