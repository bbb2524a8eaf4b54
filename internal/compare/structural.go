// Package compare holds the structural and binary comparison engine behind the
// assertion actions. Every function is pure: inputs are never mutated and no
// state is kept between calls.
package compare

import (
	"sort"
	"strings"

	"github.com/rendis/itemassert/pkg/schema"
)

// Policy selects which discrepancies are tolerated.
type Policy struct {
	IgnoreExtraKeys       bool `json:"ignoreExtraKeys"`
	IgnoreMissingKeys     bool `json:"ignoreMissingKeys"`
	IgnoreValueMismatches bool `json:"ignoreValueMismatches"`
}

// DefaultPolicy tolerates extra keys and value differences but fails on
// missing keys.
func DefaultPolicy() Policy {
	return Policy{
		IgnoreExtraKeys:       true,
		IgnoreMissingKeys:     false,
		IgnoreValueMismatches: true,
	}
}

// Result classifies the top-level keys of a reference and an actual object.
// The three lists are disjoint and sorted.
type Result struct {
	MissingKeys          []string `json:"missingKeys"`
	ExtraKeys            []string `json:"extraKeys"`
	MismatchedValuesKeys []string `json:"mismatchedValuesKeys"`
}

// Clean reports whether no discrepancy of any kind was found.
func (r Result) Clean() bool {
	return len(r.MissingKeys) == 0 && len(r.ExtraKeys) == 0 && len(r.MismatchedValuesKeys) == 0
}

// Classify computes missing, extra and mismatched keys without applying any
// policy.
func Classify(reference, actual map[string]any) Result {
	res := Result{
		MissingKeys:          []string{},
		ExtraKeys:            []string{},
		MismatchedValuesKeys: []string{},
	}

	for key, want := range reference {
		got, ok := actual[key]
		if !ok {
			res.MissingKeys = append(res.MissingKeys, key)
			continue
		}
		if !Equal(want, got) {
			res.MismatchedValuesKeys = append(res.MismatchedValuesKeys, key)
		}
	}
	for key := range actual {
		if _, ok := reference[key]; !ok {
			res.ExtraKeys = append(res.ExtraKeys, key)
		}
	}

	sort.Strings(res.MissingKeys)
	sort.Strings(res.ExtraKeys)
	sort.Strings(res.MismatchedValuesKeys)
	return res
}

// Compare classifies the keys and then applies the policy, checking missing,
// extra and mismatched keys in that order. The full Result is returned even
// when an error is, so callers can report every discrepancy.
func Compare(reference, actual map[string]any, policy Policy) (Result, error) {
	res := Classify(reference, actual)

	if !policy.IgnoreMissingKeys && len(res.MissingKeys) > 0 {
		return res, keysError(schema.ErrCodeMissingKeys, "item misses keys", res.MissingKeys)
	}
	if !policy.IgnoreExtraKeys && len(res.ExtraKeys) > 0 {
		return res, keysError(schema.ErrCodeExtraKeys, "item contains extra keys", res.ExtraKeys)
	}
	if !policy.IgnoreValueMismatches && len(res.MismatchedValuesKeys) > 0 {
		return res, keysError(schema.ErrCodeValueMismatch, "item contains wrong values for those keys", res.MismatchedValuesKeys)
	}
	return res, nil
}

func keysError(code, msg string, keys []string) *schema.NodeError {
	return schema.NewErrorf(code, "%s [%s]", msg, strings.Join(keys, ",")).
		WithDetails(map[string]any{"keys": append([]string(nil), keys...)})
}
