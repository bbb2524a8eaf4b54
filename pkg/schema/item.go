package schema

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
)

// DefaultBinaryProperty is the attachment name used when none is configured.
const DefaultBinaryProperty = "data"

// Item is one unit of data flowing through a host pipeline: a JSON object plus
// an optional set of named binary attachments.
type Item struct {
	JSON   map[string]any               `json:"json"`
	Binary map[string]*BinaryAttachment `json:"binary,omitempty"`
}

// NewItem returns an item wrapping the given JSON object.
func NewItem(data map[string]any) Item {
	if data == nil {
		data = map[string]any{}
	}
	return Item{JSON: data}
}

// HasBinary reports whether the item carries any attachment at all.
func (it *Item) HasBinary() bool {
	return it != nil && len(it.Binary) > 0
}

// Attachment returns the named attachment, or nil.
func (it *Item) Attachment(name string) *BinaryAttachment {
	if it == nil || it.Binary == nil {
		return nil
	}
	return it.Binary[name]
}

// BinaryAttachment is a binary payload with open-ended metadata fields such as
// mimeType, fileName or fileExtension. Data holds the payload as base64 text.
//
// On the wire an attachment is a single flat object:
//
//	{"data": "aGVsbG8=", "mimeType": "text/plain", "fileName": "hello.txt"}
type BinaryAttachment struct {
	Data     string
	Metadata map[string]string
}

// Bytes decodes the base64 payload.
func (b *BinaryAttachment) Bytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(b.Data)
}

// Field returns a metadata field and whether it is set.
func (b *BinaryAttachment) Field(name string) (string, bool) {
	if b.Metadata == nil {
		return "", false
	}
	v, ok := b.Metadata[name]
	return v, ok
}

func (b BinaryAttachment) MarshalJSON() ([]byte, error) {
	out := make(map[string]string, len(b.Metadata)+1)
	for k, v := range b.Metadata {
		out[k] = v
	}
	out["data"] = b.Data
	return json.Marshal(out)
}

func (b *BinaryAttachment) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	payload, ok := raw["data"]
	if !ok {
		return fmt.Errorf("binary attachment: missing required field \"data\"")
	}
	if err := json.Unmarshal(payload, &b.Data); err != nil {
		return fmt.Errorf("binary attachment: data must be a base64 string: %w", err)
	}
	delete(raw, "data")

	b.Metadata = make(map[string]string, len(raw))
	for k, v := range raw {
		s, isNull, err := scalarText(v)
		if err != nil {
			return fmt.Errorf("binary attachment: field %q: %w", k, err)
		}
		if !isNull {
			b.Metadata[k] = s
		}
	}
	return nil
}

// MetadataExpectation is one expected attachment metadata field. A nil Value
// places no constraint on the field.
type MetadataExpectation struct {
	Field string  `json:"name"`
	Value *string `json:"value,omitempty"`
}

// Expect returns a constrained expectation.
func Expect(field, value string) MetadataExpectation {
	return MetadataExpectation{Field: field, Value: &value}
}

// ParseMetadataExpectations decodes a JSON object of field -> expected value,
// keeping the key order of the document. Null values are unconstrained.
func ParseMetadataExpectations(raw json.RawMessage) ([]MetadataExpectation, error) {
	if len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, NewError(ErrCodeValidation, "metadata: invalid JSON").WithCause(err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, NewError(ErrCodeValidation, "metadata: expected a JSON object")
	}

	var out []MetadataExpectation
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, NewError(ErrCodeValidation, "metadata: invalid JSON").WithCause(err)
		}
		key, _ := keyTok.(string)

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, NewError(ErrCodeValidation, "metadata: invalid JSON").WithCause(err)
		}
		s, isNull, err := scalarText(value)
		if err != nil {
			return nil, NewErrorf(ErrCodeValidation, "metadata: field %q: %s", key, err)
		}
		if isNull {
			out = append(out, MetadataExpectation{Field: key})
			continue
		}
		out = append(out, Expect(key, s))
	}
	return out, nil
}

// MetadataExpectationsFromMap converts an already-decoded object. Go maps carry
// no key order, so fields are sorted by name.
func MetadataExpectationsFromMap(m map[string]any) ([]MetadataExpectation, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]MetadataExpectation, 0, len(keys))
	for _, k := range keys {
		switch v := m[k].(type) {
		case nil:
			out = append(out, MetadataExpectation{Field: k})
		case string:
			out = append(out, Expect(k, v))
		case bool, float64, int, int64, json.Number:
			out = append(out, Expect(k, fmt.Sprint(v)))
		default:
			return nil, NewErrorf(ErrCodeValidation, "metadata: field %q must be a scalar, got %T", k, v)
		}
	}
	return out, nil
}

// scalarText renders a raw JSON scalar as text. Strings are unquoted; numbers
// and booleans keep their literal spelling.
func scalarText(raw json.RawMessage) (string, bool, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "", true, nil
	}
	switch trimmed[0] {
	case 'n':
		return "", true, nil
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", false, err
		}
		return s, false, nil
	case '{', '[':
		return "", false, fmt.Errorf("must be a scalar value")
	default:
		return string(trimmed), false, nil
	}
}
