package compare

import (
	"bytes"

	"github.com/rendis/itemassert/pkg/schema"
)

// BinaryExpectation describes the attachment an item is expected to carry.
type BinaryExpectation struct {
	Attachment string
	Payload    []byte
	Metadata   []schema.MetadataExpectation
}

// CompareBinary checks an item's attachment against exp and returns the first
// failing check: no attachments, attachment not found, payload mismatch, then
// each constrained metadata field in order.
func CompareBinary(item *schema.Item, exp BinaryExpectation) error {
	if !item.HasBinary() {
		return schema.NewError(schema.ErrCodeNoBinaryData, "item has no binary data")
	}

	att := item.Attachment(exp.Attachment)
	if att == nil {
		return schema.NewErrorf(schema.ErrCodeAttachmentNotFound, "item has no binary property %q", exp.Attachment).
			WithDetails(map[string]any{"attachment": exp.Attachment})
	}

	got, err := att.Bytes()
	if err != nil {
		return schema.NewErrorf(schema.ErrCodePayloadMismatch, "binary property %q does not hold valid base64 data", exp.Attachment).
			WithCause(err).
			WithDetails(map[string]any{"attachment": exp.Attachment})
	}
	if !bytes.Equal(got, exp.Payload) {
		return schema.NewErrorf(schema.ErrCodePayloadMismatch, "binary data of property %q does not match", exp.Attachment).
			WithDetails(map[string]any{"attachment": exp.Attachment})
	}

	for _, m := range exp.Metadata {
		if m.Value == nil {
			continue
		}
		if v, ok := att.Field(m.Field); !ok || v != *m.Value {
			return schema.NewErrorf(schema.ErrCodeMetadataMismatch, "binary property %q has wrong %s", exp.Attachment, m.Field).
				WithDetails(map[string]any{
					"attachment": exp.Attachment,
					"field":      m.Field,
					"expected":   *m.Value,
					"actual":     v,
				})
		}
	}
	return nil
}
