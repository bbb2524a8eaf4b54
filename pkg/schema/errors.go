package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeExecution         = "EXECUTION_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeActionUnavailable = "ACTION_UNAVAILABLE"
	ErrCodeTransport         = "TRANSPORT_ERROR"

	// Structural comparison failures.
	ErrCodeMissingKeys   = "MISSING_KEYS"
	ErrCodeExtraKeys     = "EXTRA_KEYS"
	ErrCodeValueMismatch = "VALUE_MISMATCH"

	// Binary comparison failures.
	ErrCodeNoBinaryData       = "NO_BINARY_DATA"
	ErrCodeAttachmentNotFound = "ATTACHMENT_NOT_FOUND"
	ErrCodePayloadMismatch    = "PAYLOAD_MISMATCH"
	ErrCodeMetadataMismatch   = "METADATA_MISMATCH"
)

// NodeError is the structured error type returned by every itemassert operation.
// Node and ItemIndex locate the failure inside a host pipeline; ItemIndex is -1
// when the error is not tied to an item.
type NodeError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Node      string         `json:"node,omitempty"`
	ItemIndex int            `json:"item_index"`
	Cause     error          `json:"-"`
}

func (e *NodeError) Error() string {
	switch {
	case e.Node != "" && e.ItemIndex >= 0:
		return fmt.Sprintf("[%s] node %s item %d: %s", e.Code, e.Node, e.ItemIndex, e.Message)
	case e.Node != "":
		return fmt.Sprintf("[%s] node %s: %s", e.Code, e.Node, e.Message)
	case e.ItemIndex >= 0:
		return fmt.Sprintf("[%s] item %d: %s", e.Code, e.ItemIndex, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *NodeError) Unwrap() error {
	return e.Cause
}

// NewError creates a new NodeError.
func NewError(code, message string) *NodeError {
	return &NodeError{Code: code, Message: message, ItemIndex: -1}
}

// NewErrorf creates a new NodeError with a formatted message.
func NewErrorf(code, format string, args ...any) *NodeError {
	return &NodeError{Code: code, Message: fmt.Sprintf(format, args...), ItemIndex: -1}
}

// WithNode attaches the name of the node that produced the error.
func (e *NodeError) WithNode(node string) *NodeError {
	e.Node = node
	return e
}

// WithItem attaches the index of the item being processed.
func (e *NodeError) WithItem(index int) *NodeError {
	e.ItemIndex = index
	return e
}

// WithCause attaches an underlying cause.
func (e *NodeError) WithCause(err error) *NodeError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *NodeError) WithDetails(details map[string]any) *NodeError {
	e.Details = details
	return e
}

// HasCode reports whether err is, or wraps, a NodeError with the given code.
func HasCode(err error, code string) bool {
	var nodeErr *NodeError
	if !errors.As(err, &nodeErr) {
		return false
	}
	return nodeErr.Code == code
}

// AsNodeError returns err as a *NodeError, wrapping foreign errors as
// EXECUTION_ERROR so callers always get a code to report.
func AsNodeError(err error) *NodeError {
	if err == nil {
		return nil
	}
	var nodeErr *NodeError
	if errors.As(err, &nodeErr) {
		return nodeErr
	}
	return NewError(ErrCodeExecution, err.Error()).WithCause(err)
}
