// Package actions implements the assertion and documents-API steps a host
// pipeline invokes once per item.
package actions

import (
	"context"
	"encoding/json"

	"github.com/rendis/itemassert/pkg/schema"
)

// Action is an executable unit of work applied to one pipeline item.
type Action interface {
	Name() string
	Schema() ActionSchema
	Execute(ctx context.Context, input ActionInput) (*ActionOutput, error)
	Validate(params map[string]any) error
}

// ActionRegistry manages the lookup of available actions.
type ActionRegistry interface {
	Register(action Action) error
	Get(name string) (Action, error)
	Has(name string) bool
	List() []ActionInfo
}

// ActionSchema describes the input/output contract of an action.
type ActionSchema struct {
	InputSchema  json.RawMessage `json:"input_schema,omitempty"`
	OutputSchema json.RawMessage `json:"output_schema,omitempty"`
	Description  string          `json:"description,omitempty"`
}

// ActionInput is the data provided to an action at execution time: the
// resolved parameters and the current item.
type ActionInput struct {
	Params map[string]any `json:"params"`
	Item   *schema.Item   `json:"item,omitempty"`
}

// ActionOutput is the result record of one execution.
type ActionOutput struct {
	Data json.RawMessage `json:"data,omitempty"`
}

// ActionInfo is a summary of a registered action for listing.
type ActionInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}
