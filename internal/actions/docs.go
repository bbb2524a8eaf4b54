package actions

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/rendis/itemassert/internal/validation"
	"github.com/rendis/itemassert/pkg/schema"
)

// DocumentRequester is the documents API operation the docs actions wrap.
// *docs.Client implements it.
type DocumentRequester interface {
	Request(ctx context.Context, method, resource string, body map[string]any, query url.Values, uri string) (any, error)
}

const docsRequestInputSchema = `{
  "type": "object",
  "properties": {
    "method": {"type": "string", "enum": ["GET","POST","PUT","PATCH","DELETE","get","post","put","patch","delete"], "default": "GET"},
    "resource": {"type": "string"},
    "body": {"type": "object"},
    "query": {"type": "object"},
    "uri": {"type": "string", "format": "uri"}
  },
  "anyOf": [
    {"required": ["resource"]},
    {"required": ["uri"]}
  ]
}`

// DocsRequestAction implements "request" in the docs plugin namespace: a
// single call to the documents API returning its parsed JSON response.
type DocsRequestAction struct {
	client    DocumentRequester
	validator *validation.JSONSchemaValidator
}

// DocsActions returns the actions of the documents plugin.
func DocsActions(client DocumentRequester, validator *validation.JSONSchemaValidator) []Action {
	return []Action{
		&DocsRequestAction{client: client, validator: validator},
	}
}

func (a *DocsRequestAction) Name() string { return "request" }

func (a *DocsRequestAction) Schema() ActionSchema {
	return ActionSchema{
		Description: "Send a request to the documents API and return the parsed JSON response",
		InputSchema: json.RawMessage(docsRequestInputSchema),
	}
}

func (a *DocsRequestAction) Validate(params map[string]any) error {
	if params == nil {
		return schema.NewError(schema.ErrCodeValidation, "docs request requires 'resource' or 'uri' parameter")
	}
	if a.validator != nil {
		return a.validator.ValidateInput(params, []byte(docsRequestInputSchema))
	}
	if stringParam(params, "resource", "") == "" && stringParam(params, "uri", "") == "" {
		return schema.NewError(schema.ErrCodeValidation, "docs request requires 'resource' or 'uri' parameter")
	}
	return nil
}

func (a *DocsRequestAction) Execute(ctx context.Context, input ActionInput) (*ActionOutput, error) {
	if err := a.Validate(input.Params); err != nil {
		return nil, err
	}
	if a.client == nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "docs request: no documents client configured")
	}

	p := input.Params
	method := strings.ToUpper(stringParam(p, "method", http.MethodGet))
	resp, err := a.client.Request(ctx, method,
		stringParam(p, "resource", ""),
		objectParam(p, "body"),
		queryParam(p, "query"),
		stringParam(p, "uri", ""))
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "docs request: failed to marshal response").WithCause(err)
	}
	return &ActionOutput{Data: data}, nil
}
