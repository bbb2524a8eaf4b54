package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/itemassert/internal/runner"
	"github.com/rendis/itemassert/pkg/schema"
)

// Tool arguments that steer the run rather than the action.
const (
	argItems          = "items"
	argContinueOnFail = "continue_on_fail"
)

var itemSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"json":   map[string]any{"type": "object"},
		"binary": map[string]any{"type": "object"},
	},
	"required": []string{"json"},
}

var metadataSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"name":  map[string]any{"type": "string"},
		"value": map[string]any{"type": []string{"string", "null"}},
	},
	"required": []string{"name"},
}

// --- Tool definitions ---

func compareTool() mcp.Tool {
	return mcp.NewTool("assert.compare",
		mcp.WithDescription("Compare each item's JSON against a reference document"),
		mcp.WithString("json", mcp.Required(), mcp.Description("Reference document as JSON text")),
		mcp.WithBoolean("extraKeys", mcp.Description("Tolerate keys the reference does not have (default true)")),
		mcp.WithBoolean("missingKeys", mcp.Description("Tolerate reference keys the item lacks (default false)")),
		mcp.WithBoolean("compareValues", mcp.Description("Tolerate differing values (default true)")),
		mcp.WithString("select", mcp.Description("jq expression picking the object to compare")),
		mcp.WithArray(argItems, mcp.Required(), mcp.Items(itemSchema), mcp.Description("Items to check")),
		mcp.WithBoolean(argContinueOnFail, mcp.Description("Report failing items instead of aborting")),
	)
}

func binaryTool() mcp.Tool {
	return mcp.NewTool("assert.binary",
		mcp.WithDescription("Check an item attachment's payload and metadata"),
		mcp.WithString("binaryPropertyName", mcp.Description("Attachment name (default data)")),
		mcp.WithString("data", mcp.Required(), mcp.Description("Expected payload, base64 encoded")),
		mcp.WithArray("metadata", mcp.Items(metadataSchema),
			mcp.Description(`Expected metadata fields, checked in order, e.g. [{"name":"mimeType","value":"image/png"}]. A field without value is not checked`)),
		mcp.WithArray(argItems, mcp.Required(), mcp.Items(itemSchema), mcp.Description("Items to check")),
		mcp.WithBoolean(argContinueOnFail, mcp.Description("Report failing items instead of aborting")),
	)
}

func docsTool() mcp.Tool {
	return mcp.NewTool("docs.request",
		mcp.WithDescription("Call the documents API"),
		mcp.WithString("method", mcp.Enum("GET", "POST", "PUT", "PATCH", "DELETE"), mcp.Description("HTTP method (default GET)")),
		mcp.WithString("resource", mcp.Description("Path below the API base, e.g. /documents/ID")),
		mcp.WithObject("body", mcp.Description("JSON request body")),
		mcp.WithObject("query", mcp.Description("Query string parameters")),
		mcp.WithString("uri", mcp.Description("Absolute URL overriding base and resource")),
	)
}

func actionsTool() mcp.Tool {
	return mcp.NewTool("itemassert.actions",
		mcp.WithDescription("List the registered actions and their input schemas"),
	)
}

// --- Handlers ---

// actionHandler runs the named action over the items of the call. Tools
// without items run once against an empty item.
func (s *Server) actionHandler(name string, needsItems bool) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		action, err := s.registry.Get(name)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		params := make(map[string]any)
		for k, v := range req.GetArguments() {
			if k == argItems || k == argContinueOnFail {
				continue
			}
			params[k] = v
		}

		items := []schema.Item{schema.NewItem(nil)}
		if needsItems {
			raw, ok := req.GetArguments()[argItems]
			if !ok {
				return mcp.NewToolResultError("items is required"), nil
			}
			items, err = s.parseItems(raw)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("invalid items: %v", err)), nil
			}
		}

		r := runner.New(runner.Config{
			Node:           name,
			Concurrency:    s.concurrency,
			ContinueOnFail: req.GetBool(argContinueOnFail, s.continueOnFail),
			Logger:         s.logger,
		})
		out, runErr := r.Run(ctx, action, params, items)
		if runErr != nil {
			s.logger.DebugContext(ctx, "tool call failed", slog.String("tool", name), slog.String("error", runErr.Error()))
			return mcp.NewToolResultError(runErr.Error()), nil
		}

		metrics := r.Metrics()
		return marshalResult(map[string]any{
			"items":  out,
			"passed": metrics.Completed,
			"failed": metrics.Failed,
		})
	}
}

// handleActions lists the registered actions.
func (s *Server) handleActions(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return marshalResult(map[string]any{"actions": s.registry.List()})
}

// parseItems re-encodes the tool argument and decodes it as items.
func (s *Server) parseItems(raw any) ([]schema.Item, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	if s.validator != nil {
		return s.validator.ParseItems(data)
	}

	var items []schema.Item
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&items); err != nil {
		return nil, err
	}
	return items, nil
}

func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
